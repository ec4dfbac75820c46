package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

// EpisodicRepository persists the append-only action log. Rows are
// never updated; corrections append new entries.
type EpisodicRepository struct {
	BaseRepository
	crypto ports.EncryptionService
}

func NewEpisodicRepository(pool *pgxpool.Pool, crypto ports.EncryptionService) *EpisodicRepository {
	return &EpisodicRepository{
		BaseRepository: NewBaseRepository(pool),
		crypto:         crypto,
	}
}

const episodicColumns = `id, agent, action_type, summary_encrypted, confidence,
	conversation_id, step_index, tool_name, error_category, correction_reason,
	occurred_at, created_at`

func (r *EpisodicRepository) Append(ctx context.Context, entry *models.EpisodicEntry) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	encrypted, err := r.crypto.EncryptString(entry.Summary)
	if err != nil {
		return fmt.Errorf("failed to encrypt episodic summary: %w", err)
	}

	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO slovo_episodic_log (` + episodicColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.conn(ctx).Exec(ctx, query,
		entry.ID,
		entry.Agent,
		string(entry.ActionType),
		encrypted,
		entry.Confidence,
		nullString(entry.ConversationID),
		nullIntPtr(entry.StepIndex),
		nullString(entry.ToolName),
		nullString(entry.ErrorCategory),
		nullString(entry.CorrectionReason),
		entry.OccurredAt,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append episodic entry: %w", err)
	}
	return nil
}

func (r *EpisodicRepository) GetByID(ctx context.Context, id string) (*models.EpisodicEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + episodicColumns + ` FROM slovo_episodic_log WHERE id = $1`

	entry, err := r.scanEntry(r.conn(ctx).QueryRow(ctx, query, id))
	if checkNoRows(err) {
		return nil, domain.NewDomainError(domain.ErrMemoryNotFound, "episodic entry not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get episodic entry: %w", err)
	}
	return entry, nil
}

// Recent returns the newest entries first
func (r *EpisodicRepository) Recent(ctx context.Context, limit int) ([]*models.EpisodicEntry, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}

	query := `SELECT ` + episodicColumns + ` FROM slovo_episodic_log
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.conn(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodic entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.EpisodicEntry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episodic entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *EpisodicRepository) scanEntry(row pgx.Row) (*models.EpisodicEntry, error) {
	var (
		entry            models.EpisodicEntry
		actionType       string
		encrypted        string
		conversationID   sql.NullString
		stepIndex        sql.NullInt32
		toolName         sql.NullString
		errorCategory    sql.NullString
		correctionReason sql.NullString
	)
	err := row.Scan(
		&entry.ID,
		&entry.Agent,
		&actionType,
		&encrypted,
		&entry.Confidence,
		&conversationID,
		&stepIndex,
		&toolName,
		&errorCategory,
		&correctionReason,
		&entry.OccurredAt,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	summary, err := r.crypto.DecryptString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt episodic summary %s: %w", entry.ID, err)
	}

	entry.ActionType = models.ActionType(actionType)
	entry.Summary = summary
	entry.ConversationID = getString(conversationID)
	entry.StepIndex = getIntPtr(stepIndex)
	entry.ToolName = getString(toolName)
	entry.ErrorCategory = getString(errorCategory)
	entry.CorrectionReason = getString(correctionReason)
	return &entry, nil
}
