package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

// MetadataRepository maintains the cross-store memory index. Every
// semantic, episodic, and preference entry has exactly one row here.
type MetadataRepository struct {
	BaseRepository
}

func NewMetadataRepository(pool *pgxpool.Pool) *MetadataRepository {
	return &MetadataRepository{BaseRepository: NewBaseRepository(pool)}
}

const metadataColumns = `id, kind, store_location, summary, source, confidence, deleted, created_at, updated_at`

func (r *MetadataRepository) Track(ctx context.Context, meta *models.MemoryMetadata) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now
	meta.Summary = models.Truncate(meta.Summary, models.MaxMetadataSummaryLen)

	query := `
		INSERT INTO slovo_memory_metadata (` + metadataColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			summary = EXCLUDED.summary,
			confidence = EXCLUDED.confidence,
			deleted = EXCLUDED.deleted,
			updated_at = EXCLUDED.updated_at`

	_, err := r.conn(ctx).Exec(ctx, query,
		meta.ID,
		string(meta.Kind),
		string(meta.StoreLocation),
		meta.Summary,
		string(meta.Source),
		meta.Confidence,
		meta.Deleted,
		meta.CreatedAt,
		meta.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to track memory metadata: %w", err)
	}
	return nil
}

func (r *MetadataRepository) Get(ctx context.Context, id string) (*models.MemoryMetadata, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + metadataColumns + ` FROM slovo_memory_metadata WHERE id = $1`

	var (
		meta     models.MemoryMetadata
		kind     string
		location string
		source   string
	)
	err := r.conn(ctx).QueryRow(ctx, query, id).Scan(
		&meta.ID, &kind, &location, &meta.Summary, &source,
		&meta.Confidence, &meta.Deleted, &meta.CreatedAt, &meta.UpdatedAt)
	if checkNoRows(err) {
		return nil, domain.NewDomainError(domain.ErrMemoryNotFound, "memory not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get memory metadata: %w", err)
	}

	meta.Kind = models.MemoryKind(kind)
	meta.StoreLocation = models.StoreLocation(location)
	meta.Source = models.MemorySource(source)
	return &meta, nil
}

// List returns a filtered page plus the total matching count
func (r *MetadataRepository) List(ctx context.Context, opts ports.MemoryListOptions) ([]*models.MemoryMetadata, int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	where, args := buildMetadataFilter(opts)

	var total int
	countQuery := `SELECT COUNT(*) FROM slovo_memory_metadata` + where
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count memory metadata: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + metadataColumns + ` FROM slovo_memory_metadata` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)+1) +
		` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list memory metadata: %w", err)
	}
	defer rows.Close()

	var items []*models.MemoryMetadata
	for rows.Next() {
		var (
			meta     models.MemoryMetadata
			kind     string
			location string
			source   string
		)
		if err := rows.Scan(&meta.ID, &kind, &location, &meta.Summary, &source,
			&meta.Confidence, &meta.Deleted, &meta.CreatedAt, &meta.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan memory metadata: %w", err)
		}
		meta.Kind = models.MemoryKind(kind)
		meta.StoreLocation = models.StoreLocation(location)
		meta.Source = models.MemorySource(source)
		items = append(items, &meta)
	}
	return items, total, rows.Err()
}

func buildMetadataFilter(opts ports.MemoryListOptions) (string, []any) {
	var clauses []string
	var args []any

	if !opts.IncludeDeleted {
		clauses = append(clauses, "deleted = FALSE")
	}
	if opts.Kind != "" {
		args = append(args, string(opts.Kind))
		clauses = append(clauses, "kind = $"+strconv.Itoa(len(args)))
	}
	if opts.Source != "" {
		args = append(args, string(opts.Source))
		clauses = append(clauses, "source = $"+strconv.Itoa(len(args)))
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *MetadataRepository) Update(ctx context.Context, meta *models.MemoryMetadata) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE slovo_memory_metadata
		SET summary = $2, confidence = $3, updated_at = $4
		WHERE id = $1`

	tag, err := r.conn(ctx).Exec(ctx, query,
		meta.ID,
		models.Truncate(meta.Summary, models.MaxMetadataSummaryLen),
		meta.Confidence,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update memory metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrMemoryNotFound, "memory not found: "+meta.ID)
	}
	return nil
}

// MarkDeleted soft-deletes the index row; the physical entry may
// already be gone.
func (r *MetadataRepository) MarkDeleted(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE slovo_memory_metadata SET deleted = TRUE, updated_at = $2 WHERE id = $1`,
		id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark memory deleted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrMemoryNotFound, "memory not found: "+id)
	}
	return nil
}

// Delete removes the index row, used by write compensation
func (r *MetadataRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM slovo_memory_metadata WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete memory metadata: %w", err)
	}
	return nil
}
