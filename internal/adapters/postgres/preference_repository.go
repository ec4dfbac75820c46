package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

// PreferenceRepository persists keyed preferences. Values are encrypted
// at rest; keys stay in the clear so upsert conflicts work.
type PreferenceRepository struct {
	BaseRepository
	crypto ports.EncryptionService
}

func NewPreferenceRepository(pool *pgxpool.Pool, crypto ports.EncryptionService) *PreferenceRepository {
	return &PreferenceRepository{
		BaseRepository: NewBaseRepository(pool),
		crypto:         crypto,
	}
}

func (r *PreferenceRepository) Upsert(ctx context.Context, pref *models.Preference) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	encrypted, err := r.crypto.EncryptString(pref.Value)
	if err != nil {
		return fmt.Errorf("failed to encrypt preference value: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO slovo_user_preferences (key, value_encrypted, source, confidence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (key) DO UPDATE SET
			value_encrypted = EXCLUDED.value_encrypted,
			source = EXCLUDED.source,
			confidence = EXCLUDED.confidence,
			updated_at = EXCLUDED.updated_at`

	_, err = r.conn(ctx).Exec(ctx, query,
		pref.Key, encrypted, string(pref.Source), pref.Confidence, now)
	if err != nil {
		return fmt.Errorf("failed to upsert preference: %w", err)
	}
	return nil
}

func (r *PreferenceRepository) Get(ctx context.Context, key string) (*models.Preference, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT key, value_encrypted, source, confidence, created_at, updated_at
		FROM slovo_user_preferences
		WHERE key = $1`

	pref, err := r.scanPreference(ctx, query, key)
	if checkNoRows(err) {
		return nil, domain.NewDomainError(domain.ErrNotFound, "preference not found: "+key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preference: %w", err)
	}
	return pref, nil
}

func (r *PreferenceRepository) scanPreference(ctx context.Context, query string, args ...any) (*models.Preference, error) {
	var (
		pref      models.Preference
		encrypted string
		source    string
	)
	err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(
		&pref.Key, &encrypted, &source, &pref.Confidence, &pref.CreatedAt, &pref.UpdatedAt)
	if err != nil {
		return nil, err
	}

	value, err := r.crypto.DecryptString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt preference %s: %w", pref.Key, err)
	}
	pref.Value = value
	pref.Source = models.PreferenceSource(source)
	return &pref, nil
}

func (r *PreferenceRepository) List(ctx context.Context, limit int) ([]*models.Preference, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT key, value_encrypted, source, confidence, created_at, updated_at
		FROM slovo_user_preferences
		ORDER BY key
		LIMIT $1`

	rows, err := r.conn(ctx).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	defer rows.Close()

	var prefs []*models.Preference
	for rows.Next() {
		var (
			pref      models.Preference
			encrypted string
			source    string
		)
		if err := rows.Scan(&pref.Key, &encrypted, &source, &pref.Confidence, &pref.CreatedAt, &pref.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		value, err := r.crypto.DecryptString(encrypted)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt preference %s: %w", pref.Key, err)
		}
		pref.Value = value
		pref.Source = models.PreferenceSource(source)
		prefs = append(prefs, &pref)
	}
	return prefs, rows.Err()
}

func (r *PreferenceRepository) Delete(ctx context.Context, key string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM slovo_user_preferences WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete preference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrNotFound, "preference not found: "+key)
	}
	return nil
}
