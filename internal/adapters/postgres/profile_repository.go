package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slovoapp/slovo/internal/domain/models"
)

// ProfileRepository persists the singleton user profile (row id = 1)
type ProfileRepository struct {
	BaseRepository
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{BaseRepository: NewBaseRepository(pool)}
}

const profileID = 1

// Get returns the profile, creating the default row on first access
func (r *ProfileRepository) Get(ctx context.Context) (*models.UserProfile, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, preferred_languages, communication_style, privacy_level,
		       memory_capture_enabled, created_at, updated_at
		FROM slovo_user_profile
		WHERE id = $1`

	var (
		profile   models.UserProfile
		languages []byte
	)
	err := r.conn(ctx).QueryRow(ctx, query, profileID).Scan(
		&profile.ID,
		&languages,
		&profile.CommunicationStyle,
		&profile.PrivacyLevel,
		&profile.MemoryCaptureEnabled,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if checkNoRows(err) {
		if err := r.EnsureDefault(ctx); err != nil {
			return nil, err
		}
		return models.DefaultUserProfile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}

	if err := unmarshalJSONField(languages, &profile.PreferredLanguages); err != nil {
		return nil, fmt.Errorf("failed to decode preferred languages: %w", err)
	}
	return &profile, nil
}

// Update replaces the mutable profile fields
func (r *ProfileRepository) Update(ctx context.Context, profile *models.UserProfile) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	languages, err := json.Marshal(profile.PreferredLanguages)
	if err != nil {
		return fmt.Errorf("failed to encode preferred languages: %w", err)
	}

	query := `
		UPDATE slovo_user_profile
		SET preferred_languages = $2,
		    communication_style = $3,
		    privacy_level = $4,
		    memory_capture_enabled = $5,
		    updated_at = $6
		WHERE id = $1`

	tag, err := r.conn(ctx).Exec(ctx, query,
		profileID,
		languages,
		profile.CommunicationStyle,
		profile.PrivacyLevel,
		profile.MemoryCaptureEnabled,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if err := r.EnsureDefault(ctx); err != nil {
			return err
		}
		return r.Update(ctx, profile)
	}
	return nil
}

// EnsureDefault creates the default profile row if none exists
func (r *ProfileRepository) EnsureDefault(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	def := models.DefaultUserProfile()
	languages, err := json.Marshal(def.PreferredLanguages)
	if err != nil {
		return fmt.Errorf("failed to encode preferred languages: %w", err)
	}

	query := `
		INSERT INTO slovo_user_profile
			(id, preferred_languages, communication_style, privacy_level, memory_capture_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.conn(ctx).Exec(ctx, query,
		profileID,
		languages,
		def.CommunicationStyle,
		def.PrivacyLevel,
		def.MemoryCaptureEnabled,
		def.CreatedAt,
		def.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure default profile: %w", err)
	}
	return nil
}
