package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Admin exposes maintenance operations over the durable store
type Admin struct {
	BaseRepository
}

func NewAdmin(pool *pgxpool.Pool) *Admin {
	return &Admin{BaseRepository: NewBaseRepository(pool)}
}

// ClearAll deletes every memory row. With preserveProfile the profile
// row survives; otherwise it is deleted and recreated with defaults on
// next access. Tool tables are cleared separately through
// ToolRepository.ClearAll during a full reset.
func (a *Admin) ClearAll(ctx context.Context, preserveProfile bool) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tables := []string{
		"slovo_user_preferences",
		"slovo_episodic_log",
		"slovo_memory_metadata",
	}
	for _, table := range tables {
		if _, err := a.conn(ctx).Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if !preserveProfile {
		if _, err := a.conn(ctx).Exec(ctx, "DELETE FROM slovo_user_profile"); err != nil {
			return fmt.Errorf("failed to clear slovo_user_profile: %w", err)
		}
	}
	return nil
}

// Health verifies the database answers a trivial query
func (a *Admin) Health(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var one int
	if err := a.conn(ctx).QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}
