package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/slovoapp/slovo/internal/adapters/crypto"
	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

func newPreferenceRepoWithMock(t *testing.T) (*PreferenceRepository, pgxmock.PgxPoolIface, ports.EncryptionService) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	enc, err := crypto.NewServiceWithSalt("test", []byte("0123456789abcdef"))
	if err != nil {
		t.Fatalf("crypto: %v", err)
	}
	repo := &PreferenceRepository{BaseRepository: NewBaseRepository(nil), crypto: enc}
	return repo, mock, enc
}

func TestPreferenceUpsert(t *testing.T) {
	repo, mock, _ := newPreferenceRepoWithMock(t)
	ctx := setupMockContext(mock)

	mock.ExpectExec(`INSERT INTO slovo_user_preferences`).
		WithArgs("units", pgxmock.AnyArg(), "user_edit", 1.0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Upsert(ctx, &models.Preference{
		Key:        "units",
		Value:      "metric",
		Source:     models.PreferenceUserEdit,
		Confidence: 1.0,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPreferenceGetDecrypts(t *testing.T) {
	repo, mock, enc := newPreferenceRepoWithMock(t)
	ctx := setupMockContext(mock)

	encrypted, err := enc.EncryptString("metric")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	now := time.Now()
	rows := pgxmock.NewRows([]string{"key", "value_encrypted", "source", "confidence", "created_at", "updated_at"}).
		AddRow("units", encrypted, "user_edit", 1.0, now, now)

	mock.ExpectQuery(`SELECT .+ FROM slovo_user_preferences`).
		WithArgs("units").
		WillReturnRows(rows)

	pref, err := repo.Get(ctx, "units")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if pref.Value != "metric" {
		t.Errorf("value = %q, want metric", pref.Value)
	}
	if pref.Source != models.PreferenceUserEdit {
		t.Errorf("source = %s", pref.Source)
	}
}

func TestPreferenceGetNotFound(t *testing.T) {
	repo, mock, _ := newPreferenceRepoWithMock(t)
	ctx := setupMockContext(mock)

	mock.ExpectQuery(`SELECT .+ FROM slovo_user_preferences`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"key"}))

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPreferenceDeleteNotFound(t *testing.T) {
	repo, mock, _ := newPreferenceRepoWithMock(t)
	ctx := setupMockContext(mock)

	mock.ExpectExec(`DELETE FROM slovo_user_preferences`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
