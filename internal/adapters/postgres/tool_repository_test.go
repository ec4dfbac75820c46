package postgres

import (
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

func newToolRepoWithMock(t *testing.T) (*ToolRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)
	return &ToolRepository{BaseRepository: NewBaseRepository(nil)}, mock
}

func TestUpdateManifestStatusApprove(t *testing.T) {
	repo, mock := newToolRepoWithMock(t)
	ctx := setupMockContext(mock)

	mock.ExpectQuery(`SELECT status FROM slovo_tool_manifests`).
		WithArgs("tool-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("pending_approval"))
	mock.ExpectExec(`UPDATE slovo_tool_manifests`).
		WithArgs("tool-1", "approved", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.UpdateManifestStatus(ctx, "tool-1", models.ManifestApproved); err != nil {
		t.Fatalf("UpdateManifestStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateManifestStatusInvalidTransition(t *testing.T) {
	repo, mock := newToolRepoWithMock(t)
	ctx := setupMockContext(mock)

	mock.ExpectQuery(`SELECT status FROM slovo_tool_manifests`).
		WithArgs("tool-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("pending_approval"))

	err := repo.UpdateManifestStatus(ctx, "tool-1", models.ManifestActive)
	if !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Errorf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestUpdateManifestStatusRevokedIsFinal(t *testing.T) {
	repo, mock := newToolRepoWithMock(t)
	ctx := setupMockContext(mock)

	mock.ExpectQuery(`SELECT status FROM slovo_tool_manifests`).
		WithArgs("tool-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("revoked"))

	err := repo.UpdateManifestStatus(ctx, "tool-1", models.ManifestApproved)
	if !errors.Is(err, domain.ErrInvalidStatusTransition) {
		t.Errorf("expected ErrInvalidStatusTransition, got %v", err)
	}
}

func TestUpdateManifestStatusNotFound(t *testing.T) {
	repo, mock := newToolRepoWithMock(t)
	ctx := setupMockContext(mock)

	mock.ExpectQuery(`SELECT status FROM slovo_tool_manifests`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"status"}))

	err := repo.UpdateManifestStatus(ctx, "missing", models.ManifestApproved)
	if !errors.Is(err, domain.ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

func TestCompleteExecutionOnlyOnce(t *testing.T) {
	repo, mock := newToolRepoWithMock(t)
	ctx := setupMockContext(mock)

	// row already terminal: zero rows updated
	mock.ExpectExec(`UPDATE slovo_tool_executions`).
		WithArgs("exec-1", pgxmock.AnyArg(), "success", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.CompleteExecution(ctx, "exec-1", ports.ExecutionCompletion{
		Status: models.ExecutionSuccess,
		Output: "42",
	})
	if !errors.Is(err, domain.ErrExecutionNotFound) {
		t.Errorf("expected ErrExecutionNotFound, got %v", err)
	}
}

func TestCreateExecution(t *testing.T) {
	repo, mock := newToolRepoWithMock(t)
	ctx := setupMockContext(mock)

	mock.ExpectExec(`INSERT INTO slovo_tool_executions`).
		WithArgs("exec-1", "tool-1", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), "running").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.CreateExecution(ctx, &models.ToolExecution{
		ID:             "exec-1",
		ManifestID:     "tool-1",
		ConversationID: "conv-1",
		Input:          map[string]any{"city": "Berlin"},
		StartedAt:      time.Now(),
		Status:         models.ExecutionRunning,
	})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
}

func TestGetManifestDecodesJSON(t *testing.T) {
	repo, mock := newToolRepoWithMock(t)
	ctx := setupMockContext(mock)

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"id", "name", "version", "description", "source", "source_locator", "status",
		"schema", "capabilities", "parameters_schema", "execution",
		"approved_at", "revoked_at", "created_at", "updated_at",
	}).AddRow(
		"tool-1", "weather", "1.0.0", "weather lookup", "local", "/tools/weather.json", "approved",
		[]byte(`{"openapi":"3.0.0"}`),
		[]byte(`[{"name":"current_weather"}]`),
		[]byte(`{"type":"object"}`),
		[]byte(`{"type":"docker","image":"python:3.11-slim","entrypoint":"python main.py","timeout":15}`),
		now, nil, now, now,
	)

	mock.ExpectQuery(`SELECT .+ FROM slovo_tool_manifests WHERE id`).
		WithArgs("tool-1").
		WillReturnRows(rows)

	manifest, err := repo.GetManifest(ctx, "tool-1")
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}
	if manifest.Status != models.ManifestApproved {
		t.Errorf("status = %s", manifest.Status)
	}
	if len(manifest.Capabilities) != 1 || manifest.Capabilities[0].Name != "current_weather" {
		t.Errorf("capabilities = %+v", manifest.Capabilities)
	}
	if got := manifest.Execution.Entrypoint; len(got) != 2 || got[0] != "python" {
		t.Errorf("entrypoint = %v", got)
	}
	if manifest.Execution.Timeout() != 15*time.Second {
		t.Errorf("timeout = %v", manifest.Execution.Timeout())
	}
	if manifest.ApprovedAt == nil {
		t.Error("approved_at not decoded")
	}
}
