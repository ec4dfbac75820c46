package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

// ToolRepository persists manifests, permissions, execution logs, tool
// state, volumes, and the discovery queue.
type ToolRepository struct {
	BaseRepository
}

func NewToolRepository(pool *pgxpool.Pool) *ToolRepository {
	return &ToolRepository{BaseRepository: NewBaseRepository(pool)}
}

const manifestColumns = `id, name, version, description, source, source_locator, status,
	schema, capabilities, parameters_schema, execution, approved_at, revoked_at,
	created_at, updated_at`

func (r *ToolRepository) CreateManifest(ctx context.Context, manifest *models.ToolManifest) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	schema, err := marshalJSONMap(manifest.Schema)
	if err != nil {
		return fmt.Errorf("failed to encode manifest schema: %w", err)
	}
	paramsSchema, err := marshalJSONMap(manifest.ParametersSchema)
	if err != nil {
		return fmt.Errorf("failed to encode parameters schema: %w", err)
	}
	var capabilities []byte
	if manifest.Capabilities != nil {
		if capabilities, err = json.Marshal(manifest.Capabilities); err != nil {
			return fmt.Errorf("failed to encode capabilities: %w", err)
		}
	}
	execution, err := json.Marshal(manifest.Execution)
	if err != nil {
		return fmt.Errorf("failed to encode execution config: %w", err)
	}

	query := `
		INSERT INTO slovo_tool_manifests (` + manifestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = r.conn(ctx).Exec(ctx, query,
		manifest.ID,
		manifest.Name,
		manifest.Version,
		manifest.Description,
		string(manifest.Source),
		nullString(manifest.SourceLocator),
		string(manifest.Status),
		schema,
		capabilities,
		paramsSchema,
		execution,
		nullTime(manifest.ApprovedAt),
		nullTime(manifest.RevokedAt),
		manifest.CreatedAt,
		manifest.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create tool manifest: %w", err)
	}
	return nil
}

func (r *ToolRepository) GetManifest(ctx context.Context, id string) (*models.ToolManifest, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + manifestColumns + ` FROM slovo_tool_manifests WHERE id = $1`
	manifest, err := scanManifest(r.conn(ctx).QueryRow(ctx, query, id))
	if checkNoRows(err) {
		return nil, domain.NewDomainError(domain.ErrToolNotFound, "tool manifest not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tool manifest: %w", err)
	}
	return manifest, nil
}

func (r *ToolRepository) GetManifestByName(ctx context.Context, name string) (*models.ToolManifest, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + manifestColumns + ` FROM slovo_tool_manifests WHERE name = $1`
	manifest, err := scanManifest(r.conn(ctx).QueryRow(ctx, query, name))
	if checkNoRows(err) {
		return nil, domain.NewDomainError(domain.ErrToolNotFound, "tool not found: "+name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tool manifest by name: %w", err)
	}
	return manifest, nil
}

func (r *ToolRepository) ListManifests(ctx context.Context, status models.ManifestStatus, limit, offset int) ([]*models.ToolManifest, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		query := `SELECT ` + manifestColumns + ` FROM slovo_tool_manifests
			WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		rows, err = r.conn(ctx).Query(ctx, query, string(status), limit, offset)
	} else {
		query := `SELECT ` + manifestColumns + ` FROM slovo_tool_manifests
			ORDER BY created_at DESC LIMIT $1 OFFSET $2`
		rows, err = r.conn(ctx).Query(ctx, query, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list tool manifests: %w", err)
	}
	defer rows.Close()

	var manifests []*models.ToolManifest
	for rows.Next() {
		manifest, err := scanManifest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool manifest: %w", err)
		}
		manifests = append(manifests, manifest)
	}
	return manifests, rows.Err()
}

// UpdateManifestStatus enforces the status machine and stamps
// approved_at/revoked_at on the corresponding transitions.
func (r *ToolRepository) UpdateManifestStatus(ctx context.Context, id string, status models.ManifestStatus) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var current string
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT status FROM slovo_tool_manifests WHERE id = $1`, id).Scan(&current)
	if checkNoRows(err) {
		return domain.NewDomainError(domain.ErrToolNotFound, "tool manifest not found: "+id)
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest status: %w", err)
	}

	if !models.ManifestStatus(current).CanTransitionTo(status) {
		return domain.NewDomainError(domain.ErrInvalidStatusTransition,
			fmt.Sprintf("cannot transition manifest from %s to %s", current, status))
	}

	now := time.Now()
	var approvedAt, revokedAt sql.NullTime
	switch status {
	case models.ManifestApproved:
		approvedAt = sql.NullTime{Time: now, Valid: true}
	case models.ManifestRevoked:
		revokedAt = sql.NullTime{Time: now, Valid: true}
	}

	query := `
		UPDATE slovo_tool_manifests
		SET status = $2,
		    approved_at = COALESCE($3, approved_at),
		    revoked_at = COALESCE($4, revoked_at),
		    updated_at = $5
		WHERE id = $1`

	if _, err := r.conn(ctx).Exec(ctx, query, id, string(status), approvedAt, revokedAt, now); err != nil {
		return fmt.Errorf("failed to update manifest status: %w", err)
	}
	return nil
}

func scanManifest(row pgx.Row) (*models.ToolManifest, error) {
	var (
		manifest      models.ToolManifest
		source        string
		sourceLocator sql.NullString
		status        string
		schema        []byte
		capabilities  []byte
		paramsSchema  []byte
		execution     []byte
		approvedAt    sql.NullTime
		revokedAt     sql.NullTime
	)
	err := row.Scan(
		&manifest.ID,
		&manifest.Name,
		&manifest.Version,
		&manifest.Description,
		&source,
		&sourceLocator,
		&status,
		&schema,
		&capabilities,
		&paramsSchema,
		&execution,
		&approvedAt,
		&revokedAt,
		&manifest.CreatedAt,
		&manifest.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	manifest.Source = models.ManifestSource(source)
	manifest.SourceLocator = getString(sourceLocator)
	manifest.Status = models.ManifestStatus(status)
	manifest.ApprovedAt = getTimePtr(approvedAt)
	manifest.RevokedAt = getTimePtr(revokedAt)

	if err := unmarshalJSONField(schema, &manifest.Schema); err != nil {
		return nil, fmt.Errorf("failed to decode manifest schema: %w", err)
	}
	if err := unmarshalJSONField(capabilities, &manifest.Capabilities); err != nil {
		return nil, fmt.Errorf("failed to decode capabilities: %w", err)
	}
	if err := unmarshalJSONField(paramsSchema, &manifest.ParametersSchema); err != nil {
		return nil, fmt.Errorf("failed to decode parameters schema: %w", err)
	}
	if err := unmarshalJSONField(execution, &manifest.Execution); err != nil {
		return nil, fmt.Errorf("failed to decode execution config: %w", err)
	}
	return &manifest, nil
}

func (r *ToolRepository) UpsertPermission(ctx context.Context, perm *models.ToolPermission) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now()
	query := `
		INSERT INTO slovo_tool_permissions (id, manifest_id, kind, value, granted_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (manifest_id, kind) DO UPDATE SET
			value = EXCLUDED.value,
			granted_by = EXCLUDED.granted_by,
			updated_at = EXCLUDED.updated_at`

	_, err := r.conn(ctx).Exec(ctx, query,
		perm.ID, perm.ManifestID, string(perm.Kind), perm.Value,
		nullString(perm.GrantedBy), now)
	if err != nil {
		return fmt.Errorf("failed to upsert tool permission: %w", err)
	}
	return nil
}

func (r *ToolRepository) GetPermissions(ctx context.Context, manifestID string) ([]*models.ToolPermission, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, manifest_id, kind, value, granted_by, created_at, updated_at
		FROM slovo_tool_permissions
		WHERE manifest_id = $1
		ORDER BY kind`

	rows, err := r.conn(ctx).Query(ctx, query, manifestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool permissions: %w", err)
	}
	defer rows.Close()

	var perms []*models.ToolPermission
	for rows.Next() {
		var (
			perm      models.ToolPermission
			kind      string
			grantedBy sql.NullString
		)
		if err := rows.Scan(&perm.ID, &perm.ManifestID, &kind, &perm.Value,
			&grantedBy, &perm.CreatedAt, &perm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tool permission: %w", err)
		}
		perm.Kind = models.PermissionKind(kind)
		perm.GrantedBy = getString(grantedBy)
		perms = append(perms, &perm)
	}
	return perms, rows.Err()
}

func (r *ToolRepository) CreateExecution(ctx context.Context, exec *models.ToolExecution) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	input, err := marshalJSONMap(exec.Input)
	if err != nil {
		return fmt.Errorf("failed to encode execution input: %w", err)
	}

	query := `
		INSERT INTO slovo_tool_executions
			(id, manifest_id, conversation_id, turn_id, input, started_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.conn(ctx).Exec(ctx, query,
		exec.ID,
		exec.ManifestID,
		nullString(exec.ConversationID),
		nullString(exec.TurnID),
		input,
		exec.StartedAt,
		string(exec.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to create execution log: %w", err)
	}
	return nil
}

// CompleteExecution writes the terminal fields exactly once; a row
// already in a terminal status is left untouched.
func (r *ToolRepository) CompleteExecution(ctx context.Context, id string, completion ports.ExecutionCompletion) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now()
	query := `
		UPDATE slovo_tool_executions
		SET completed_at = $2,
		    duration_ms = EXTRACT(EPOCH FROM ($2 - started_at)) * 1000,
		    status = $3,
		    output = $4,
		    error = $5,
		    exit_code = $6,
		    cpu_time_ms = $7,
		    memory_peak_mb = $8,
		    container_id = $9
		WHERE id = $1 AND status = 'running'`

	tag, err := r.conn(ctx).Exec(ctx, query,
		id,
		now,
		string(completion.Status),
		nullString(completion.Output),
		nullString(completion.Error),
		nullIntPtr(completion.ExitCode),
		completion.CPUTimeMs,
		completion.MemoryPeakMB,
		nullString(completion.ContainerID),
	)
	if err != nil {
		return fmt.Errorf("failed to complete execution log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrExecutionNotFound,
			"execution not found or already completed: "+id)
	}
	return nil
}

const executionColumns = `id, manifest_id, conversation_id, turn_id, input, started_at,
	completed_at, duration_ms, status, output, error, exit_code, cpu_time_ms,
	memory_peak_mb, container_id`

func (r *ToolRepository) GetExecution(ctx context.Context, id string) (*models.ToolExecution, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + executionColumns + ` FROM slovo_tool_executions WHERE id = $1`
	exec, err := scanExecution(r.conn(ctx).QueryRow(ctx, query, id))
	if checkNoRows(err) {
		return nil, domain.NewDomainError(domain.ErrExecutionNotFound, "execution not found: "+id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution log: %w", err)
	}
	return exec, nil
}

func (r *ToolRepository) ListExecutions(ctx context.Context, manifestID string, limit int) ([]*models.ToolExecution, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + executionColumns + ` FROM slovo_tool_executions
		WHERE manifest_id = $1
		ORDER BY started_at DESC
		LIMIT $2`

	rows, err := r.conn(ctx).Query(ctx, query, manifestID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list execution logs: %w", err)
	}
	defer rows.Close()

	var execs []*models.ToolExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func scanExecution(row pgx.Row) (*models.ToolExecution, error) {
	var (
		exec           models.ToolExecution
		conversationID sql.NullString
		turnID         sql.NullString
		input          []byte
		completedAt    sql.NullTime
		durationMs     sql.NullInt64
		status         string
		output         sql.NullString
		execError      sql.NullString
		exitCode       sql.NullInt32
		cpuTimeMs      sql.NullInt64
		memoryPeakMB   sql.NullFloat64
		containerID    sql.NullString
	)
	err := row.Scan(
		&exec.ID,
		&exec.ManifestID,
		&conversationID,
		&turnID,
		&input,
		&exec.StartedAt,
		&completedAt,
		&durationMs,
		&status,
		&output,
		&execError,
		&exitCode,
		&cpuTimeMs,
		&memoryPeakMB,
		&containerID,
	)
	if err != nil {
		return nil, err
	}

	exec.ConversationID = getString(conversationID)
	exec.TurnID = getString(turnID)
	exec.CompletedAt = getTimePtr(completedAt)
	exec.DurationMs = getInt64(durationMs)
	exec.Status = models.ExecutionStatus(status)
	exec.Output = getString(output)
	exec.Error = getString(execError)
	exec.ExitCode = getIntPtr(exitCode)
	exec.CPUTimeMs = getInt64(cpuTimeMs)
	exec.MemoryPeakMB = getFloat(memoryPeakMB)
	exec.ContainerID = getString(containerID)

	if err := unmarshalJSONField(input, &exec.Input); err != nil {
		return nil, fmt.Errorf("failed to decode execution input: %w", err)
	}
	return &exec, nil
}

func (r *ToolRepository) UpsertState(ctx context.Context, state *models.ToolState) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO slovo_tool_state (manifest_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (manifest_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.conn(ctx).Exec(ctx, query, state.ManifestID, state.Key, state.Value, time.Now()); err != nil {
		return fmt.Errorf("failed to upsert tool state: %w", err)
	}
	return nil
}

func (r *ToolRepository) GetState(ctx context.Context, manifestID, key string) (*models.ToolState, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var state models.ToolState
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT manifest_id, key, value, updated_at FROM slovo_tool_state WHERE manifest_id = $1 AND key = $2`,
		manifestID, key).Scan(&state.ManifestID, &state.Key, &state.Value, &state.UpdatedAt)
	if checkNoRows(err) {
		return nil, domain.NewDomainError(domain.ErrNotFound, "tool state not found: "+key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tool state: %w", err)
	}
	return &state, nil
}

func (r *ToolRepository) CreateVolume(ctx context.Context, vol *models.ToolVolume) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO slovo_tool_volumes (id, manifest_id, name, mount_path, quota_mb, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (manifest_id) DO NOTHING`

	if _, err := r.conn(ctx).Exec(ctx, query,
		vol.ID, vol.ManifestID, vol.Name, vol.MountPath, vol.QuotaMB, vol.CreatedAt); err != nil {
		return fmt.Errorf("failed to create tool volume: %w", err)
	}
	return nil
}

func (r *ToolRepository) GetVolume(ctx context.Context, manifestID string) (*models.ToolVolume, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var vol models.ToolVolume
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT id, manifest_id, name, mount_path, quota_mb, created_at FROM slovo_tool_volumes WHERE manifest_id = $1`,
		manifestID).Scan(&vol.ID, &vol.ManifestID, &vol.Name, &vol.MountPath, &vol.QuotaMB, &vol.CreatedAt)
	if checkNoRows(err) {
		return nil, domain.NewDomainError(domain.ErrNotFound, "tool volume not found for manifest: "+manifestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tool volume: %w", err)
	}
	return &vol, nil
}

func (r *ToolRepository) DeleteVolume(ctx context.Context, manifestID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM slovo_tool_volumes WHERE manifest_id = $1`, manifestID); err != nil {
		return fmt.Errorf("failed to delete tool volume: %w", err)
	}
	return nil
}

func (r *ToolRepository) CreateDiscoveryRequest(ctx context.Context, req *models.ToolDiscoveryRequest) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO slovo_tool_discovery (id, description, requested_by, status, manifest_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.conn(ctx).Exec(ctx, query,
		req.ID,
		req.Description,
		nullString(req.RequestedBy),
		string(req.Status),
		nullString(req.ManifestID),
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create discovery request: %w", err)
	}
	return nil
}

func (r *ToolRepository) UpdateDiscoveryRequest(ctx context.Context, id string, status models.DiscoveryStatus, manifestID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE slovo_tool_discovery
		SET status = $2,
		    manifest_id = COALESCE($3, manifest_id),
		    updated_at = $4
		WHERE id = $1`

	tag, err := r.conn(ctx).Exec(ctx, query, id, string(status), nullString(manifestID), time.Now())
	if err != nil {
		return fmt.Errorf("failed to update discovery request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewDomainError(domain.ErrNotFound, "discovery request not found: "+id)
	}
	return nil
}

func (r *ToolRepository) ListDiscoveryRequests(ctx context.Context, status models.DiscoveryStatus, limit int) ([]*models.ToolDiscoveryRequest, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = r.conn(ctx).Query(ctx, `
			SELECT id, description, requested_by, status, manifest_id, created_at, updated_at
			FROM slovo_tool_discovery WHERE status = $1 ORDER BY created_at DESC LIMIT $2`,
			string(status), limit)
	} else {
		rows, err = r.conn(ctx).Query(ctx, `
			SELECT id, description, requested_by, status, manifest_id, created_at, updated_at
			FROM slovo_tool_discovery ORDER BY created_at DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list discovery requests: %w", err)
	}
	defer rows.Close()

	var reqs []*models.ToolDiscoveryRequest
	for rows.Next() {
		var (
			req         models.ToolDiscoveryRequest
			requestedBy sql.NullString
			reqStatus   string
			manifestID  sql.NullString
		)
		if err := rows.Scan(&req.ID, &req.Description, &requestedBy, &reqStatus,
			&manifestID, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan discovery request: %w", err)
		}
		req.RequestedBy = getString(requestedBy)
		req.Status = models.DiscoveryStatus(reqStatus)
		req.ManifestID = getString(manifestID)
		reqs = append(reqs, &req)
	}
	return reqs, rows.Err()
}

// ClearAll empties every tool table; manifests cascade to the rest
func (r *ToolRepository) ClearAll(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	for _, table := range []string{"slovo_tool_discovery", "slovo_tool_manifests"} {
		if _, err := r.conn(ctx).Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
