// Package services holds the application services above the adapters:
// tool lifecycle plus sandboxed execution, and tool discovery.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slovoapp/slovo/internal/adapters/metrics"
	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

// ToolService coordinates manifest lifecycle, permissions, and
// sandboxed execution with a single-writer execution log.
type ToolService struct {
	repo       ports.ToolRepository
	sandbox    ports.SandboxExecutor
	ids        ports.IDGenerator
	discoverer *Discoverer
}

var _ ports.ToolService = (*ToolService)(nil)

// NewToolService builds the service; sandbox may be nil when Docker is
// unreachable, in which case executions fail with ErrSandboxUnavailable.
func NewToolService(repo ports.ToolRepository, sandbox ports.SandboxExecutor, ids ports.IDGenerator, discoverer *Discoverer) *ToolService {
	return &ToolService{repo: repo, sandbox: sandbox, ids: ids, discoverer: discoverer}
}

// manifestFile is the on-disk manifest format, JSON or YAML
type manifestFile struct {
	Name             string                 `json:"name" yaml:"name"`
	Version          string                 `json:"version" yaml:"version"`
	Description      string                 `json:"description" yaml:"description"`
	Capabilities     []models.Capability    `json:"capabilities" yaml:"capabilities"`
	Permissions      map[string]string      `json:"permissions" yaml:"permissions"`
	Execution        models.ExecutionConfig `json:"execution" yaml:"execution"`
	ParametersSchema map[string]any         `json:"parameters_schema" yaml:"parameters_schema"`
	Schema           map[string]any         `json:"schema" yaml:"schema"`
}

// Import loads a local manifest file and registers it pending approval
func (s *ToolService) Import(ctx context.Context, path string) (*models.ToolManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var file manifestFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrInvalidManifest, err.Error())
	}

	for field, value := range map[string]string{
		"name":        file.Name,
		"version":     file.Version,
		"description": file.Description,
	} {
		if strings.TrimSpace(value) == "" {
			return nil, domain.NewDomainError(domain.ErrInvalidManifest,
				fmt.Sprintf("missing required field in manifest: %s", field))
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	manifest := models.NewToolManifest(s.ids.GenerateManifestID(), file.Name, file.Version, file.Description, models.ManifestSourceLocal)
	manifest.SourceLocator = absPath
	manifest.Capabilities = file.Capabilities
	manifest.Execution = file.Execution
	manifest.ParametersSchema = file.ParametersSchema
	manifest.Schema = file.Schema
	if manifest.Execution.Type == "" {
		manifest.Execution.Type = "docker"
	}
	if manifest.Execution.TimeoutSeconds <= 0 {
		manifest.Execution.TimeoutSeconds = models.DefaultExecutionTimeout
	}

	if err := s.repo.CreateManifest(ctx, manifest); err != nil {
		return nil, err
	}

	for kind, value := range file.Permissions {
		perm := &models.ToolPermission{
			ID:         s.ids.GenerateManifestID(),
			ManifestID: manifest.ID,
			Kind:       models.PermissionKind(kind),
			Value:      value,
			GrantedBy:  "manifest",
		}
		if err := s.repo.UpsertPermission(ctx, perm); err != nil {
			return nil, err
		}
	}

	slog.InfoContext(ctx, "tool manifest imported", "name", manifest.Name, "id", manifest.ID, "path", absPath)
	return manifest, nil
}

// ImportOpenAPI fetches and analyses an OpenAPI document and registers
// the resulting manifest pending approval.
func (s *ToolService) ImportOpenAPI(ctx context.Context, url string) (*models.ToolManifest, error) {
	if s.discoverer == nil {
		return nil, fmt.Errorf("no discoverer configured")
	}

	analysis, err := s.discoverer.AnalyzeOpenAPI(ctx, url)
	if err != nil {
		return nil, err
	}

	manifest := models.NewToolManifest(s.ids.GenerateManifestID(), analysis.Name, analysis.Version, analysis.Description, models.ManifestSourceOpenAPIURL)
	manifest.SourceLocator = url
	manifest.Execution = models.ExecutionConfig{Type: "http", TimeoutSeconds: models.DefaultExecutionTimeout}
	for _, cap := range analysis.Capabilities {
		manifest.Capabilities = append(manifest.Capabilities, models.Capability{Name: cap})
	}
	if analysis.RequiresAuth {
		manifest.Schema = map[string]any{"requires_auth": true, "auth_type": analysis.AuthType}
	}

	if err := s.repo.CreateManifest(ctx, manifest); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "openapi tool imported", "name", manifest.Name, "url", url)
	return manifest, nil
}

func (s *ToolService) Get(ctx context.Context, id string) (*models.ToolManifest, error) {
	return s.repo.GetManifest(ctx, id)
}

func (s *ToolService) GetByName(ctx context.Context, name string) (*models.ToolManifest, error) {
	return s.repo.GetManifestByName(ctx, name)
}

func (s *ToolService) List(ctx context.Context, status models.ManifestStatus, limit, offset int) ([]*models.ToolManifest, error) {
	return s.repo.ListManifests(ctx, status, limit, offset)
}

func (s *ToolService) Approve(ctx context.Context, id string) error {
	return s.repo.UpdateManifestStatus(ctx, id, models.ManifestApproved)
}

func (s *ToolService) Activate(ctx context.Context, id string) error {
	return s.repo.UpdateManifestStatus(ctx, id, models.ManifestActive)
}

func (s *ToolService) Disable(ctx context.Context, id string) error {
	return s.repo.UpdateManifestStatus(ctx, id, models.ManifestDisabled)
}

// Revoke is terminal: the manifest can never run again and its volume
// is removed best effort.
func (s *ToolService) Revoke(ctx context.Context, id string) error {
	if err := s.repo.UpdateManifestStatus(ctx, id, models.ManifestRevoked); err != nil {
		return err
	}
	if s.sandbox != nil {
		if err := s.sandbox.RemoveVolume(ctx, id); err != nil {
			slog.WarnContext(ctx, "removing revoked tool volume failed", "manifest_id", id, "error", err)
		}
	}
	if err := s.repo.DeleteVolume(ctx, id); err != nil {
		slog.WarnContext(ctx, "deleting volume record failed", "manifest_id", id, "error", err)
	}
	return nil
}

// Execute runs the named tool in the sandbox, recording the invocation
// in the execution log: one running row, one terminal update.
func (s *ToolService) Execute(ctx context.Context, name string, params map[string]any, conversationID string) (*models.ToolExecution, error) {
	manifest, err := s.repo.GetManifestByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !manifest.Status.Executable() {
		return nil, domain.NewDomainError(domain.ErrToolNotExecutable,
			fmt.Sprintf("tool %s is %s", manifest.Name, manifest.Status))
	}

	perms := s.resolvePermissions(ctx, manifest.ID)

	exec := &models.ToolExecution{
		ID:             s.ids.GenerateExecutionID(),
		ManifestID:     manifest.ID,
		ConversationID: conversationID,
		Input:          params,
		StartedAt:      time.Now(),
		Status:         models.ExecutionRunning,
	}
	if err := s.repo.CreateExecution(ctx, exec); err != nil {
		return nil, err
	}

	completion := s.runSandboxed(ctx, manifest, perms, params)

	if err := s.repo.CompleteExecution(ctx, exec.ID, completion); err != nil {
		slog.ErrorContext(ctx, "completing execution log failed", "execution_id", exec.ID, "error", err)
	}
	metrics.ToolExecutionsTotal.WithLabelValues(string(completion.Status)).Inc()

	now := time.Now()
	exec.CompletedAt = &now
	exec.DurationMs = now.Sub(exec.StartedAt).Milliseconds()
	exec.Status = completion.Status
	exec.Output = completion.Output
	exec.Error = completion.Error
	exec.ExitCode = completion.ExitCode
	exec.CPUTimeMs = completion.CPUTimeMs
	exec.MemoryPeakMB = completion.MemoryPeakMB
	exec.ContainerID = completion.ContainerID
	return exec, nil
}

func (s *ToolService) runSandboxed(ctx context.Context, manifest *models.ToolManifest, perms models.PermissionSet, params map[string]any) ports.ExecutionCompletion {
	if s.sandbox == nil {
		return ports.ExecutionCompletion{
			Status: models.ExecutionFailure,
			Error:  domain.ErrSandboxUnavailable.Error(),
		}
	}

	s.ensureVolumeRecord(ctx, manifest.ID, perms.StorageQuotaMB)

	result, err := s.sandbox.Execute(ctx, manifest, perms, params)
	if err != nil {
		return ports.ExecutionCompletion{
			Status: models.ExecutionFailure,
			Error:  err.Error(),
		}
	}

	completion := ports.ExecutionCompletion{
		Output:       result.Stdout,
		ExitCode:     &result.ExitCode,
		CPUTimeMs:    result.CPUTimeMs,
		MemoryPeakMB: result.MemoryPeakMB,
		ContainerID:  result.ContainerID,
	}
	switch {
	case result.TimedOut:
		completion.Status = models.ExecutionTimeout
		completion.Error = domain.ErrToolTimeout.Error()
	case result.ExitCode == 0:
		completion.Status = models.ExecutionSuccess
	default:
		completion.Status = models.ExecutionFailure
		completion.Error = fmt.Sprintf("container exited with code %d", result.ExitCode)
		if result.Stderr != "" {
			completion.Error += ": " + strings.TrimSpace(result.Stderr)
		}
	}
	return completion
}

func (s *ToolService) ensureVolumeRecord(ctx context.Context, manifestID string, quotaMB int) {
	if _, err := s.repo.GetVolume(ctx, manifestID); err == nil {
		return
	}
	vol := &models.ToolVolume{
		ID:         s.ids.GenerateVolumeID(),
		ManifestID: manifestID,
		Name:       "slovo-tool-" + manifestID,
		MountPath:  "/data",
		QuotaMB:    quotaMB,
	}
	if err := s.repo.CreateVolume(ctx, vol); err != nil {
		slog.WarnContext(ctx, "recording tool volume failed", "manifest_id", manifestID, "error", err)
	}
}

// resolvePermissions overlays granted rows onto the default policy
func (s *ToolService) resolvePermissions(ctx context.Context, manifestID string) models.PermissionSet {
	perms := models.DefaultPermissionSet()

	rows, err := s.repo.GetPermissions(ctx, manifestID)
	if err != nil {
		slog.WarnContext(ctx, "loading permissions failed, using defaults", "manifest_id", manifestID, "error", err)
		return perms
	}
	for _, row := range rows {
		switch row.Kind {
		case models.PermissionInternetAccess:
			perms.InternetAccess = row.Value == "true"
		case models.PermissionStorageQuota:
			if v, err := strconv.Atoi(row.Value); err == nil && v > 0 {
				perms.StorageQuotaMB = v
			}
		case models.PermissionCPUCap:
			if v, err := strconv.Atoi(row.Value); err == nil && v > 0 {
				perms.CPULimitPercent = v
			}
		case models.PermissionMemoryCap:
			if v, err := strconv.Atoi(row.Value); err == nil && v > 0 {
				perms.MemoryLimitMB = v
			}
		}
	}
	return perms
}

func (s *ToolService) ExecutionLogs(ctx context.Context, manifestID string, limit int) ([]*models.ToolExecution, error) {
	return s.repo.ListExecutions(ctx, manifestID, limit)
}

// RequestDiscovery enqueues a pending discovery request; nothing is
// published without approval.
func (s *ToolService) RequestDiscovery(ctx context.Context, description, requestedBy string) (*models.ToolDiscoveryRequest, error) {
	req := &models.ToolDiscoveryRequest{
		ID:          s.ids.GenerateDiscoveryID(),
		Description: description,
		RequestedBy: requestedBy,
		Status:      models.DiscoveryPending,
	}
	if err := s.repo.CreateDiscoveryRequest(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// ResetTools wipes every manifest, log, and discovery record, and
// deletes the tool data volumes. Volume removal is best effort when
// Docker is unreachable; the records are cleared regardless.
func (s *ToolService) ResetTools(ctx context.Context) error {
	if s.sandbox != nil {
		if err := s.sandbox.RemoveAllVolumes(ctx); err != nil {
			slog.WarnContext(ctx, "failed to remove tool volumes during reset", "error", err)
		}
	}
	return s.repo.ClearAll(ctx)
}
