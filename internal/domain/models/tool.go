package models

import (
	"encoding/json"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestSource tags where a tool manifest came from
type ManifestSource string

const (
	ManifestSourceLocal      ManifestSource = "local"
	ManifestSourceOpenAPIURL ManifestSource = "openapi_url"
	ManifestSourceDiscovered ManifestSource = "discovered"
)

// ManifestStatus is the lifecycle state of a tool manifest
type ManifestStatus string

const (
	ManifestPendingApproval ManifestStatus = "pending_approval"
	ManifestApproved        ManifestStatus = "approved"
	ManifestActive          ManifestStatus = "active"
	ManifestDisabled        ManifestStatus = "disabled"
	ManifestRevoked         ManifestStatus = "revoked"
)

// CanTransitionTo enforces the manifest status machine:
// pending_approval -> approved -> active, approved <-> disabled,
// and any state -> revoked.
func (s ManifestStatus) CanTransitionTo(next ManifestStatus) bool {
	if next == ManifestRevoked {
		return s != ManifestRevoked
	}
	switch s {
	case ManifestPendingApproval:
		return next == ManifestApproved
	case ManifestApproved:
		return next == ManifestActive || next == ManifestDisabled
	case ManifestDisabled:
		return next == ManifestApproved
	case ManifestActive:
		return false
	default:
		return false
	}
}

// Executable reports whether a manifest in this status may be run
func (s ManifestStatus) Executable() bool {
	return s == ManifestApproved || s == ManifestActive
}

// Capability describes one thing a tool can do
type Capability struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Entrypoint is a tokenised command line. Manifests may spell it as a
// string (split on whitespace) or a list of strings, in JSON or YAML.
type Entrypoint []string

func (e *Entrypoint) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = Entrypoint(strings.Fields(s))
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*e = Entrypoint(list)
	return nil
}

func (e *Entrypoint) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		*e = Entrypoint(strings.Fields(s))
		return nil
	}
	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	*e = Entrypoint(list)
	return nil
}

// ExecutionConfig tells the sandbox how to run a tool
type ExecutionConfig struct {
	Type           string     `json:"type,omitempty" yaml:"type"`
	Image          string     `json:"image,omitempty" yaml:"image"`
	Entrypoint     Entrypoint `json:"entrypoint,omitempty" yaml:"entrypoint"`
	TimeoutSeconds int        `json:"timeout,omitempty" yaml:"timeout"`
}

// DefaultExecutionTimeout is applied when a manifest does not set one
const DefaultExecutionTimeout = 30

// Timeout returns the configured timeout as a duration, with the default
// applied when unset.
func (c ExecutionConfig) Timeout() time.Duration {
	secs := c.TimeoutSeconds
	if secs <= 0 {
		secs = DefaultExecutionTimeout
	}
	return time.Duration(secs) * time.Second
}

// ToolManifest is the persistent declaration of a tool
type ToolManifest struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Version          string          `json:"version"`
	Description      string          `json:"description"`
	Source           ManifestSource  `json:"source"`
	SourceLocator    string          `json:"source_locator,omitempty"`
	Status           ManifestStatus  `json:"status"`
	Schema           map[string]any  `json:"schema,omitempty"`
	Capabilities     []Capability    `json:"capabilities,omitempty"`
	ParametersSchema map[string]any  `json:"parameters_schema,omitempty"`
	Execution        ExecutionConfig `json:"execution"`
	ApprovedAt       *time.Time      `json:"approved_at,omitempty"`
	RevokedAt        *time.Time      `json:"revoked_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func NewToolManifest(id, name, version, description string, source ManifestSource) *ToolManifest {
	now := time.Now()
	return &ToolManifest{
		ID:          id,
		Name:        name,
		Version:     version,
		Description: description,
		Source:      source,
		Status:      ManifestPendingApproval,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// PermissionKind identifies a resource permission attached to a manifest
type PermissionKind string

const (
	PermissionInternetAccess PermissionKind = "internet_access"
	PermissionStorageQuota   PermissionKind = "storage_quota"
	PermissionCPUCap         PermissionKind = "cpu_cap"
	PermissionMemoryCap      PermissionKind = "memory_cap"
)

// ToolPermission is one granted permission; unique per (manifest, kind)
type ToolPermission struct {
	ID         string         `json:"id"`
	ManifestID string         `json:"manifest_id"`
	Kind       PermissionKind `json:"kind"`
	Value      string         `json:"value"`
	GrantedBy  string         `json:"granted_by,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// PermissionSet is the resolved resource policy for one invocation
type PermissionSet struct {
	InternetAccess  bool
	StorageQuotaMB  int
	CPULimitPercent int
	MemoryLimitMB   int
}

// DefaultPermissionSet is the policy applied when no explicit grants exist
func DefaultPermissionSet() PermissionSet {
	return PermissionSet{
		InternetAccess:  false,
		StorageQuotaMB:  100,
		CPULimitPercent: 50,
		MemoryLimitMB:   512,
	}
}

// ExecutionStatus is the lifecycle state of one tool invocation
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSuccess   ExecutionStatus = "success"
	ExecutionFailure   ExecutionStatus = "failure"
	ExecutionTimeout   ExecutionStatus = "timeout"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether the status is final
func (s ExecutionStatus) Terminal() bool {
	return s != ExecutionRunning
}

// ToolExecution is the append-once execution log row: created running,
// updated exactly once with terminal fields, then frozen.
type ToolExecution struct {
	ID             string          `json:"id"`
	ManifestID     string          `json:"manifest_id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	TurnID         string          `json:"turn_id,omitempty"`
	Input          map[string]any  `json:"input,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	DurationMs     int64           `json:"duration_ms,omitempty"`
	Status         ExecutionStatus `json:"status"`
	Output         string          `json:"output,omitempty"`
	Error          string          `json:"error,omitempty"`
	ExitCode       *int            `json:"exit_code,omitempty"`
	CPUTimeMs      int64           `json:"cpu_time_ms,omitempty"`
	MemoryPeakMB   float64         `json:"memory_peak_mb,omitempty"`
	ContainerID    string          `json:"container_id,omitempty"`
}

// ToolState is an upsert-keyed scratch value a tool may persist between runs
type ToolState struct {
	ManifestID string    `json:"manifest_id"`
	Key        string    `json:"key"`
	Value      string    `json:"value"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ToolVolume records the named volume backing a tool's writable mount
type ToolVolume struct {
	ID         string    `json:"id"`
	ManifestID string    `json:"manifest_id"`
	Name       string    `json:"name"`
	MountPath  string    `json:"mount_path"`
	QuotaMB    int       `json:"quota_mb"`
	CreatedAt  time.Time `json:"created_at"`
}

// DiscoveryStatus is the lifecycle state of a tool discovery request
type DiscoveryStatus string

const (
	DiscoveryPending   DiscoveryStatus = "pending"
	DiscoverySearching DiscoveryStatus = "searching"
	DiscoveryFound     DiscoveryStatus = "found"
	DiscoveryFailed    DiscoveryStatus = "failed"
	DiscoveryRejected  DiscoveryStatus = "rejected"
)

// ToolDiscoveryRequest records a request for a capability no current tool covers
type ToolDiscoveryRequest struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	RequestedBy string          `json:"requested_by,omitempty"`
	Status      DiscoveryStatus `json:"status"`
	ManifestID  string          `json:"manifest_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
