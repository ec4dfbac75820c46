// Package sandbox runs approved tools in locked-down Docker
// containers. Containers get a read-only rootfs, no capabilities, no
// privilege escalation, and network access only when the manifest's
// permission set grants it.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/slovoapp/slovo/internal/adapters/metrics"
	"github.com/slovoapp/slovo/internal/domain"
	"github.com/slovoapp/slovo/internal/domain/models"
	"github.com/slovoapp/slovo/internal/ports"
)

const (
	// DefaultImage runs tools whose manifest names no image
	DefaultImage = "python:3.11-slim"

	// ParamsEnvVar carries the JSON-encoded invocation parameters
	ParamsEnvVar = "SLOVO_TOOL_PARAMS"

	dataMountPath    = "/data"
	volumeNamePrefix = "slovo-tool-"
)

// dockerAPI is the slice of the engine client the executor needs
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig interface{}, platform interface{}, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerStatsOneShot(ctx context.Context, containerID string) (container.StatsResponseReader, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error)
	VolumeRemove(ctx context.Context, volumeID string, force bool) error
	VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error)
}

// engineClient adapts *client.Client to dockerAPI. The two interface{}
// parameters on ContainerCreate keep the fake in tests free of the
// network and platform spec types the executor never sets.
type engineClient struct {
	cli *client.Client
}

func (e *engineClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, _ interface{}, _ interface{}, containerName string) (container.CreateResponse, error) {
	return e.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, containerName)
}

func (e *engineClient) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return e.cli.ContainerStart(ctx, containerID, options)
}

func (e *engineClient) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	return e.cli.ContainerWait(ctx, containerID, condition)
}

func (e *engineClient) ContainerKill(ctx context.Context, containerID, signal string) error {
	return e.cli.ContainerKill(ctx, containerID, signal)
}

func (e *engineClient) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	return e.cli.ContainerLogs(ctx, containerID, options)
}

func (e *engineClient) ContainerStatsOneShot(ctx context.Context, containerID string) (container.StatsResponseReader, error) {
	return e.cli.ContainerStatsOneShot(ctx, containerID)
}

func (e *engineClient) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	return e.cli.ContainerRemove(ctx, containerID, options)
}

func (e *engineClient) VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error) {
	return e.cli.VolumeCreate(ctx, options)
}

func (e *engineClient) VolumeRemove(ctx context.Context, volumeID string, force bool) error {
	return e.cli.VolumeRemove(ctx, volumeID, force)
}

func (e *engineClient) VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error) {
	return e.cli.VolumeList(ctx, options)
}

// Executor implements ports.SandboxExecutor on the Docker engine
type Executor struct {
	api dockerAPI
	ids ports.IDGenerator
}

// NewExecutor connects to the local Docker daemon. An unreachable
// daemon returns domain.ErrSandboxUnavailable so the caller can start
// degraded.
func NewExecutor(ctx context.Context, ids ports.IDGenerator) (*Executor, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrSandboxUnavailable, "failed to create docker client: "+err.Error())
	}
	if _, err := cli.Ping(ctx); err != nil {
		return nil, domain.NewDomainError(domain.ErrSandboxUnavailable, "docker daemon unreachable: "+err.Error())
	}
	return &Executor{api: &engineClient{cli: cli}, ids: ids}, nil
}

// VolumeName returns the named volume backing a manifest's /data mount
func VolumeName(manifestID string) string {
	return volumeNamePrefix + manifestID
}

// Execute runs one tool invocation to completion
func (e *Executor) Execute(ctx context.Context, manifest *models.ToolManifest, perms models.PermissionSet, params map[string]any) (*ports.SandboxResult, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool parameters: %w", err)
	}

	volName := VolumeName(manifest.ID)
	if _, err := e.api.VolumeCreate(ctx, volume.CreateOptions{Name: volName}); err != nil {
		return nil, fmt.Errorf("failed to create tool volume: %w", err)
	}

	config, hostConfig := e.buildConfigs(manifest, perms, string(paramsJSON), volName)

	containerName := e.ids.GenerateContainerName()
	created, err := e.api.ContainerCreate(ctx, config, hostConfig, nil, nil, containerName)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	containerID := created.ID

	// cleanup must run even when the invocation context expired
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.api.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			slog.Warn("failed to remove sandbox container", "container_id", containerID, "error", err)
		}
	}()

	start := time.Now()
	if err := e.api.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	result := &ports.SandboxResult{ContainerID: containerID}

	waitCtx, cancelWait := context.WithTimeout(ctx, manifest.Execution.Timeout())
	defer cancelWait()

	waitCh, errCh := e.api.ContainerWait(waitCtx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-waitCh:
		result.ExitCode = int(status.StatusCode)
	case err := <-errCh:
		if waitCtx.Err() != nil {
			result.TimedOut = true
			e.killContainer(containerID)
		} else if err != nil {
			return nil, fmt.Errorf("failed to wait for container: %w", err)
		}
	case <-waitCtx.Done():
		result.TimedOut = true
		e.killContainer(containerID)
	}
	result.DurationMs = time.Since(start).Milliseconds()
	metrics.ToolExecutionDuration.Observe(time.Since(start).Seconds())

	bgCtx, cancelBg := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelBg()

	stdout, stderr, err := e.collectLogs(bgCtx, containerID)
	if err != nil {
		slog.Warn("failed to collect sandbox logs", "container_id", containerID, "error", err)
	}
	result.Stdout = stdout
	result.Stderr = stderr

	// stats are best effort; a container that already exited may
	// report nothing
	if cpuMs, memMB, ok := e.collectStats(bgCtx, containerID); ok {
		result.CPUTimeMs = cpuMs
		result.MemoryPeakMB = memMB
	}

	return result, nil
}

func (e *Executor) buildConfigs(manifest *models.ToolManifest, perms models.PermissionSet, paramsJSON, volName string) (*container.Config, *container.HostConfig) {
	image := manifest.Execution.Image
	if image == "" {
		image = DefaultImage
	}

	entrypoint := []string(manifest.Execution.Entrypoint)
	if len(entrypoint) == 0 {
		entrypoint = []string{"sh", "-c", `echo "$` + ParamsEnvVar + `"`}
	}

	networkMode := container.NetworkMode("none")
	if perms.InternetAccess {
		networkMode = "bridge"
	}

	memoryBytes := int64(perms.MemoryLimitMB) * 1024 * 1024

	config := &container.Config{
		Image:      image,
		Entrypoint: strslice.StrSlice(entrypoint),
		Env:        []string{ParamsEnvVar + "=" + paramsJSON},
		Labels:     map[string]string{"app": "slovo", "tool": manifest.Name},
	}

	hostConfig := &container.HostConfig{
		NetworkMode:    networkMode,
		ReadonlyRootfs: true,
		CapDrop:        strslice.StrSlice{"ALL"},
		SecurityOpt:    []string{"no-new-privileges:true"},
		Resources: container.Resources{
			// CPULimitPercent of one core over the standard period
			CPUQuota:   int64(perms.CPULimitPercent) * 100000 / 100,
			CPUPeriod:  100000,
			Memory:     memoryBytes,
			MemorySwap: memoryBytes,
		},
		LogConfig: container.LogConfig{
			Type:   "json-file",
			Config: map[string]string{"max-size": "10m"},
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeVolume,
			Source: volName,
			Target: dataMountPath,
		}},
	}

	return config, hostConfig
}

func (e *Executor) killContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.api.ContainerKill(ctx, containerID, "KILL"); err != nil {
		slog.Warn("failed to kill timed-out container", "container_id", containerID, "error", err)
	}
}

func (e *Executor) collectLogs(ctx context.Context, containerID string) (string, string, error) {
	reader, err := e.api.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", err
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", "", err
	}
	return stdout.String(), stderr.String(), nil
}

func (e *Executor) collectStats(ctx context.Context, containerID string) (cpuMs int64, memMB float64, ok bool) {
	statsReader, err := e.api.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return 0, 0, false
	}
	defer statsReader.Body.Close()

	var stats container.StatsResponse
	if err := json.NewDecoder(statsReader.Body).Decode(&stats); err != nil {
		return 0, 0, false
	}

	cpuMs = int64(stats.CPUStats.CPUUsage.TotalUsage / 1e6)
	memMB = float64(stats.MemoryStats.MaxUsage) / 1024 / 1024
	return cpuMs, memMB, true
}

// RemoveVolume deletes one manifest's data volume, best effort
func (e *Executor) RemoveVolume(ctx context.Context, manifestID string) error {
	if err := e.api.VolumeRemove(ctx, VolumeName(manifestID), true); err != nil {
		return fmt.Errorf("failed to remove tool volume: %w", err)
	}
	return nil
}

// RemoveAllVolumes deletes every tool data volume, used by full reset
func (e *Executor) RemoveAllVolumes(ctx context.Context) error {
	list, err := e.api.VolumeList(ctx, volume.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", volumeNamePrefix)),
	})
	if err != nil {
		return fmt.Errorf("failed to list tool volumes: %w", err)
	}

	var failures []string
	for _, vol := range list.Volumes {
		if !strings.HasPrefix(vol.Name, volumeNamePrefix) {
			continue
		}
		if err := e.api.VolumeRemove(ctx, vol.Name, true); err != nil {
			failures = append(failures, vol.Name)
			slog.Warn("failed to remove tool volume", "volume", vol.Name, "error", err)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("failed to remove %d tool volumes: %s", len(failures), strings.Join(failures, ", "))
	}
	return nil
}
