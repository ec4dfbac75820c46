package sandbox

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/volume"

	"github.com/slovoapp/slovo/internal/adapters/id"
	"github.com/slovoapp/slovo/internal/domain/models"
)

type fakeDocker struct {
	config     *container.Config
	hostConfig *container.HostConfig

	exitCode   int64
	waitDelay  time.Duration
	killed     bool
	removed    bool
	volumes    []string
	volRemoved []string
}

func (f *fakeDocker) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, _ interface{}, _ interface{}, containerName string) (container.CreateResponse, error) {
	f.config = config
	f.hostConfig = hostConfig
	return container.CreateResponse{ID: "cid-123"}, nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	return nil
}

func (f *fakeDocker) ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	waitCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	go func() {
		select {
		case <-time.After(f.waitDelay):
			waitCh <- container.WaitResponse{StatusCode: f.exitCode}
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()
	return waitCh, errCh
}

func (f *fakeDocker) ContainerKill(ctx context.Context, containerID, signal string) error {
	f.killed = true
	return nil
}

func (f *fakeDocker) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	// multiplexed stream framing: header byte 1 = stdout, 2 = stderr
	payload := "hello from tool"
	frame := append([]byte{1, 0, 0, 0, 0, 0, 0, byte(len(payload))}, []byte(payload)...)
	return io.NopCloser(strings.NewReader(string(frame))), nil
}

func (f *fakeDocker) ContainerStatsOneShot(ctx context.Context, containerID string) (container.StatsResponseReader, error) {
	body := `{"cpu_stats":{"cpu_usage":{"total_usage":250000000}},"memory_stats":{"max_usage":52428800}}`
	return container.StatsResponseReader{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeDocker) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.removed = true
	return nil
}

func (f *fakeDocker) VolumeCreate(ctx context.Context, options volume.CreateOptions) (volume.Volume, error) {
	f.volumes = append(f.volumes, options.Name)
	return volume.Volume{Name: options.Name}, nil
}

func (f *fakeDocker) VolumeRemove(ctx context.Context, volumeID string, force bool) error {
	f.volRemoved = append(f.volRemoved, volumeID)
	return nil
}

func (f *fakeDocker) VolumeList(ctx context.Context, options volume.ListOptions) (volume.ListResponse, error) {
	vols := make([]*volume.Volume, len(f.volumes))
	for i, name := range f.volumes {
		vols[i] = &volume.Volume{Name: name}
	}
	return volume.ListResponse{Volumes: vols}, nil
}

func testManifest() *models.ToolManifest {
	return &models.ToolManifest{
		ID:     "tool-1",
		Name:   "weather",
		Status: models.ManifestApproved,
		Execution: models.ExecutionConfig{
			Type:           "docker",
			Image:          "python:3.11-slim",
			Entrypoint:     models.Entrypoint{"python", "main.py"},
			TimeoutSeconds: 2,
		},
	}
}

func newTestExecutor(fake *fakeDocker) *Executor {
	return &Executor{api: fake, ids: id.New()}
}

func TestExecuteSuccess(t *testing.T) {
	fake := &fakeDocker{exitCode: 0}
	exec := newTestExecutor(fake)

	result, err := exec.Execute(context.Background(), testManifest(),
		models.DefaultPermissionSet(), map[string]any{"city": "Berlin"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result.ExitCode != 0 || result.TimedOut {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Stdout != "hello from tool" {
		t.Errorf("stdout = %q", result.Stdout)
	}
	if result.ContainerID != "cid-123" {
		t.Errorf("container id = %q", result.ContainerID)
	}
	if result.CPUTimeMs != 250 {
		t.Errorf("cpu time = %d, want 250", result.CPUTimeMs)
	}
	if result.MemoryPeakMB != 50 {
		t.Errorf("memory peak = %v, want 50", result.MemoryPeakMB)
	}
	if !fake.removed {
		t.Error("container was not removed")
	}
}

func TestExecuteLockdown(t *testing.T) {
	fake := &fakeDocker{}
	exec := newTestExecutor(fake)

	_, err := exec.Execute(context.Background(), testManifest(),
		models.DefaultPermissionSet(), map[string]any{"city": "Berlin"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	hc := fake.hostConfig
	if hc.NetworkMode != "none" {
		t.Errorf("network mode = %s, want none", hc.NetworkMode)
	}
	if !hc.ReadonlyRootfs {
		t.Error("rootfs is writable")
	}
	if len(hc.CapDrop) != 1 || hc.CapDrop[0] != "ALL" {
		t.Errorf("cap drop = %v", hc.CapDrop)
	}
	if len(hc.SecurityOpt) != 1 || hc.SecurityOpt[0] != "no-new-privileges:true" {
		t.Errorf("security opt = %v", hc.SecurityOpt)
	}
	// defaults: 50% cpu, 512 MiB with swap pinned to the same value
	if hc.Resources.CPUQuota != 50000 || hc.Resources.CPUPeriod != 100000 {
		t.Errorf("cpu quota/period = %d/%d", hc.Resources.CPUQuota, hc.Resources.CPUPeriod)
	}
	if hc.Resources.Memory != 512*1024*1024 || hc.Resources.MemorySwap != hc.Resources.Memory {
		t.Errorf("memory limits = %d/%d", hc.Resources.Memory, hc.Resources.MemorySwap)
	}
	if len(hc.Mounts) != 1 || hc.Mounts[0].Source != "slovo-tool-tool-1" || hc.Mounts[0].Target != "/data" {
		t.Errorf("mounts = %+v", hc.Mounts)
	}

	var found bool
	for _, env := range fake.config.Env {
		if strings.HasPrefix(env, ParamsEnvVar+"=") && strings.Contains(env, "Berlin") {
			found = true
		}
	}
	if !found {
		t.Errorf("params env missing: %v", fake.config.Env)
	}
}

func TestExecuteInternetAccessEnablesBridge(t *testing.T) {
	fake := &fakeDocker{}
	exec := newTestExecutor(fake)

	perms := models.DefaultPermissionSet()
	perms.InternetAccess = true

	if _, err := exec.Execute(context.Background(), testManifest(), perms, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fake.hostConfig.NetworkMode != "bridge" {
		t.Errorf("network mode = %s, want bridge", fake.hostConfig.NetworkMode)
	}
}

func TestExecuteTimeoutKills(t *testing.T) {
	fake := &fakeDocker{waitDelay: 5 * time.Second}
	exec := newTestExecutor(fake)

	manifest := testManifest()
	manifest.Execution.TimeoutSeconds = 1

	start := time.Now()
	result, err := exec.Execute(context.Background(), manifest,
		models.DefaultPermissionSet(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.TimedOut {
		t.Error("expected TimedOut")
	}
	if !fake.killed {
		t.Error("timed-out container was not killed")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
}

func TestExecuteFallbackEntrypointAndImage(t *testing.T) {
	fake := &fakeDocker{}
	exec := newTestExecutor(fake)

	manifest := testManifest()
	manifest.Execution.Image = ""
	manifest.Execution.Entrypoint = nil

	if _, err := exec.Execute(context.Background(), manifest,
		models.DefaultPermissionSet(), nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if fake.config.Image != DefaultImage {
		t.Errorf("image = %s, want %s", fake.config.Image, DefaultImage)
	}
	if len(fake.config.Entrypoint) == 0 || fake.config.Entrypoint[0] != "sh" {
		t.Errorf("entrypoint = %v", fake.config.Entrypoint)
	}
}

func TestRemoveAllVolumes(t *testing.T) {
	fake := &fakeDocker{volumes: []string{"slovo-tool-a", "slovo-tool-b"}}
	exec := newTestExecutor(fake)

	if err := exec.RemoveAllVolumes(context.Background()); err != nil {
		t.Fatalf("RemoveAllVolumes: %v", err)
	}
	if len(fake.volRemoved) != 2 {
		t.Errorf("removed = %v", fake.volRemoved)
	}
}
