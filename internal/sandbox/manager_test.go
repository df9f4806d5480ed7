package sandbox

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlecFritsch/inito/pkg/errors"
)

func TestNewManager_Defaults(t *testing.T) {
	m := newManager(&fakeBackend{}, Options{})

	def := DefaultOptions()
	assert.Equal(t, def.Image, m.opts.Image)
	assert.Equal(t, int64(2<<30), m.opts.MemoryBytes)
	assert.Equal(t, int64(1_000_000_000), m.opts.NanoCPUs)
	assert.Equal(t, "bridge", m.opts.Network)
	assert.Contains(t, m.opts.Env, "CI=true")
}

func TestCreate_ProvisionsContainer(t *testing.T) {
	fb := &fakeBackend{}
	m := newManager(fb, Options{Image: "node:18", Network: "none"})
	dir := filepath.Join(t.TempDir(), "ws")

	sb, err := m.Create(context.Background(), "run123", dir, time.Minute)
	require.NoError(t, err)

	require.Len(t, fb.created, 1)
	spec := fb.created[0]
	assert.Equal(t, "havoc-run123", spec.Name)
	assert.Equal(t, "node:18", spec.Image)
	assert.Equal(t, "none", spec.Network)
	assert.True(t, filepath.IsAbs(spec.HostDir))
	assert.Equal(t, []string{"cid-run123"}, fb.started)

	assert.Equal(t, "cid-run123", sb.ID())
	assert.DirExists(t, dir)
}

func TestCreate_PingFailure(t *testing.T) {
	fb := &fakeBackend{pingErr: stderrors.New("daemon down")}
	m := newManager(fb, Options{})

	_, err := m.Create(context.Background(), "r1", t.TempDir(), time.Minute)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeProvisioning))
	assert.Empty(t, fb.created)
}

func TestCreate_CreateFailure(t *testing.T) {
	fb := &fakeBackend{createErr: stderrors.New("no such image")}
	m := newManager(fb, Options{})

	_, err := m.Create(context.Background(), "r1", t.TempDir(), time.Minute)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeProvisioning))
}

func TestCreate_StartFailureCleansUp(t *testing.T) {
	fb := &fakeBackend{startErr: stderrors.New("oci runtime error")}
	m := newManager(fb, Options{})
	dir := filepath.Join(t.TempDir(), "ws")

	_, err := m.Create(context.Background(), "r2", dir, time.Minute)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeProvisioning))
	assert.Equal(t, []string{"cid-r2"}, fb.removed)
	assert.NoDirExists(t, dir)
}

func TestSandbox_Exec(t *testing.T) {
	fb := &fakeBackend{
		execFn: func(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error) {
			_, _ = io.WriteString(stdout, "hello\n")
			_, _ = io.WriteString(stderr, "warn\n")
			return 3, nil
		},
	}
	m := newManager(fb, Options{})
	sb, err := m.Create(context.Background(), "r3", t.TempDir(), time.Minute)
	require.NoError(t, err)

	res, err := sb.Exec(context.Background(), []string{"echo", "hello"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "warn\n", res.Stderr)
	assert.False(t, res.Success())
	assert.Equal(t, "hello\n\nwarn\n", res.Output())
}

func TestSandbox_ExecEnvPassesEnvironment(t *testing.T) {
	fb := &fakeBackend{}
	m := newManager(fb, Options{})
	sb, err := m.Create(context.Background(), "r3e", t.TempDir(), time.Minute)
	require.NoError(t, err)

	_, err = sb.ExecEnv(context.Background(), []string{"git", "fetch"}, []string{"TOKEN=abc"})
	require.NoError(t, err)
	_, err = sb.Exec(context.Background(), []string{"git", "status"})
	require.NoError(t, err)

	fb.mu.Lock()
	defer fb.mu.Unlock()
	require.Len(t, fb.envs, 2)
	assert.Equal(t, []string{"TOKEN=abc"}, fb.envs[0])
	assert.Nil(t, fb.envs[1])
	assert.Equal(t, []string{"git", "fetch"}, fb.execs[0])
}

func TestSandbox_ExecEmptyCommand(t *testing.T) {
	m := newManager(&fakeBackend{}, Options{})
	sb, err := m.Create(context.Background(), "r4", t.TempDir(), time.Minute)
	require.NoError(t, err)

	_, err = sb.Exec(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSandboxExec))
}

func TestSandbox_ExecTimeout(t *testing.T) {
	fb := &fakeBackend{}
	fb.execFn = func(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error) {
		if argv[0] == "pkill" {
			return 0, nil
		}
		<-ctx.Done()
		return -1, ctx.Err()
	}
	m := newManager(fb, Options{})
	sb, err := m.Create(context.Background(), "r5", t.TempDir(), 50*time.Millisecond)
	require.NoError(t, err)

	_, err = sb.Exec(context.Background(), []string{"sleep", "100"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout))

	calls := fb.execCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"pkill", "-KILL", "-f", "sleep 100"}, calls[1])
}

func TestSandbox_ExecParentCancelled(t *testing.T) {
	fb := &fakeBackend{
		execFn: func(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error) {
			<-ctx.Done()
			return -1, ctx.Err()
		},
	}
	m := newManager(fb, Options{})
	sb, err := m.Create(context.Background(), "r6", t.TempDir(), time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = sb.Exec(ctx, []string{"npm", "test"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout))
}

func TestSandbox_CleanupIdempotent(t *testing.T) {
	fb := &fakeBackend{}
	m := newManager(fb, Options{})
	dir := filepath.Join(t.TempDir(), "ws")

	sb, err := m.Create(context.Background(), "r7", dir, time.Minute)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("x"), 0o644))

	sb.Cleanup(context.Background())
	sb.Cleanup(context.Background())

	assert.Equal(t, []string{"cid-r7"}, fb.stopped)
	assert.Equal(t, []string{"cid-r7"}, fb.removed)
	assert.NoDirExists(t, dir)
}
