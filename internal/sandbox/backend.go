package sandbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/containerd/errdefs"
	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"
)

// containerSpec describes the container the manager asks the backend for
type containerSpec struct {
	Name        string
	Image       string
	HostDir     string
	MemoryBytes int64
	NanoCPUs    int64
	Network     string
	Env         []string
}

// backend is the slice of the container runtime API the manager needs
type backend interface {
	Ping(ctx context.Context) error
	CreateContainer(ctx context.Context, spec containerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	Exec(ctx context.Context, id string, argv, env []string, stdout, stderr io.Writer) (int, error)
	StopContainer(ctx context.Context, id string, timeoutSeconds int) error
	RemoveContainer(ctx context.Context, id string) error
	Close() error
}

// dockerBackend talks to the Docker engine through the moby client
type dockerBackend struct {
	cli *client.Client
}

func newDockerBackend() (*dockerBackend, error) {
	cli, err := client.New(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &dockerBackend{cli: cli}, nil
}

func (d *dockerBackend) Ping(ctx context.Context) error {
	_, err := d.cli.Ping(ctx, client.PingOptions{})
	return err
}

func (d *dockerBackend) CreateContainer(ctx context.Context, spec containerSpec) (string, error) {
	opts := client.ContainerCreateOptions{
		Name:  spec.Name,
		Image: spec.Image,
		Config: &container.Config{
			Cmd:        []string{"sleep", "infinity"},
			Env:        spec.Env,
			WorkingDir: WorkDir,
			Labels: map[string]string{
				"havoc.managed": "true",
			},
		},
		HostConfig: &container.HostConfig{
			Binds:       []string{spec.HostDir + ":" + WorkDir + ":rw"},
			NetworkMode: container.NetworkMode(spec.Network),
			SecurityOpt: []string{"no-new-privileges"},
			Resources: container.Resources{
				Memory:   spec.MemoryBytes,
				NanoCPUs: spec.NanoCPUs,
			},
		},
	}

	result, err := d.cli.ContainerCreate(ctx, opts)
	if err != nil && errdefs.IsNotFound(err) {
		// image missing locally
		if pullErr := d.pullImage(ctx, spec.Image); pullErr != nil {
			return "", fmt.Errorf("failed to pull image %s: %w", spec.Image, pullErr)
		}
		result, err = d.cli.ContainerCreate(ctx, opts)
	}
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	return result.ID, nil
}

func (d *dockerBackend) pullImage(ctx context.Context, image string) error {
	resp, err := d.cli.ImagePull(ctx, image, client.ImagePullOptions{})
	if err != nil {
		return err
	}
	defer resp.Close()
	_, err = io.Copy(io.Discard, resp)
	return err
}

func (d *dockerBackend) StartContainer(ctx context.Context, id string) error {
	_, err := d.cli.ContainerStart(ctx, id, client.ContainerStartOptions{})
	return err
}

// Exec runs argv and demultiplexes the attached stream into stdout and stderr.
// The attach connection is closed when ctx ends so a hung command does not block the caller.
func (d *dockerBackend) Exec(ctx context.Context, id string, argv, env []string, stdout, stderr io.Writer) (int, error) {
	created, err := d.cli.ExecCreate(ctx, id, client.ExecCreateOptions{
		Cmd:          argv,
		Env:          env,
		WorkingDir:   WorkDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := d.cli.ExecAttach(ctx, created.ID, client.ExecAttachOptions{})
	if err != nil {
		return -1, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			attach.Close()
		case <-stop:
		}
	}()

	if _, err := stdcopy.StdCopy(stdout, stderr, attach.Reader); err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		return -1, fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := d.cli.ExecInspect(ctx, created.ID, client.ExecInspectOptions{})
	if err != nil {
		return -1, fmt.Errorf("failed to inspect exec: %w", err)
	}
	return inspect.ExitCode, nil
}

func (d *dockerBackend) StopContainer(ctx context.Context, id string, timeoutSeconds int) error {
	_, err := d.cli.ContainerStop(ctx, id, client.ContainerStopOptions{Timeout: &timeoutSeconds})
	if err != nil && errdefs.IsNotFound(err) {
		return nil
	}
	return err
}

func (d *dockerBackend) RemoveContainer(ctx context.Context, id string) error {
	_, err := d.cli.ContainerRemove(ctx, id, client.ContainerRemoveOptions{Force: true})
	if err != nil && errdefs.IsNotFound(err) {
		return nil
	}
	return err
}

func (d *dockerBackend) Close() error {
	return d.cli.Close()
}

// compile-time check
var _ backend = (*dockerBackend)(nil)

// stopGrace is how long a container gets to exit before it is killed
const stopGrace = 5 * time.Second
