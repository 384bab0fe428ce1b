// Package devnet manages a throwaway local Ethereum node in Docker, giving
// deployments a zero-configuration chain to run against.
package devnet

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/compose-network/chainplan/internal/logger"
)

const (
	// ContainerName identifies the devnet container across invocations.
	ContainerName = "chainplan-devnet"

	defaultImage = "ethereum/client-go:stable"
	rpcPort      = "8545"
)

// Options tune the devnet node.
type Options struct {
	Image    string
	HostPort string
	// BlockPeriod is the dev-mode mining period in seconds; zero mines a
	// block per transaction.
	BlockPeriod int
}

// Devnet drives a single geth --dev container.
type Devnet struct {
	cli    *client.Client
	opts   Options
	logger *slog.Logger
}

// New connects to the local Docker daemon.
func New(opts Options) (*Devnet, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the Docker daemon: %w", err)
	}

	if opts.Image == "" {
		opts.Image = defaultImage
	}
	if opts.HostPort == "" {
		opts.HostPort = rpcPort
	}

	return &Devnet{
		cli:    cli,
		opts:   opts,
		logger: logger.Named("devnet"),
	}, nil
}

// Close releases the Docker connection.
func (d *Devnet) Close() error {
	return d.cli.Close()
}

// RPCURL returns the endpoint the node listens on once up.
func (d *Devnet) RPCURL() string {
	return fmt.Sprintf("http://127.0.0.1:%s", d.opts.HostPort)
}

// Up starts the devnet node, pulling the image if needed. Starting an
// already-running devnet is an error.
func (d *Devnet) Up(ctx context.Context) error {
	if running, err := d.running(ctx); err != nil {
		return err
	} else if running {
		return fmt.Errorf("devnet container %q is already running", ContainerName)
	}

	if err := d.ensureImage(ctx); err != nil {
		return err
	}

	cmd := []string{
		"--dev",
		"--http",
		"--http.addr", "0.0.0.0",
		"--http.port", rpcPort,
		"--http.api", "eth,net,web3",
		"--http.vhosts", "*",
	}
	if d.opts.BlockPeriod > 0 {
		cmd = append(cmd, "--dev.period", fmt.Sprint(d.opts.BlockPeriod))
	}

	exposed := nat.Port(rpcPort + "/tcp")
	config := &container.Config{
		Image:        d.opts.Image,
		Cmd:          cmd,
		ExposedPorts: nat.PortSet{exposed: struct{}{}},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			exposed: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: d.opts.HostPort}},
		},
		AutoRemove: true,
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, ContainerName)
	if err != nil {
		return fmt.Errorf("failed to create devnet container: %w", err)
	}
	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start devnet container: %w", err)
	}

	d.logger.Info("devnet node started", "container", ContainerName, "rpc", d.RPCURL())
	return d.waitReady(ctx)
}

// Down stops and removes the devnet node. Taking down a devnet that is not
// running is a no-op.
func (d *Devnet) Down(ctx context.Context) error {
	err := d.cli.ContainerRemove(ctx, ContainerName, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove devnet container: %w", err)
	}

	d.logger.Info("devnet node stopped", "container", ContainerName)
	return nil
}

func (d *Devnet) running(ctx context.Context) (bool, error) {
	inspect, err := d.cli.ContainerInspect(ctx, ContainerName)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect devnet container: %w", err)
	}
	return inspect.State != nil && inspect.State.Running, nil
}

func (d *Devnet) ensureImage(ctx context.Context) error {
	if _, err := d.cli.ImageInspect(ctx, d.opts.Image); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image %q: %w", d.opts.Image, err)
	}

	d.logger.Info("pulling devnet image", "image", d.opts.Image)
	reader, err := d.cli.ImagePull(ctx, d.opts.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %q: %w", d.opts.Image, err)
	}
	defer reader.Close()

	// The pull completes when the progress stream ends.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("error reading image pull progress: %w", err)
	}
	return nil
}

// waitReady polls the container state until the node process is up. RPC
// readiness follows within the dial retry of the first client call.
func (d *Devnet) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if running, err := d.running(ctx); err != nil {
			return err
		} else if running {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("devnet container did not become ready in time")
}
