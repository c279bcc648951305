package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// APIClient talks to the engine daemon directly through the Docker SDK.
type APIClient struct {
	docker client.APIClient
}

// NewAPIClient connects using the DOCKER_* environment. Extra options are applied last.
func NewAPIClient(opts ...client.Opt) (*APIClient, error) {
	opts = append([]client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}, opts...)
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &APIClient{docker: cli}, nil
}

// NewAPIClientFrom wraps an existing SDK client.
func NewAPIClientFrom(docker client.APIClient) *APIClient {
	return &APIClient{docker: docker}
}

// Close releases the underlying transport.
func (c *APIClient) Close() error {
	return c.docker.Close()
}

// NetworkExists implements Client.
func (c *APIClient) NetworkExists(ctx context.Context, name string) (bool, error) {
	res, err := c.docker.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect docker network %s: %w", name, err)
	}
	// The daemon also resolves ID prefixes.
	return res.Name == name, nil
}

// CreateNetwork implements Client.
func (c *APIClient) CreateNetwork(ctx context.Context, name string) error {
	_, err := c.docker.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		if errdefs.IsConflict(err) {
			return nil
		}
		return fmt.Errorf("create docker network %s: %w", name, err)
	}
	return nil
}

// ListRunning implements Client.
func (c *APIClient) ListRunning(ctx context.Context, name string) ([]Instance, error) {
	return c.list(ctx, name, false)
}

// Inspect implements Client.
func (c *APIClient) Inspect(ctx context.Context, name string) (*Instance, error) {
	instances, err := c.list(ctx, name, true)
	if err != nil || len(instances) == 0 {
		return nil, err
	}
	return &instances[0], nil
}

// Logs implements Client.
func (c *APIClient) Logs(ctx context.Context, name string, tail int) (string, error) {
	info, err := c.docker.ContainerInspect(ctx, name)
	if err != nil {
		return "", fmt.Errorf("inspect container %s: %w", name, err)
	}

	rc, err := c.docker.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return "", fmt.Errorf("fetch logs for %s: %w", name, err)
	}
	defer rc.Close()

	// TTY containers have a single raw stream without multiplexing headers.
	if info.Config != nil && info.Config.Tty {
		raw, err := io.ReadAll(rc)
		if err != nil {
			return "", fmt.Errorf("read logs for %s: %w", name, err)
		}
		return strings.TrimRight(string(raw), "\n"), nil
	}

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return "", fmt.Errorf("read logs for %s: %w", name, err)
	}
	return joinStreams(stdout.String(), stderr.String()), nil
}

func (c *APIClient) list(ctx context.Context, name string, all bool) ([]Instance, error) {
	summaries, err := c.docker.ContainerList(ctx, container.ListOptions{
		All:     all,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers %s: %w", name, err)
	}

	var instances []Instance
	for _, s := range summaries {
		if !hasName(strings.Join(s.Names, ","), name) {
			continue
		}
		instances = append(instances, Instance{
			ID:     s.ID,
			Name:   name,
			State:  string(s.State),
			Status: s.Status,
		})
	}
	return instances, nil
}

// joinStreams renders stdout lines as-is followed by stderr lines marked "ERROR: ".
func joinStreams(stdout, stderr string) string {
	lines := splitRaw(stdout)
	for _, line := range splitRaw(stderr) {
		lines = append(lines, "ERROR: "+line)
	}
	return strings.Join(lines, "\n")
}

func splitRaw(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
