package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mockyard/process"
)

// DefaultCLITimeout bounds every engine CLI query.
const DefaultCLITimeout = 30 * time.Second

const psFormat = "{{.ID}}\t{{.Names}}\t{{.State}}\t{{.Status}}"

// CLIClient drives the engine through its command-line control surface.
type CLIClient struct {
	runner  *process.Runner
	binary  string
	timeout time.Duration
}

// NewCLIClient returns a client invoking binary (usually "docker") through runner.
func NewCLIClient(runner *process.Runner, binary string, timeout time.Duration) *CLIClient {
	if binary == "" {
		binary = "docker"
	}
	if timeout <= 0 {
		timeout = DefaultCLITimeout
	}
	return &CLIClient{runner: runner, binary: binary, timeout: timeout}
}

// NetworkExists implements Client.
func (c *CLIClient) NetworkExists(ctx context.Context, name string) (bool, error) {
	out, err := c.run(ctx, "network", "ls", "--filter", "name="+name, "--format", "{{.Name}}")
	if err != nil {
		return false, err
	}
	for _, line := range splitLines(out) {
		if line == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateNetwork implements Client.
func (c *CLIClient) CreateNetwork(ctx context.Context, name string) error {
	_, err := c.run(ctx, "network", "create", name)
	if err != nil && strings.Contains(err.Error(), "already exists") {
		return nil
	}
	return err
}

// ListRunning implements Client.
func (c *CLIClient) ListRunning(ctx context.Context, name string) ([]Instance, error) {
	return c.list(ctx, name, false)
}

// Inspect implements Client.
func (c *CLIClient) Inspect(ctx context.Context, name string) (*Instance, error) {
	instances, err := c.list(ctx, name, true)
	if err != nil || len(instances) == 0 {
		return nil, err
	}
	return &instances[0], nil
}

// Logs implements Client. The CLI merges both streams, so lines are not prefixed here.
func (c *CLIClient) Logs(ctx context.Context, name string, tail int) (string, error) {
	return c.run(ctx, "logs", "--tail", strconv.Itoa(tail), name)
}

func (c *CLIClient) list(ctx context.Context, name string, all bool) ([]Instance, error) {
	args := []string{"ps"}
	if all {
		args = append(args, "-a")
	}
	args = append(args, "--filter", "name="+name, "--format", psFormat)

	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var instances []Instance
	for _, line := range splitLines(out) {
		fields := strings.SplitN(line, "\t", 4)
		if len(fields) < 3 {
			continue
		}
		// The name filter is a substring match; "mock-a" also matches "mock-ab".
		if !hasName(fields[1], name) {
			continue
		}
		inst := Instance{ID: fields[0], Name: name, State: fields[2]}
		if len(fields) == 4 {
			inst.Status = fields[3]
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func (c *CLIClient) run(ctx context.Context, args ...string) (string, error) {
	res, err := c.runner.Run(ctx, process.Invocation{
		Args:    append([]string{c.binary}, args...),
		Timeout: c.timeout,
		Tag:     "engine",
		Quiet:   true,
	})
	if err != nil {
		return res.Output, fmt.Errorf("%s %s: %w", c.binary, strings.Join(args, " "), err)
	}
	if !res.Success() {
		return res.Output, fmt.Errorf("%s %s exited with code %d: %s", c.binary, strings.Join(args, " "), res.ExitCode, res.Output)
	}
	return res.Output, nil
}

func hasName(names, want string) bool {
	for _, n := range strings.Split(names, ",") {
		if strings.TrimPrefix(strings.TrimSpace(n), "/") == want {
			return true
		}
	}
	return false
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
