// Package docker starts and tears down local probe containers through
// the docker CLI. It exists for verifying an image under test before it
// is ever deployed: the harness starts a container, polls its health
// endpoint, and the container is removed whatever the outcome.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runFunc executes the docker binary; injectable for tests.
type runFunc func(ctx context.Context, args ...string) (stdout, stderr string, err error)

func runDocker(ctx context.Context, args ...string) (string, string, error) {
	// #nosec G204 -- arguments are validated container parameters
	cmd := exec.CommandContext(ctx, "docker", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("docker %s: %w: %s",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), stderr.String(), nil
}

// CLI wraps the local docker binary.
type CLI struct {
	run runFunc
}

// NewCLI creates a docker CLI wrapper.
func NewCLI() *CLI {
	return &CLI{run: runDocker}
}

// Container is one running probe container. It satisfies the harness's
// Resource contract.
type Container struct {
	id  string
	run runFunc
}

// Start launches a detached container from image, publishing port on
// the loopback interface. The returned Container must be released by
// the caller.
func (c *CLI) Start(ctx context.Context, image string, port int) (*Container, error) {
	args := []string{"run", "--detach"}
	if port != 0 {
		args = append(args, "--publish", fmt.Sprintf("127.0.0.1:%d:%d", port, port))
	}
	args = append(args, image)

	stdout, _, err := c.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start probe container for %s: %w", image, err)
	}

	id := strings.TrimSpace(stdout)
	if id == "" {
		return nil, fmt.Errorf("docker run for %s reported no container id", image)
	}
	return &Container{id: id, run: c.run}, nil
}

// Exists reports whether a container with the given id is still known
// to the daemon. Used by tests to assert release actually happened.
func (c *CLI) Exists(ctx context.Context, id string) bool {
	_, _, err := c.run(ctx, "inspect", "--format", "{{.Id}}", id)
	return err == nil
}

// ID returns the container id.
func (ct *Container) ID() string { return ct.id }

// Logs returns up to n trailing log lines, stdout and stderr combined.
func (ct *Container) Logs(ctx context.Context, n int) ([]string, error) {
	stdout, stderr, err := ct.run(ctx, "logs", "--tail", fmt.Sprintf("%d", n), ct.id)
	if err != nil {
		return nil, err
	}
	combined := stdout + stderr
	lines := strings.Split(strings.TrimRight(combined, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Release force-removes the container.
func (ct *Container) Release(ctx context.Context) error {
	_, _, err := ct.run(ctx, "rm", "--force", ct.id)
	if err != nil {
		return fmt.Errorf("failed to remove container %s: %w", ct.id, err)
	}
	return nil
}
