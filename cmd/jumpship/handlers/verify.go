package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/halcyonops/jumpship/internal/config"
	"github.com/halcyonops/jumpship/internal/health"
	"github.com/halcyonops/jumpship/internal/platform/docker"
	"github.com/halcyonops/jumpship/internal/util/prerequisites"
)

// probeContainer is the transient container under verification.
type probeContainer interface {
	health.Resource
	ID() string
}

// containerStarter interface for testing - matches docker.CLI.
type containerStarter interface {
	Start(ctx context.Context, image string, port int) (probeContainer, error)
}

// dockerStarter adapts docker.CLI to the containerStarter interface.
type dockerStarter struct {
	cli *docker.CLI
}

func (d dockerStarter) Start(ctx context.Context, image string, port int) (probeContainer, error) {
	container, err := d.cli.Start(ctx, image, port)
	if err != nil {
		return nil, err
	}
	return container, nil
}

// verifier interface for testing - matches health.Harness.
type verifier interface {
	Verify(ctx context.Context, probe health.Probe, resource health.Resource) (health.Report, error)
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// checkVerifyPrereqs runs prerequisite checks for local verification.
	checkVerifyPrereqs = func() error {
		return prerequisites.Check(prerequisites.VerifyTools()).Error()
	}

	// newContainerStarter creates the local container runtime wrapper.
	newContainerStarter = func() containerStarter {
		return dockerStarter{cli: docker.NewCLI()}
	}

	// newHarness creates the health verification harness.
	newHarness = func() verifier {
		return health.NewHarness()
	}
)

// Verify health-checks an image locally: start a container from it,
// poll the health endpoint with the same bounded backoff used after a
// deployment, and remove the container whatever the outcome. On
// exhaustion the container's trailing logs are printed so the failure
// stays debuggable after cleanup.
func Verify(ctx context.Context, image string, probeCfg config.ProbeConfig) error {
	if image == "" {
		return fmt.Errorf("image is required")
	}
	if probeCfg.Port == 0 {
		return fmt.Errorf("health port is required")
	}
	if err := checkVerifyPrereqs(); err != nil {
		return err
	}
	probeCfg = probeCfg.WithDefaults()

	container, err := newContainerStarter().Start(ctx, image, probeCfg.Port)
	if err != nil {
		return err
	}
	log.Printf("started probe container %.12s from %s", container.ID(), image)

	probe := health.Probe{
		Host:        "localhost",
		Port:        probeCfg.Port,
		Path:        probeCfg.Path,
		Interval:    probeCfg.PollInterval,
		MaxAttempts: probeCfg.MaxAttempts,
		SettleDelay: probeCfg.SettleDelay,
		LogLines:    probeCfg.LogLines,
	}

	// The harness owns the container from here: it is released exactly
	// once on every exit path, including cancellation.
	report, err := newHarness().Verify(ctx, probe, container)
	if err != nil {
		var timeoutErr *health.TimeoutError
		if errors.As(err, &timeoutErr) {
			log.Printf("image %s failed verification after %d attempts", image, timeoutErr.Attempts)
			for _, line := range timeoutErr.Diagnostics {
				log.Printf("  container: %s", line)
			}
		}
		return err
	}

	log.Printf("image %s healthy after %d attempts", image, len(report.Attempts))
	return nil
}
