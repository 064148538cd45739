// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command
// definitions in the commands package. Handlers are framework-agnostic
// and can be tested independently of the CLI framework.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/halcyonops/jumpship/internal/config"
	"github.com/halcyonops/jumpship/internal/deploy"
	"github.com/halcyonops/jumpship/internal/health"
	"github.com/halcyonops/jumpship/internal/pipeline"
	"github.com/halcyonops/jumpship/internal/platform/ssh"
)

// TargetFlags describes a single deployment target given entirely by
// flags, used when no targets manifest is supplied.
type TargetFlags struct {
	Service   string
	Namespace string
	Kind      string
	Image     string
}

// Runner interface for testing - matches pipeline.Coordinator.
type Runner interface {
	Run(ctx context.Context, items []pipeline.Item) []pipeline.Outcome
}

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// newRelay creates the SSH transport for remote updates.
	newRelay = func() deploy.Relay {
		return ssh.NewRelay()
	}

	// newVerifier creates the health verification harness.
	newVerifier = func() pipeline.Verifier {
		return health.NewHarness()
	}

	// newCoordinator creates the pipeline coordinator.
	newCoordinator = func(d pipeline.Deployer, v pipeline.Verifier, opts ...pipeline.CoordinatorOption) Runner {
		return pipeline.NewCoordinator(d, v, opts...)
	}

	// loadManifest loads a targets manifest (for testing injection).
	loadManifest = config.LoadManifest
)

// Deploy runs the deploy-and-verify pipeline: resolve credentials,
// assemble the relay chain and the target list, fan the targets out to
// the coordinator, and report. A non-nil return means at least one
// target did not reach a verified-healthy state.
func Deploy(ctx context.Context, cfg *config.Config, manifestPath string, single TargetFlags) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	chain, err := buildChain(cfg)
	if err != nil {
		return err
	}

	items, err := buildItems(cfg, manifestPath, single)
	if err != nil {
		return err
	}

	opts := []pipeline.CoordinatorOption{pipeline.WithConcurrency(cfg.Concurrency)}
	if cfg.MetricsListen != "" {
		metrics := pipeline.NewMetrics()
		opts = append(opts, pipeline.WithMetrics(metrics))
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsListen); err != nil {
				log.Printf("metrics endpoint on %s failed: %v", cfg.MetricsListen, err)
			}
		}()
	}

	coordinator := newCoordinator(deploy.NewExecutor(newRelay(), chain), newVerifier(), opts...)
	outcomes := coordinator.Run(ctx, items)

	if cfg.JSONOutput {
		if err := printOutcomesJSON(outcomes); err != nil {
			return err
		}
	}

	if !pipeline.Succeeded(outcomes) {
		failed := 0
		for _, o := range outcomes {
			if o.Status != pipeline.StatusSucceeded {
				failed++
			}
		}
		return fmt.Errorf("%d of %d targets failed", failed, len(outcomes))
	}
	return nil
}

// buildChain resolves key material into credentials and assembles the
// hop chain. The target hop inherits the jump credential unless its own
// key was supplied.
func buildChain(cfg *config.Config) (ssh.Chain, error) {
	jumpPEM, err := cfg.Jump.Key.Load()
	if err != nil {
		return nil, fmt.Errorf("jump host key: %w", err)
	}
	jumpCred, err := ssh.ParseCredential(jumpPEM)
	if err != nil {
		return nil, fmt.Errorf("jump host key: %w", err)
	}

	chain := ssh.Chain{{
		Host: ssh.Host{
			Role: ssh.RoleJump,
			Addr: cfg.Jump.Addr,
			Port: cfg.Jump.Port,
			User: cfg.Jump.User,
		},
		Credential: jumpCred,
	}}

	if cfg.Target == nil {
		return chain, nil
	}

	var targetCred *ssh.Credential
	if cfg.Target.Key.Present() {
		targetPEM, err := cfg.Target.Key.Load()
		if err != nil {
			return nil, fmt.Errorf("target host key: %w", err)
		}
		targetCred, err = ssh.ParseCredential(targetPEM)
		if err != nil {
			return nil, fmt.Errorf("target host key: %w", err)
		}
	}

	chain = append(chain, ssh.Hop{
		Host: ssh.Host{
			Role: ssh.RoleTarget,
			Addr: cfg.Target.Addr,
			Port: cfg.Target.Port,
			User: cfg.Target.User,
		},
		Credential: targetCred, // nil inherits the jump credential
	})
	return chain, nil
}

// buildItems assembles the work list, either from a targets manifest or
// from the single target described by flags.
func buildItems(cfg *config.Config, manifestPath string, single TargetFlags) ([]pipeline.Item, error) {
	host := probeHost(cfg)

	if manifestPath == "" {
		kind, err := deploy.ParseKind(single.Kind)
		if err != nil {
			return nil, err
		}
		target := deploy.Target{
			Service:   single.Service,
			Namespace: single.Namespace,
			Kind:      kind,
			Image:     single.Image,
		}
		if err := target.Validate(); err != nil {
			return nil, err
		}
		return []pipeline.Item{{Target: target, Probe: baseProbe(cfg.Probe, host)}}, nil
	}

	m, err := loadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	items := make([]pipeline.Item, 0, len(m.Targets))
	for _, mt := range m.Targets {
		service, namespace, kindRaw, image, mp := m.Resolve(mt)
		kind, err := deploy.ParseKind(kindRaw)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", service, err)
		}
		target := deploy.Target{Service: service, Namespace: namespace, Kind: kind, Image: image}
		if err := target.Validate(); err != nil {
			return nil, fmt.Errorf("target %s: %w", service, err)
		}

		probe := baseProbe(cfg.Probe, host)
		if mp.Host != "" {
			probe.Host = mp.Host
		}
		if mp.Port != 0 {
			probe.Port = mp.Port
		}
		if mp.Path != "" {
			probe.Path = mp.Path
		}
		if mp.MaxAttempts != 0 {
			probe.MaxAttempts = mp.MaxAttempts
		}
		if mp.PollInterval != 0 {
			probe.Interval = mp.PollInterval.Std()
		}
		if mp.SettleDelay != 0 {
			probe.SettleDelay = mp.SettleDelay.Std()
		}
		if mp.LogLines != 0 {
			probe.LogLines = mp.LogLines
		}

		items = append(items, pipeline.Item{Target: target, Probe: probe})
	}
	return items, nil
}

// probeHost picks the default host the health endpoint is reached on:
// an explicit --health-host wins, then the target host, then the jump
// host for single-hop chains.
func probeHost(cfg *config.Config) string {
	if cfg.Probe.Host != "" {
		return cfg.Probe.Host
	}
	if cfg.Target != nil {
		return cfg.Target.Addr
	}
	return cfg.Jump.Addr
}

// baseProbe maps the run-level probe configuration onto one target's
// probe before manifest overrides are applied.
func baseProbe(p config.ProbeConfig, host string) health.Probe {
	return health.Probe{
		Host:        host,
		Port:        p.Port,
		Path:        p.Path,
		Interval:    p.PollInterval,
		MaxAttempts: p.MaxAttempts,
		SettleDelay: p.SettleDelay,
		LogLines:    p.LogLines,
	}
}

// printOutcomesJSON writes the outcome report as indented JSON.
func printOutcomesJSON(outcomes []pipeline.Outcome) error {
	data, err := json.MarshalIndent(outcomes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outcome report: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
