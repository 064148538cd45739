package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonops/jumpship/internal/deploy"
	"github.com/halcyonops/jumpship/internal/health"
	"github.com/halcyonops/jumpship/internal/platform/ssh"
)

// fakeDeployer scripts per-target deploy results.
type fakeDeployer struct {
	mu     sync.Mutex
	errs   map[string]error
	called []string
}

func (f *fakeDeployer) Deploy(_ context.Context, target deploy.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = append(f.called, target.Name())
	return f.errs[target.Name()]
}

// fakeVerifier scripts per-endpoint verification results.
type fakeVerifier struct {
	mu       sync.Mutex
	reports  map[string]health.Report
	errs     map[string]error
	verified []string
}

func (f *fakeVerifier) Verify(_ context.Context, probe health.Probe, _ health.Resource) (health.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified = append(f.verified, probe.Host)
	return f.reports[probe.Host], f.errs[probe.Host]
}

// recordingObserver captures summary lines.
type recordingObserver struct {
	mu     sync.Mutex
	lines  []string
	events []Event
}

func (r *recordingObserver) Printf(format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fmt.Sprintf(format, v...))
}

func (r *recordingObserver) Event(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func target(service string) deploy.Target {
	return deploy.Target{
		Service:   service,
		Namespace: "prod",
		Kind:      deploy.KindDeployment,
		Image:     "registry/" + service + ":v2",
	}
}

func item(service string) Item {
	return Item{
		Target: target(service),
		Probe:  health.Probe{Host: service, Port: 8080},
	}
}

func healthyReport(attempts int) health.Report {
	r := health.Report{State: health.StateHealthy}
	for i := 1; i <= attempts; i++ {
		r.Attempts = append(r.Attempts, health.Attempt{Index: i})
	}
	return r
}

func TestRun_AllTargetsSucceed(t *testing.T) {
	t.Parallel()
	deployer := &fakeDeployer{}
	verifier := &fakeVerifier{reports: map[string]health.Report{
		"api": healthyReport(3),
		"web": healthyReport(1),
	}}
	obs := &recordingObserver{}
	c := NewCoordinator(deployer, verifier, WithObserver(obs), WithConcurrency(2))

	outcomes := c.Run(context.Background(), []Item{item("api"), item("web")})

	require.Len(t, outcomes, 2)
	assert.True(t, Succeeded(outcomes))
	// Sorted by target name.
	assert.Equal(t, "prod/api", outcomes[0].Target.Name())
	assert.Equal(t, 3, outcomes[0].Attempts)
	assert.Equal(t, "prod/web", outcomes[1].Target.Name())
	assert.Contains(t, obs.lines[len(obs.lines)-1], "2 succeeded, 0 failed")
}

func TestRun_DeployFailureSkipsVerification(t *testing.T) {
	t.Parallel()
	deployer := &fakeDeployer{errs: map[string]error{
		"prod/api": &ssh.ConnectionError{Hop: "jump.example.com:22", Err: errors.New("connection refused")},
	}}
	verifier := &fakeVerifier{}
	c := NewCoordinator(deployer, verifier, WithObserver(&recordingObserver{}))

	outcomes := c.Run(context.Background(), []Item{item("api")})

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Equal(t, FailureConnection, outcomes[0].Failure)
	assert.Empty(t, verifier.verified, "harness must not run after a deploy failure")
	assert.False(t, Succeeded(outcomes))
}

func TestRun_AuthFailureDoesNotAffectSibling(t *testing.T) {
	t.Parallel()
	deployer := &fakeDeployer{errs: map[string]error{
		"prod/api": &ssh.AuthError{Hop: "jump.example.com:22", Err: errors.New("key rejected")},
	}}
	verifier := &fakeVerifier{reports: map[string]health.Report{"web": healthyReport(2)}}
	obs := &recordingObserver{}
	c := NewCoordinator(deployer, verifier, WithObserver(obs), WithConcurrency(2))

	outcomes := c.Run(context.Background(), []Item{item("api"), item("web")})

	require.Len(t, outcomes, 2)
	byName := map[string]Outcome{}
	for _, o := range outcomes {
		byName[o.Target.Name()] = o
	}
	assert.Equal(t, StatusFailed, byName["prod/api"].Status)
	assert.Equal(t, FailureAuth, byName["prod/api"].Failure)
	assert.Equal(t, StatusSucceeded, byName["prod/web"].Status)
	assert.Contains(t, obs.lines[len(obs.lines)-1], "1 succeeded, 1 failed")
}

func TestRun_HealthTimeoutCarriesDiagnostics(t *testing.T) {
	t.Parallel()
	diag := []string{"boot", "panic: db unreachable"}
	verifier := &fakeVerifier{
		reports: map[string]health.Report{"api": {
			State:       health.StateExhausted,
			Attempts:    healthyReport(10).Attempts,
			Diagnostics: diag,
		}},
		errs: map[string]error{"api": &health.TimeoutError{
			Endpoint: "http://api:8080/health", Attempts: 10, LastErr: errors.New("unexpected status 503"), Diagnostics: diag,
		}},
	}
	c := NewCoordinator(&fakeDeployer{}, verifier, WithObserver(&recordingObserver{}))

	outcomes := c.Run(context.Background(), []Item{item("api")})

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Equal(t, FailureHealthTimeout, outcomes[0].Failure)
	assert.Equal(t, 10, outcomes[0].Attempts)
	assert.Equal(t, diag, outcomes[0].Diagnostics)
}

func TestRun_DeployPrecedesVerifyPerTarget(t *testing.T) {
	t.Parallel()
	var order []string
	var mu sync.Mutex
	deployer := &fakeDeployer{}
	verifier := &fakeVerifier{reports: map[string]health.Report{"api": healthyReport(1)}}
	c := NewCoordinator(deployerFunc(func(ctx context.Context, tg deploy.Target) error {
		mu.Lock()
		order = append(order, "deploy")
		mu.Unlock()
		return deployer.Deploy(ctx, tg)
	}), verifierFunc(func(ctx context.Context, p health.Probe, r health.Resource) (health.Report, error) {
		mu.Lock()
		order = append(order, "verify")
		mu.Unlock()
		return verifier.Verify(ctx, p, r)
	}), WithObserver(&recordingObserver{}))

	c.Run(context.Background(), []Item{item("api")})
	assert.Equal(t, []string{"deploy", "verify"}, order)
}

type deployerFunc func(context.Context, deploy.Target) error

func (f deployerFunc) Deploy(ctx context.Context, t deploy.Target) error { return f(ctx, t) }

type verifierFunc func(context.Context, health.Probe, health.Resource) (health.Report, error)

func (f verifierFunc) Verify(ctx context.Context, p health.Probe, r health.Resource) (health.Report, error) {
	return f(ctx, p, r)
}

func TestRun_NoItems(t *testing.T) {
	t.Parallel()
	c := NewCoordinator(&fakeDeployer{}, &fakeVerifier{}, WithObserver(&recordingObserver{}))
	outcomes := c.Run(context.Background(), nil)
	assert.Empty(t, outcomes)
	assert.True(t, Succeeded(outcomes))
}

func TestClassifyFailure(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"connection", &ssh.ConnectionError{Hop: "h"}, FailureConnection},
		{"auth", &ssh.AuthError{Hop: "h"}, FailureAuth},
		{"remote command", &deploy.RemoteCommandError{Target: "prod/api"}, FailureRemoteCommand},
		{"health timeout", &health.TimeoutError{Attempts: 10}, FailureHealthTimeout},
		{"wrapped auth", fmt.Errorf("deploy: %w", &ssh.AuthError{Hop: "h"}), FailureAuth},
		{"other", errors.New("boom"), FailureOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, classifyFailure(tt.err))
		})
	}
}

func TestFormatEvent(t *testing.T) {
	t.Parallel()
	got := formatEvent(Event{
		Type:    EventDeployAccepted,
		Target:  "prod/api",
		Message: "done",
		Fields:  map[string]string{"image": "registry/x:v2"},
	})
	assert.True(t, strings.HasPrefix(got, "deploy.accepted [prod/api] done"))
	assert.Contains(t, got, "image=registry/x:v2")
}
