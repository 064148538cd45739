package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/halcyonops/jumpship/internal/util/backoff"
)

// State is a position in the verification state machine.
type State string

const (
	StateSettling  State = "settling"
	StateProbing   State = "probing"
	StateHealthy   State = "healthy"
	StateExhausted State = "exhausted"
)

const (
	defaultPath        = "/health"
	defaultMaxAttempts = 10
	defaultInterval    = 2 * time.Second
	defaultSettleDelay = 5 * time.Second
	defaultLogLines    = 20

	// maxBodyBytes caps the healthy-response body kept as a diagnostic.
	maxBodyBytes = 4 << 10
)

// Probe is the polling configuration. It is a value and is never
// mutated while polling; each attempt reads it.
type Probe struct {
	Host        string
	Port        int
	Path        string
	Interval    time.Duration
	MaxAttempts int
	SettleDelay time.Duration
	LogLines    int
}

// withDefaults fills zero fields with the standard probe shape.
func (p Probe) withDefaults() Probe {
	if p.Host == "" {
		p.Host = "localhost"
	}
	if p.Path == "" {
		p.Path = defaultPath
	}
	if p.Interval == 0 {
		p.Interval = defaultInterval
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.SettleDelay == 0 {
		p.SettleDelay = defaultSettleDelay
	}
	if p.LogLines == 0 {
		p.LogLines = defaultLogLines
	}
	return p
}

// URL is the health endpoint the probe polls.
func (p Probe) URL() string {
	host := p.Host
	if p.Port != 0 {
		host = net.JoinHostPort(p.Host, fmt.Sprintf("%d", p.Port))
	}
	path := p.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + host + path
}

// Attempt records one probe observation.
type Attempt struct {
	Index int
	Time  time.Time
	Err   error // nil means the endpoint answered 200
}

// Report is the terminal record of one verification run.
type Report struct {
	State       State
	Attempts    []Attempt
	Body        string   // healthy response body
	Diagnostics []string // trailing resource logs when exhausted
}

// TimeoutError reports probe exhaustion without a healthy response.
type TimeoutError struct {
	Endpoint    string
	Attempts    int
	LastErr     error
	Diagnostics []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("endpoint %s not healthy after %d attempts: %v", e.Endpoint, e.Attempts, e.LastErr)
}

func (e *TimeoutError) Unwrap() error { return e.LastErr }

// Resource is a transient artifact the harness owns for the duration of
// one verification, typically a locally started probe container.
type Resource interface {
	// Logs returns up to n trailing log lines for diagnostics.
	Logs(ctx context.Context, n int) ([]string, error)
	// Release tears the resource down.
	Release(ctx context.Context) error
}

// releaser guarantees exactly-once release on every exit path.
type releaser struct {
	once sync.Once
	res  Resource
	err  error
}

func (r *releaser) release(ctx context.Context) error {
	if r.res == nil {
		return nil
	}
	r.once.Do(func() { r.err = r.res.Release(ctx) })
	return r.err
}

// Harness drives the Settling → Probing → {Healthy, Exhausted} state
// machine for one endpoint at a time. Attempts are strictly sequential.
type Harness struct {
	client  *http.Client
	sleeper backoff.Sleeper
	now     func() time.Time
}

// Option configures a Harness.
type Option func(*Harness)

// WithHTTPClient overrides the probe HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *Harness) { h.client = c }
}

// WithSleeper injects the wait implementation for settle and backoff.
func WithSleeper(s Sleeper) Option {
	return func(h *Harness) { h.sleeper = s }
}

// Sleeper is re-exported so callers configure the harness and its
// backoff policy with one fake.
type Sleeper = backoff.Sleeper

// WithClock injects the timestamp source for attempt records.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) { h.now = now }
}

// NewHarness creates a Harness with defaults suitable for production.
func NewHarness(opts ...Option) *Harness {
	h := &Harness{
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Verify waits the settle delay, then polls the probe endpoint until it
// answers 200 or the attempt bound is reached. resource may be nil when
// probing a remote workload that persists independently; when non-nil
// it is released exactly once on every exit path, including
// cancellation, and its trailing logs are captured before release when
// verification is exhausted.
func (h *Harness) Verify(ctx context.Context, probe Probe, resource Resource) (Report, error) {
	probe = probe.withDefaults()

	rel := &releaser{res: resource}
	// Cleanup must run even when ctx was the reason we stopped.
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() { _ = rel.release(cleanupCtx) }()

	report := Report{State: StateSettling}

	if probe.MaxAttempts < 1 {
		return report, fmt.Errorf("max attempts must be at least 1, got %d", probe.MaxAttempts)
	}

	sleeper := h.sleeper
	if sleeper == nil {
		sleeper = backoff.New().Sleeper
	}
	if err := sleeper.Sleep(ctx, probe.SettleDelay); err != nil {
		return report, fmt.Errorf("interrupted while settling: %w", err)
	}

	report.State = StateProbing
	policy := backoff.New(
		backoff.WithMaxAttempts(probe.MaxAttempts),
		backoff.WithInterval(probe.Interval),
		backoff.WithSleeper(sleeper),
	)

	endpoint := probe.URL()
	var lastErr error
	err := policy.Retry(ctx, func(attempt int) error {
		body, err := h.probeOnce(ctx, endpoint)
		report.Attempts = append(report.Attempts, Attempt{Index: attempt, Time: h.now(), Err: err})
		if err != nil {
			lastErr = err
			return err
		}
		report.Body = body
		return nil
	})

	if err == nil {
		report.State = StateHealthy
		return report, nil
	}

	// Exhausted means the attempt bound was actually reached. A cancelled
	// wait (or a run context that died on the final attempt) is a distinct
	// exit: report it as an interruption, keeping the cancellation cause
	// in the chain, and never enter the terminal Exhausted state.
	var interrupted *backoff.InterruptedError
	if errors.As(err, &interrupted) || ctx.Err() != nil {
		return report, fmt.Errorf("interrupted while probing %s: %w", endpoint, err)
	}

	report.State = StateExhausted
	report.Diagnostics = h.collectDiagnostics(cleanupCtx, rel, probe.LogLines)
	return report, &TimeoutError{
		Endpoint:    endpoint,
		Attempts:    len(report.Attempts),
		LastErr:     lastErr,
		Diagnostics: report.Diagnostics,
	}
}

// probeOnce issues a single health request. Any non-200 answer,
// connection refusal, or timeout is a failed attempt.
func (h *Harness) probeOnce(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	// Drain the remainder to allow connection reuse.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return string(body), nil
}

// collectDiagnostics captures trailing logs before the resource is
// gone, so an exhausted run stays debuggable.
func (h *Harness) collectDiagnostics(ctx context.Context, rel *releaser, lines int) []string {
	if rel.res == nil {
		return nil
	}
	logs, err := rel.res.Logs(ctx, lines)
	if err != nil {
		return []string{fmt.Sprintf("failed to collect logs: %v", err)}
	}
	return logs
}
