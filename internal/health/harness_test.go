package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSleeper records delays without waiting.
type fakeSleeper struct {
	slept []time.Duration
	errAt int // return context.Canceled on the nth call (1-based), 0 = never
	calls int
}

func (f *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	f.calls++
	f.slept = append(f.slept, d)
	if f.errAt != 0 && f.calls >= f.errAt {
		return context.Canceled
	}
	return nil
}

// fakeResource tracks release discipline.
type fakeResource struct {
	released         atomic.Int32
	logsAfterRelease bool
	logLines         []string
}

func (f *fakeResource) Logs(_ context.Context, n int) ([]string, error) {
	if f.released.Load() > 0 {
		f.logsAfterRelease = true
	}
	if n < len(f.logLines) {
		return f.logLines[len(f.logLines)-n:], nil
	}
	return f.logLines, nil
}

func (f *fakeResource) Release(context.Context) error {
	f.released.Add(1)
	return nil
}

// flakyServer answers 200 starting at the given attempt.
func flakyServer(t *testing.T, healthyFrom int) *httptest.Server {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if int(hits.Add(1)) >= healthyFrom {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func probeFor(srv *httptest.Server, maxAttempts int) Probe {
	addr := strings.TrimPrefix(srv.URL, "http://")
	host, port, _ := strings.Cut(addr, ":")
	p := Probe{
		Host:        host,
		Path:        "/health",
		Interval:    2 * time.Second,
		MaxAttempts: maxAttempts,
		SettleDelay: 5 * time.Second,
		LogLines:    20,
	}
	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			panic(err)
		}
		p.Port = n
	}
	return p
}

func TestVerify_HealthyOnThirdAttempt(t *testing.T) {
	t.Parallel()
	srv := flakyServer(t, 3)
	sleeper := &fakeSleeper{}
	resource := &fakeResource{}
	h := NewHarness(WithSleeper(sleeper))

	report, err := h.Verify(context.Background(), probeFor(srv, 10), resource)
	require.NoError(t, err)

	assert.Equal(t, StateHealthy, report.State)
	assert.Len(t, report.Attempts, 3)
	assert.Equal(t, `{"status":"ok"}`, report.Body)
	// Settle delay, then one backoff per failed attempt.
	assert.Equal(t, []time.Duration{
		5 * time.Second,
		2 * time.Second,
		2 * time.Second,
	}, sleeper.slept)
	assert.Equal(t, int32(1), resource.released.Load())
}

func TestVerify_ExhaustedCollectsDiagnostics(t *testing.T) {
	t.Parallel()
	srv := flakyServer(t, 100) // never healthy within the budget
	sleeper := &fakeSleeper{}
	resource := &fakeResource{logLines: []string{"boot", "listening", "panic: db unreachable"}}
	h := NewHarness(WithSleeper(sleeper))

	report, err := h.Verify(context.Background(), probeFor(srv, 10), resource)

	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, StateExhausted, report.State)
	assert.Len(t, report.Attempts, 10)
	assert.Equal(t, 10, timeoutErr.Attempts)
	assert.Equal(t, []string{"boot", "listening", "panic: db unreachable"}, report.Diagnostics)
	assert.Equal(t, int32(1), resource.released.Load())
	assert.False(t, resource.logsAfterRelease, "diagnostics must be captured before release")
	// Settle + 9 inter-attempt backoffs; no sleep after the final attempt.
	assert.Len(t, sleeper.slept, 10)
}

func TestVerify_SingleAttemptBound(t *testing.T) {
	t.Parallel()
	srv := flakyServer(t, 2)
	h := NewHarness(WithSleeper(&fakeSleeper{}))

	report, err := h.Verify(context.Background(), probeFor(srv, 1), nil)
	require.Error(t, err)
	assert.Len(t, report.Attempts, 1)
}

func TestVerify_ConnectionRefusedCountsAsAttempt(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // probe a dead endpoint

	h := NewHarness(WithSleeper(&fakeSleeper{}))
	probe := probeFor(srv, 3)

	report, err := h.Verify(context.Background(), probe, nil)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Len(t, report.Attempts, 3)
	for _, attempt := range report.Attempts {
		assert.Error(t, attempt.Err)
	}
}

func TestVerify_Non200IsNotHealthy(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	h := NewHarness(WithSleeper(&fakeSleeper{}))
	_, err := h.Verify(context.Background(), probeFor(srv, 2), nil)
	require.Error(t, err)
}

func TestVerify_CancelledDuringSettleStillReleases(t *testing.T) {
	t.Parallel()
	srv := flakyServer(t, 1)
	resource := &fakeResource{}
	h := NewHarness(WithSleeper(&fakeSleeper{errAt: 1}))

	report, err := h.Verify(context.Background(), probeFor(srv, 10), resource)
	require.Error(t, err)
	assert.Equal(t, StateSettling, report.State)
	assert.Empty(t, report.Attempts)
	assert.Equal(t, int32(1), resource.released.Load())
}

func TestVerify_CancelledBetweenAttemptsStillReleases(t *testing.T) {
	t.Parallel()
	srv := flakyServer(t, 100)
	resource := &fakeResource{}
	// First sleep (settle) succeeds, second (backoff) is cancelled.
	h := NewHarness(WithSleeper(&fakeSleeper{errAt: 2}))

	_, err := h.Verify(context.Background(), probeFor(srv, 10), resource)
	require.Error(t, err)
	assert.Equal(t, int32(1), resource.released.Load())
}

func TestVerify_CancelledIsNotExhausted(t *testing.T) {
	t.Parallel()
	srv := flakyServer(t, 100)
	resource := &fakeResource{}
	// The backoff sleep after the first attempt is cancelled; only 1 of
	// 10 attempts ever ran, so this must not read as exhaustion.
	h := NewHarness(WithSleeper(&fakeSleeper{errAt: 2}))

	report, err := h.Verify(context.Background(), probeFor(srv, 10), resource)
	require.Error(t, err)

	assert.Equal(t, StateProbing, report.State)
	assert.Len(t, report.Attempts, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorAs(t, err, new(*TimeoutError))
	assert.Equal(t, int32(1), resource.released.Load())
}

func TestVerify_RealContextCancelReleases(t *testing.T) {
	t.Parallel()
	srv := flakyServer(t, 100)
	resource := &fakeResource{}
	h := NewHarness() // real sleeper; cancellation must cut the wait short

	probe := probeFor(srv, 10)
	probe.SettleDelay = time.Millisecond
	probe.Interval = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var report Report
	var err error
	go func() {
		defer close(done)
		report, err = h.Verify(ctx, probe, resource)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Verify did not return after cancellation")
	}

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotEqual(t, StateExhausted, report.State)
	assert.Equal(t, int32(1), resource.released.Load(), "release must run under a cancelled context")
}

func TestVerify_NegativeAttemptBoundRejected(t *testing.T) {
	t.Parallel()
	srv := flakyServer(t, 1)
	resource := &fakeResource{}
	h := NewHarness(WithSleeper(&fakeSleeper{}))

	probe := probeFor(srv, 10)
	probe.MaxAttempts = -3

	report, err := h.Verify(context.Background(), probe, resource)
	require.Error(t, err)

	assert.Contains(t, err.Error(), "max attempts")
	assert.NotErrorAs(t, err, new(*TimeoutError))
	assert.NotEqual(t, StateExhausted, report.State)
	assert.Empty(t, report.Attempts)
	assert.Equal(t, int32(1), resource.released.Load())
}

func TestVerify_NilResource(t *testing.T) {
	t.Parallel()
	srv := flakyServer(t, 1)
	h := NewHarness(WithSleeper(&fakeSleeper{}))

	report, err := h.Verify(context.Background(), probeFor(srv, 10), nil)
	require.NoError(t, err)
	assert.Equal(t, StateHealthy, report.State)
	assert.Nil(t, report.Diagnostics)
}

func TestProbe_URL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		probe Probe
		want  string
	}{
		{
			name:  "host and port",
			probe: Probe{Host: "10.0.0.5", Port: 8080, Path: "/health"},
			want:  "http://10.0.0.5:8080/health",
		},
		{
			name:  "path without leading slash",
			probe: Probe{Host: "svc.prod", Port: 80, Path: "healthz"},
			want:  "http://svc.prod:80/healthz",
		},
		{
			name:  "no port",
			probe: Probe{Host: "svc.prod", Path: "/health"},
			want:  "http://svc.prod/health",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.probe.URL())
		})
	}
}

func TestProbe_Defaults(t *testing.T) {
	t.Parallel()
	p := Probe{}.withDefaults()
	assert.Equal(t, "/health", p.Path)
	assert.Equal(t, 10, p.MaxAttempts)
	assert.Equal(t, 2*time.Second, p.Interval)
	assert.Equal(t, 5*time.Second, p.SettleDelay)
	assert.Equal(t, 20, p.LogLines)
}
