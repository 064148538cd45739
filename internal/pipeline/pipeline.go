package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/halcyonops/jumpship/internal/deploy"
	"github.com/halcyonops/jumpship/internal/health"
	"github.com/halcyonops/jumpship/internal/util/async"
)

const defaultConcurrency = 4

// Deployer issues one workload image update.
type Deployer interface {
	Deploy(ctx context.Context, target deploy.Target) error
}

// Verifier confirms the workload answers its health endpoint.
type Verifier interface {
	Verify(ctx context.Context, probe health.Probe, resource health.Resource) (health.Report, error)
}

// Item pairs one deployment target with its health probe.
type Item struct {
	Target deploy.Target
	Probe  health.Probe
}

// Coordinator fans targets out to workers, runs deploy-then-verify per
// target, and aggregates outcomes. The outcome list and summary
// counters are the only shared mutable state, guarded by one mutex.
type Coordinator struct {
	deployer    Deployer
	verifier    Verifier
	observer    Observer
	metrics     *Metrics
	concurrency int
	now         func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithObserver sets the event sink.
func WithObserver(o Observer) CoordinatorOption {
	return func(c *Coordinator) { c.observer = o }
}

// WithMetrics attaches run metrics.
func WithMetrics(m *Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithConcurrency sets the worker ceiling.
func WithConcurrency(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(deployer Deployer, verifier Verifier, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		deployer:    deployer,
		verifier:    verifier,
		observer:    NewConsoleObserver(),
		concurrency: defaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes every item and returns one Outcome per item, ordered by
// target name. Failures in one item never affect another; outcomes may
// finish in any order.
func (c *Coordinator) Run(ctx context.Context, items []Item) []Outcome {
	var mu sync.Mutex
	outcomes := make([]Outcome, 0, len(items))

	record := func(o Outcome, started time.Time) {
		c.metrics.targetFinished(o, c.now().Sub(started))
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	tasks := make([]async.Task, 0, len(items))
	for _, item := range items {
		tasks = append(tasks, async.Task{
			Name: item.Target.Name(),
			Func: func(ctx context.Context) error {
				started := c.now()
				c.metrics.targetStarted()
				record(c.runOne(ctx, item), started)
				return nil
			},
		})
	}

	// Worker errors are folded into outcomes, so RunBounded cannot fail.
	_ = async.RunBounded(ctx, c.concurrency, tasks)

	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].Target.Name() < outcomes[j].Target.Name()
	})

	c.summarize(outcomes)
	return outcomes
}

// runOne executes deploy-then-verify for a single target. Deploy always
// finishes before the first probe attempt; a deploy failure records a
// Failed outcome without ever invoking the verifier.
func (c *Coordinator) runOne(ctx context.Context, item Item) Outcome {
	name := item.Target.Name()

	c.observer.Event(Event{
		Type:   EventDeployStarted,
		Target: name,
		Fields: map[string]string{"image": item.Target.Image},
	})

	if err := c.deployer.Deploy(ctx, item.Target); err != nil {
		c.observer.Event(Event{Type: EventDeployFailed, Target: name, Message: err.Error()})
		return Outcome{
			Target:  item.Target,
			Status:  StatusFailed,
			Failure: classifyFailure(err),
			Err:     err.Error(),
		}
	}
	c.observer.Event(Event{Type: EventDeployAccepted, Target: name})

	c.observer.Event(Event{
		Type:   EventProbeStarted,
		Target: name,
		Fields: map[string]string{"endpoint": item.Probe.URL()},
	})

	// Remote workloads persist independently; the harness owns no
	// transient resource on this path.
	report, err := c.verifier.Verify(ctx, item.Probe, nil)
	if err != nil {
		c.observer.Event(Event{Type: EventProbeExhausted, Target: name, Message: err.Error()})
		return Outcome{
			Target:      item.Target,
			Status:      StatusFailed,
			Failure:     classifyFailure(err),
			Attempts:    len(report.Attempts),
			Err:         err.Error(),
			Diagnostics: report.Diagnostics,
		}
	}

	c.observer.Event(Event{
		Type:   EventProbeHealthy,
		Target: name,
		Fields: map[string]string{"attempts": fmt.Sprintf("%d", len(report.Attempts))},
	})
	return Outcome{
		Target:   item.Target,
		Status:   StatusSucceeded,
		Attempts: len(report.Attempts),
	}
}

// summarize prints one advisory line per target plus aggregate counts.
func (c *Coordinator) summarize(outcomes []Outcome) {
	succeeded := 0
	for _, o := range outcomes {
		if o.Status == StatusSucceeded {
			succeeded++
			c.observer.Printf("%-9s %s (attempts: %d)", o.Status, o.Target.Name(), o.Attempts)
			continue
		}
		c.observer.Printf("%-9s %s (%s): %s", o.Status, o.Target.Name(), o.Failure, o.Err)
	}
	c.observer.Printf("%d succeeded, %d failed", succeeded, len(outcomes)-succeeded)
}

// Succeeded reports whether every outcome succeeded; it drives the
// process exit status.
func Succeeded(outcomes []Outcome) bool {
	for _, o := range outcomes {
		if o.Status != StatusSucceeded {
			return false
		}
	}
	return true
}
