package pipeline

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Observer receives structured events as the pipeline progresses.
type Observer interface {
	// Printf emits an unstructured progress line.
	Printf(format string, v ...interface{})

	// Event emits a structured pipeline event.
	Event(event Event)
}

// Event is one structured pipeline occurrence.
type Event struct {
	Type      EventType
	Target    string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// EventType enumerates pipeline events.
type EventType string

const (
	// EventDeployStarted indicates a target's image update was issued.
	EventDeployStarted EventType = "deploy.started"
	// EventDeployAccepted indicates the cluster API accepted the update.
	EventDeployAccepted EventType = "deploy.accepted"
	// EventDeployFailed indicates the update was rejected or unreachable.
	EventDeployFailed EventType = "deploy.failed"

	// EventProbeStarted indicates health polling began for a target.
	EventProbeStarted EventType = "probe.started"
	// EventProbeHealthy indicates the endpoint answered 200.
	EventProbeHealthy EventType = "probe.healthy"
	// EventProbeExhausted indicates the attempt budget was spent.
	EventProbeExhausted EventType = "probe.exhausted"
)

// ConsoleObserver writes events through the standard log package.
type ConsoleObserver struct{}

// NewConsoleObserver creates a console-based observer.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{}
}

// Printf implements Observer.
func (o *ConsoleObserver) Printf(format string, v ...interface{}) {
	log.Printf(format, v...)
}

// Event implements Observer.
func (o *ConsoleObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	log.Print(formatEvent(event))
}

func formatEvent(event Event) string {
	parts := []string{string(event.Type)}
	if event.Target != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Target))
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}
	if len(event.Fields) > 0 {
		fieldParts := make([]string, 0, len(event.Fields))
		for k, v := range event.Fields {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, v))
		}
		parts = append(parts, fmt.Sprintf("(%s)", strings.Join(fieldParts, ", ")))
	}
	return strings.Join(parts, " ")
}
