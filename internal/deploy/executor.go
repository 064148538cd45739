package deploy

import (
	"context"
	"fmt"
	"regexp"

	"github.com/halcyonops/jumpship/internal/platform/ssh"
)

// Kind is the workload resource kind the image update applies to.
type Kind string

const (
	KindDeployment  Kind = "deployment"
	KindStatefulSet Kind = "statefulset"
)

// ParseKind maps user input to a workload kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindDeployment, KindStatefulSet:
		return Kind(s), nil
	case "":
		return KindDeployment, nil
	default:
		return "", fmt.Errorf("unsupported workload kind %q (expected deployment or statefulset)", s)
	}
}

var (
	// DNS-1123 label, as the API server enforces for resource names.
	namePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)
	// Registry/repository[:tag][@digest] character set.
	imagePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._:/@-]*$`)
)

// Target names one workload image update. Immutable once an attempt
// begins.
type Target struct {
	Service   string
	Namespace string
	Kind      Kind
	Image     string
}

// Validate rejects targets whose fields could not have come from valid
// cluster resource names. This also keeps the remote command free of
// shell metacharacters.
func (t Target) Validate() error {
	if !namePattern.MatchString(t.Service) {
		return fmt.Errorf("invalid service name %q", t.Service)
	}
	if !namePattern.MatchString(t.Namespace) {
		return fmt.Errorf("invalid namespace %q", t.Namespace)
	}
	if t.Kind != KindDeployment && t.Kind != KindStatefulSet {
		return fmt.Errorf("invalid workload kind %q", t.Kind)
	}
	if !imagePattern.MatchString(t.Image) {
		return fmt.Errorf("invalid image reference %q", t.Image)
	}
	return nil
}

// Command builds the remote image update. `kubectl set image` is
// idempotent: re-issuing it with an unchanged image leaves the workload
// untouched.
func (t Target) Command() string {
	return fmt.Sprintf("kubectl set image %s/%s %s=%s --namespace %s",
		t.Kind, t.Service, t.Service, t.Image, t.Namespace)
}

// Name returns the namespace-qualified workload name for reports.
func (t Target) Name() string {
	return fmt.Sprintf("%s/%s", t.Namespace, t.Service)
}

// RemoteCommandError reports a non-zero exit from a successfully
// invoked remote command.
type RemoteCommandError struct {
	Target   string
	ExitCode int
	Stderr   string
}

func (e *RemoteCommandError) Error() string {
	return fmt.Sprintf("remote update of %s exited %d: %s", e.Target, e.ExitCode, e.Stderr)
}

// Relay abstracts the transport so the executor can be tested with a
// fake.
type Relay interface {
	Execute(ctx context.Context, chain ssh.Chain, command string) (ssh.Result, error)
}

// Executor issues workload image updates over a relay chain.
type Executor struct {
	relay Relay
	chain ssh.Chain
}

// NewExecutor creates an Executor bound to one relay chain.
func NewExecutor(relay Relay, chain ssh.Chain) *Executor {
	return &Executor{relay: relay, chain: chain}
}

// Deploy updates the target workload's image. A nil return means the
// cluster API accepted the update, not that the workload is healthy;
// health verification is the harness's job. Connection and auth errors
// propagate from the relay unchanged.
func (e *Executor) Deploy(ctx context.Context, target Target) error {
	if err := target.Validate(); err != nil {
		return err
	}

	result, err := e.relay.Execute(ctx, e.chain, target.Command())
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return &RemoteCommandError{
			Target:   target.Name(),
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		}
	}
	return nil
}
