package pipeline

import (
	"errors"

	"github.com/halcyonops/jumpship/internal/deploy"
	"github.com/halcyonops/jumpship/internal/health"
	"github.com/halcyonops/jumpship/internal/platform/ssh"
)

// Status is the terminal state of one target's pipeline.
type Status string

const (
	StatusSucceeded Status = "Succeeded"
	StatusFailed    Status = "Failed"
)

// FailureKind classifies why a target failed, for the report only; the
// process exit code does not distinguish them.
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureConnection    FailureKind = "connection"
	FailureAuth          FailureKind = "auth"
	FailureRemoteCommand FailureKind = "remote-command"
	FailureHealthTimeout FailureKind = "health-timeout"
	FailureOther         FailureKind = "other"
)

// Outcome is the terminal record for one deployment target. It is
// created once, when that target's pipeline finishes, and never mutated.
type Outcome struct {
	Target      deploy.Target `json:"target"`
	Status      Status        `json:"status"`
	Failure     FailureKind   `json:"failure,omitempty"`
	Attempts    int           `json:"attempts"`
	Err         string        `json:"error,omitempty"`
	Diagnostics []string      `json:"diagnostics,omitempty"`
}

// classifyFailure maps an error to its report category.
func classifyFailure(err error) FailureKind {
	var connErr *ssh.ConnectionError
	var authErr *ssh.AuthError
	var cmdErr *deploy.RemoteCommandError
	var timeoutErr *health.TimeoutError
	switch {
	case errors.As(err, &connErr):
		return FailureConnection
	case errors.As(err, &authErr):
		return FailureAuth
	case errors.As(err, &cmdErr):
		return FailureRemoteCommand
	case errors.As(err, &timeoutErr):
		return FailureHealthTimeout
	default:
		return FailureOther
	}
}
