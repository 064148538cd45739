// Package main is the entry point for the jumpship CLI.
//
// jumpship deploys workload images to Kubernetes clusters reachable only
// through an SSH jump host, then verifies the new workload actually
// answers its health endpoint before declaring success.
//
// Commands: deploy, verify, doctor, version, completion.
//
// For detailed usage information, run:
//
//	jumpship --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/halcyonops/jumpship/cmd/jumpship/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)

	// An interrupt cancels the run but cleanup of in-flight probe
	// resources still completes before exit.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
