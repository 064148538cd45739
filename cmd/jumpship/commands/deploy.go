package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/halcyonops/jumpship/cmd/jumpship/handlers"
	"github.com/halcyonops/jumpship/internal/config"
)

// Deploy returns the command that updates workload images and verifies
// the result.
//
// Required flags:
//
//	--jump-host, --jump-user: the internet-reachable intermediary host
//	--service, --namespace, --image: the workload update (unless
//	--targets-file supplies targets)
//
// Environment variables:
//
//	JUMPSHIP_JUMP_KEY: PEM private key for the jump hop (alternative
//	to --jump-key)
//	JUMPSHIP_TARGET_KEY: PEM private key for the target hop (defaults
//	to the jump key)
func Deploy() *cobra.Command {
	var (
		jumpHost   string
		jumpPort   int
		jumpUser   string
		jumpKey    string
		targetHost string
		targetPort int
		targetUser string
		targetKey  string

		service   string
		namespace string
		kind      string
		image     string

		healthHost   string
		healthPath   string
		healthPort   int
		maxAttempts  int
		pollInterval time.Duration
		settle       time.Duration
		logLines     int

		targetsFile   string
		concurrency   int
		jsonOutput    bool
		metricsListen string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Update workload images through the jump host and verify health",
		Long: `Update one or more workload images and verify each deployment.

The relay connects to the jump host, optionally hops to a private target
host, and issues the image update there. Deployment acceptance is
followed by bounded health polling; a target only counts as succeeded
once its health endpoint answers 200.

Examples:
  # Single target, two-hop chain
  jumpship deploy --jump-host bastion.example.com --jump-user deploy \
    --jump-key ~/.ssh/bastion --target-host 10.0.0.5 --target-user deploy \
    --namespace prod --service api --image registry.example.com/fleet/api:v2 \
    --health-port 8080

  # Multiple targets from a manifest
  jumpship deploy --jump-host bastion.example.com --jump-user deploy \
    --targets-file targets.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := &config.Config{
				Jump: config.HostConfig{
					Addr: jumpHost,
					Port: jumpPort,
					User: jumpUser,
					Key:  config.Key{Path: jumpKey, EnvVar: config.EnvJumpKey},
				},
				Probe: config.ProbeConfig{
					Host:         healthHost,
					Port:         healthPort,
					Path:         healthPath,
					MaxAttempts:  maxAttempts,
					PollInterval: pollInterval,
					SettleDelay:  settle,
					LogLines:     logLines,
				},
				Concurrency:   concurrency,
				MetricsListen: metricsListen,
				JSONOutput:    jsonOutput,
			}
			if targetHost != "" {
				cfg.Target = &config.HostConfig{
					Addr: targetHost,
					Port: targetPort,
					User: targetUser,
					Key:  config.Key{Path: targetKey, EnvVar: config.EnvTargetKey},
				}
			}

			return handlers.Deploy(cmd.Context(), cfg, targetsFile, handlers.TargetFlags{
				Service:   service,
				Namespace: namespace,
				Kind:      kind,
				Image:     image,
			})
		},
	}

	cmd.Flags().StringVar(&jumpHost, "jump-host", "", "Jump host address (required)")
	cmd.Flags().IntVar(&jumpPort, "jump-port", 22, "Jump host SSH port")
	cmd.Flags().StringVar(&jumpUser, "jump-user", "", "Jump host SSH user (required)")
	cmd.Flags().StringVar(&jumpKey, "jump-key", "", "Path to the jump host private key (or set JUMPSHIP_JUMP_KEY)")
	cmd.Flags().StringVar(&targetHost, "target-host", "", "Private target host address (absent means single-hop chain)")
	cmd.Flags().IntVar(&targetPort, "target-port", 22, "Target host SSH port")
	cmd.Flags().StringVar(&targetUser, "target-user", "", "Target host SSH user (defaults to jump user)")
	cmd.Flags().StringVar(&targetKey, "target-key", "", "Path to the target host private key (defaults to jump key)")

	cmd.Flags().StringVar(&service, "service", "", "Workload name to update")
	cmd.Flags().StringVar(&namespace, "namespace", "", "Namespace of the workload")
	cmd.Flags().StringVar(&kind, "kind", "deployment", "Workload kind: deployment or statefulset")
	cmd.Flags().StringVar(&image, "image", "", "Image reference to deploy")

	cmd.Flags().StringVar(&healthHost, "health-host", "", "Host serving the health endpoint (defaults to the target host, then jump host)")
	cmd.Flags().StringVar(&healthPath, "health-path", config.DefaultHealthPath, "Health endpoint path")
	cmd.Flags().IntVar(&healthPort, "health-port", 0, "Health endpoint port")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", config.DefaultMaxAttempts, "Maximum health probe attempts")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", config.DefaultPollInterval, "Delay between probe attempts")
	cmd.Flags().DurationVar(&settle, "settle", config.DefaultSettleDelay, "Initial delay before the first probe")
	cmd.Flags().IntVar(&logLines, "log-lines", config.DefaultLogLines, "Trailing log lines captured on failure")

	cmd.Flags().StringVar(&targetsFile, "targets-file", "", "YAML manifest of deployment targets")
	cmd.Flags().IntVar(&concurrency, "concurrency", config.DefaultConcurrency, "Maximum targets processed in parallel")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the outcome report as JSON")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address during the run")

	_ = cmd.MarkFlagRequired("jump-host")
	_ = cmd.MarkFlagRequired("jump-user")

	return cmd
}
