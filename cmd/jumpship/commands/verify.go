package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/halcyonops/jumpship/cmd/jumpship/handlers"
	"github.com/halcyonops/jumpship/internal/config"
)

// Verify returns the command that health-checks an image locally before
// it is ever deployed. It starts a container from the image, polls its
// health endpoint, and removes the container whatever the outcome.
func Verify() *cobra.Command {
	var (
		image        string
		healthPath   string
		healthPort   int
		maxAttempts  int
		pollInterval time.Duration
		settle       time.Duration
		logLines     int
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Start a local container from an image and verify its health",
		Long: `Verify that an image under test answers its health endpoint.

A container is started locally via docker, polled with the same bounded
backoff used after deployments, and force-removed afterwards. On failure
the container's trailing log lines are printed so the run is debuggable
without the container still existing.

Example:
  jumpship verify --image registry.example.com/fleet/api:v2 --health-port 8080`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			probe := config.ProbeConfig{
				Port:         healthPort,
				Path:         healthPath,
				MaxAttempts:  maxAttempts,
				PollInterval: pollInterval,
				SettleDelay:  settle,
				LogLines:     logLines,
			}
			return handlers.Verify(cmd.Context(), image, probe)
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "Image reference to verify (required)")
	cmd.Flags().StringVar(&healthPath, "health-path", config.DefaultHealthPath, "Health endpoint path")
	cmd.Flags().IntVar(&healthPort, "health-port", 0, "Health endpoint port published by the container (required)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", config.DefaultMaxAttempts, "Maximum health probe attempts")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", config.DefaultPollInterval, "Delay between probe attempts")
	cmd.Flags().DurationVar(&settle, "settle", config.DefaultSettleDelay, "Initial delay before the first probe")
	cmd.Flags().IntVar(&logLines, "log-lines", config.DefaultLogLines, "Trailing log lines captured on failure")

	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("health-port")

	return cmd
}
