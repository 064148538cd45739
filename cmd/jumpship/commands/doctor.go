package commands

import (
	"github.com/spf13/cobra"

	"github.com/halcyonops/jumpship/cmd/jumpship/handlers"
)

// Doctor returns the command that checks the local environment:
// client tools and key material readability.
func Doctor() *cobra.Command {
	var jumpKey, targetKey string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check local prerequisites for deploying and verifying",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Doctor(jumpKey, targetKey)
		},
	}

	cmd.Flags().StringVar(&jumpKey, "jump-key", "", "Path to the jump host private key to check")
	cmd.Flags().StringVar(&targetKey, "target-key", "", "Path to the target host private key to check")

	return cmd
}
