// Package main provides climbsctl, the operator CLI for the climbs registry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version        = "0.1.0-dev"
	globalConfig   string
	globalPassword string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "climbsctl",
		Short:         "Operate the climbs registry: migrations, moderation and exports",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&globalConfig, "config", "c", "", "YAML config file (default: $CLIMBS_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&globalPassword, "password", "p", "", "Moderation password (default: $CLIMBS_MODERATION_PASSWORD)")

	rootCmd.AddCommand(
		newMigrateCmd(),
		newPendingCmd(),
		newCanApproveCmd(),
		newDecisionCmd("approve"),
		newDecisionCmd("reject"),
		newExportCmd(),
		newHashPasswordCmd(),
	)
	return rootCmd
}
