package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meko-christian/mail-courier/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a single pass over the mailbox and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg, false)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
