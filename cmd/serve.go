package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/meko-christian/mail-courier/internal/config"
	"github.com/meko-christian/mail-courier/internal/courier"
	"github.com/meko-christian/mail-courier/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay: one startup pass, then keep watching in daemon mode",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Flags parsed fine; dumping usage on runtime errors only buries them.
		cmd.SilenceUsage = true

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg, cfg.Daemon.Enabled)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// run wires the processing pipeline and hands control to the scheduler.
// daemon overrides cfg.Daemon.Enabled so check can force a single pass.
func run(ctx context.Context, cfg *config.Config, daemon bool) error {
	allow := courier.ParseAllowList(cfg.Filter.Domains)
	if allow.Enabled() {
		slog.Info("Sender domain filtering enabled", "domains", allow.Domains())
	} else {
		slog.Info("No sender domains configured, forwarding every message")
	}

	mailbox := courier.NewIMAPMailbox(cfg.IMAP)
	relay := courier.NewSMTPRelay(cfg.SMTP)
	proc := courier.NewProcessor(mailbox, relay, allow, cfg.Forward.From, cfg.Forward.To)
	stats := courier.NewStats()

	daemonCfg := cfg.Daemon
	daemonCfg.Enabled = daemon

	var watcher *courier.IdleWatcher
	if daemonCfg.Enabled && daemonCfg.Idle {
		watcher = courier.NewIdleWatcher(cfg.IMAP)
	}

	// Status server runs in daemon mode only; one-shot runs exit right
	// after the pass and must not contend for the port.
	if daemonCfg.Enabled && cfg.Web.Enabled {
		server, err := web.NewServer(cfg, stats)
		if err != nil {
			return err
		}
		go func() {
			if err := server.Start(ctx); err != nil {
				slog.Error("Status server stopped", "error", err)
			}
		}()
	}

	return courier.NewScheduler(proc, mailbox, daemonCfg, stats, watcher).Run(ctx)
}
