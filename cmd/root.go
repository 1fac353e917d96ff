package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "mail-courier",
	Short: "Relay mail from a watched mailbox to a fixed destination",
	Long: `mail-courier watches a source mailbox over IMAP, forwards messages from
allowed sender domains to a fixed destination through an SMTP relay, and
cleans up the source mailbox afterwards: forwarded messages are deleted,
filtered ones are marked as read, failed ones stay untouched for the next
pass.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// Setup logger after flag parsing
		setupLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Force debug logging regardless of log.level")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	cobra.OnInitialize(initConfig)
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	// Every key is also reachable through the environment, dots replaced by
	// underscores: smtp.password reads SMTP_PASSWORD.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Warn("No config.yaml found in current directory",
				"hint", "Run `mail-courier init` to create one interactively.")
		} else {
			slog.Error("Failed to read config", "error", err)
		}
	}
}

func setupLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(viper.GetString("log.level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	slog.SetDefault(slog.New(handler))
}
