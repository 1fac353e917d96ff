// Package config loads and validates the process configuration from
// config.yaml and environment variables via viper. The resulting Config is
// built once at startup and treated as immutable for the process lifetime.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Transport security modes accepted for both the IMAP and SMTP endpoints.
const (
	SecuritySSL      = "ssl"
	SecurityStartTLS = "starttls"
	SecurityNone     = "none"
)

// Config holds every setting the process understands.
type Config struct {
	IMAP    IMAP
	SMTP    SMTP
	Forward Forward
	Filter  Filter
	Daemon  Daemon
	Web     Web
}

// IMAP describes the source mailbox connection.
type IMAP struct {
	Server   string
	Port     int
	Username string
	Password string
	Mailbox  string
	Security string
}

// Addr returns the host:port dial address of the IMAP server.
func (c IMAP) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}

// SMTP describes the outbound relay connection.
type SMTP struct {
	Server   string
	Port     int
	Username string
	Password string
	Security string
}

// Forward holds the fixed addressing applied to every forwarded message.
type Forward struct {
	// From is the substituted sender address on outgoing mail.
	From string
	// To is the fixed destination address.
	To string
}

// Filter holds the raw allow-list entries as configured. Normalization
// (comma splitting, trimming, case folding) happens in the courier package.
type Filter struct {
	Domains []string
}

// Daemon controls the polling loop.
type Daemon struct {
	Enabled  bool
	Interval time.Duration
	// Idle enables the IMAP IDLE watcher that nudges the scheduler when
	// new mail arrives, instead of waiting out the full interval.
	Idle bool
}

// Web controls the optional status interface.
type Web struct {
	Enabled  bool
	Bind     string
	Port     string
	Username string
	Password string
}

func setDefaults() {
	viper.SetDefault("imap.port", 993)
	viper.SetDefault("imap.mailbox", "INBOX")
	viper.SetDefault("imap.security", SecuritySSL)
	viper.SetDefault("smtp.port", 465)
	viper.SetDefault("smtp.security", SecuritySSL)
	viper.SetDefault("daemon.enabled", false)
	viper.SetDefault("daemon.interval", 5*time.Minute)
	viper.SetDefault("daemon.idle", false)
	viper.SetDefault("web.enabled", false)
	viper.SetDefault("web.bind", "127.0.0.1")
	viper.SetDefault("web.port", "8080")
	viper.SetDefault("web.username", "admin")
}

// Load builds the typed configuration from viper and validates it. It
// returns a *ValidationError when required settings are missing or values
// are out of range, without touching the network.
func Load() (*Config, error) {
	setDefaults()

	cfg := &Config{
		IMAP: IMAP{
			Server:   viper.GetString("imap.server"),
			Port:     viper.GetInt("imap.port"),
			Username: viper.GetString("imap.username"),
			Password: viper.GetString("imap.password"),
			Mailbox:  viper.GetString("imap.mailbox"),
			Security: strings.ToLower(viper.GetString("imap.security")),
		},
		SMTP: SMTP{
			Server:   viper.GetString("smtp.server"),
			Port:     viper.GetInt("smtp.port"),
			Username: viper.GetString("smtp.username"),
			Password: viper.GetString("smtp.password"),
			Security: strings.ToLower(viper.GetString("smtp.security")),
		},
		Forward: Forward{
			From: viper.GetString("forward.from"),
			To:   viper.GetString("forward.to"),
		},
		Filter: Filter{
			Domains: viper.GetStringSlice("filter.domains"),
		},
		Daemon: Daemon{
			Enabled:  viper.GetBool("daemon.enabled"),
			Interval: viper.GetDuration("daemon.interval"),
			Idle:     viper.GetBool("daemon.idle"),
		},
		Web: Web{
			Enabled:  viper.GetBool("web.enabled"),
			Bind:     viper.GetString("web.bind"),
			Port:     viper.GetString("web.port"),
			Username: viper.GetString("web.username"),
			Password: viper.GetString("web.password"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidationError collects every problem found in one validation run so a
// single diagnostic can name all of them.
type ValidationError struct {
	// Missing lists required settings with empty values, each rendered as
	// "key (ENV_NAME)".
	Missing []string
	// Invalid lists settings whose values are out of range.
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required configuration: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid configuration: "+strings.Join(e.Invalid, "; "))
	}
	return strings.Join(parts, "; ")
}

// Validate checks that every required setting is present and every value is
// within range. All problems are collected before reporting.
func (c *Config) Validate() error {
	verr := &ValidationError{}

	required := []struct {
		key   string
		value string
	}{
		{"imap.server", c.IMAP.Server},
		{"imap.username", c.IMAP.Username},
		{"imap.password", c.IMAP.Password},
		{"smtp.server", c.SMTP.Server},
		{"smtp.username", c.SMTP.Username},
		{"smtp.password", c.SMTP.Password},
		{"forward.from", c.Forward.From},
		{"forward.to", c.Forward.To},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			verr.Missing = append(verr.Missing, fmt.Sprintf("%s (%s)", r.key, EnvName(r.key)))
		}
	}

	if c.Web.Enabled && strings.TrimSpace(c.Web.Password) == "" {
		verr.Missing = append(verr.Missing, fmt.Sprintf("web.password (%s)", EnvName("web.password")))
	}

	if c.IMAP.Port <= 0 || c.IMAP.Port > 65535 {
		verr.Invalid = append(verr.Invalid, fmt.Sprintf("imap.port must be between 1 and 65535, got %d", c.IMAP.Port))
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		verr.Invalid = append(verr.Invalid, fmt.Sprintf("smtp.port must be between 1 and 65535, got %d", c.SMTP.Port))
	}
	if !validSecurity(c.IMAP.Security) {
		verr.Invalid = append(verr.Invalid, fmt.Sprintf("imap.security must be one of ssl, starttls, none, got %q", c.IMAP.Security))
	}
	if !validSecurity(c.SMTP.Security) {
		verr.Invalid = append(verr.Invalid, fmt.Sprintf("smtp.security must be one of ssl, starttls, none, got %q", c.SMTP.Security))
	}
	if c.Daemon.Enabled && c.Daemon.Interval <= 0 {
		verr.Invalid = append(verr.Invalid, fmt.Sprintf("daemon.interval must be positive, got %s", c.Daemon.Interval))
	}

	if len(verr.Missing) == 0 && len(verr.Invalid) == 0 {
		return nil
	}
	return verr
}

func validSecurity(mode string) bool {
	switch mode {
	case SecuritySSL, SecurityStartTLS, SecurityNone:
		return true
	}
	return false
}

// EnvName maps a dotted viper key to the environment variable it binds to,
// matching the key replacer installed at startup: smtp.password becomes
// SMTP_PASSWORD.
func EnvName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
