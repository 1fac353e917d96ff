package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively generate a config.yaml file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile := "config.yaml"

		if _, err := os.Stat(configFile); err == nil && !initForce {
			fmt.Println("config.yaml already exists. Use --force to overwrite.")
			return nil
		}

		reader := bufio.NewReader(os.Stdin)

		fmt.Println("Let's set up your config.yaml!")

		fmt.Println("\n--- IMAP (source mailbox) ---")
		imapServer := prompt(reader, "IMAP server (e.g. imap.strato.de): ")
		imapPort := promptDefault(reader, "IMAP port", "993")
		imapSecurity := promptDefault(reader, "IMAP security (ssl/starttls/none)", "ssl")
		imapUser := prompt(reader, "IMAP username: ")
		imapPass := prompt(reader, "IMAP password: ")
		imapMailbox := promptDefault(reader, "Mailbox to watch", "INBOX")

		fmt.Println("\n--- SMTP (outbound relay) ---")
		smtpServer := prompt(reader, "SMTP server (e.g. smtp.strato.de): ")
		smtpPort := promptDefault(reader, "SMTP port", "465")
		smtpSecurity := promptDefault(reader, "SMTP security (ssl/starttls/none)", "ssl")
		smtpUser := prompt(reader, "SMTP username: ")
		smtpPass := prompt(reader, "SMTP password: ")

		fmt.Println("\n--- FORWARDING ---")
		forwardFrom := prompt(reader, "Sender address on forwarded mail: ")
		forwardTo := prompt(reader, "Destination address: ")

		fmt.Println("\n--- FILTER ---")
		domains := promptMulti(reader, "Allowed sender domain(s), comma-separated (empty forwards everything): ")

		fmt.Println("\n--- DAEMON ---")
		daemonEnabled := promptDefault(reader, "Keep running and poll the mailbox? (true/false)", "false")
		daemonInterval := promptDefault(reader, "Poll interval", "5m")

		domainsBlock := "  domains: []"
		if len(domains) > 0 {
			domainsBlock = "  domains:\n" + yamlList("    - ", domains)
		}

		content := fmt.Sprintf(`imap:
  server: %s
  port: %s
  security: %s
  username: %s
  password: %s
  mailbox: %s

smtp:
  server: %s
  port: %s
  security: %s
  username: %s
  password: %s

forward:
  from: %s
  to: %s

filter:
%s

daemon:
  enabled: %s
  interval: %s
`, imapServer, imapPort, imapSecurity, imapUser, imapPass, imapMailbox,
			smtpServer, smtpPort, smtpSecurity, smtpUser, smtpPass,
			forwardFrom, forwardTo,
			domainsBlock,
			daemonEnabled, daemonInterval)

		if err := os.WriteFile(configFile, []byte(content), 0o600); err != nil {
			return fmt.Errorf("failed to write config.yaml: %w", err)
		}

		fmt.Println("\n✅ config.yaml created successfully.")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config.yaml")
	rootCmd.AddCommand(initCmd)
}

func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	text, _ := r.ReadString('\n')
	return strings.TrimSpace(text)
}

func promptDefault(r *bufio.Reader, label, fallback string) string {
	value := prompt(r, fmt.Sprintf("%s [%s]: ", label, fallback))
	if value == "" {
		return fallback
	}
	return value
}

func promptMulti(r *bufio.Reader, label string) []string {
	raw := prompt(r, label)
	parts := strings.Split(raw, ",")
	var cleaned []string
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return cleaned
}

func yamlList(prefix string, values []string) string {
	var lines []string
	for _, v := range values {
		lines = append(lines, prefix+v)
	}
	return strings.Join(lines, "\n")
}
