package courier

import (
	"crypto/tls"
	"fmt"
	"io"

	gomail "gopkg.in/gomail.v2"

	"github.com/meko-christian/mail-courier/internal/config"
)

// Relay is the outbound-relay collaborator: it delivers one message with a
// substituted sender to a fixed destination.
type Relay interface {
	Send(msg *ParsedMessage, from, to string) error
}

// SMTPRelay sends messages through an SMTP server using gomail. Every call
// dials a fresh connection, so each send is independently retryable.
type SMTPRelay struct {
	cfg config.SMTP
}

var _ Relay = (*SMTPRelay)(nil)

// NewSMTPRelay creates a relay for the given SMTP endpoint.
func NewSMTPRelay(cfg config.SMTP) *SMTPRelay {
	return &SMTPRelay{cfg: cfg}
}

// Send builds the outgoing message and delivers it. Subject, text body, HTML
// body and all attachments are preserved from the original; the sender header
// is overridden with from and the sole recipient is to, regardless of the
// recipient list on the source message. The whole message is accepted by the
// relay or the attempt fails; there is no partial delivery.
func (r *SMTPRelay) Send(parsed *ParsedMessage, from, to string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", parsed.Subject)

	// gomail requires exactly one primary body; HTML is attached as the
	// alternative unless it is all there is.
	switch {
	case parsed.TextBody != "":
		msg.SetBody("text/plain", parsed.TextBody)
		if parsed.HTMLBody != "" {
			msg.AddAlternative("text/html", parsed.HTMLBody)
		}
	case parsed.HTMLBody != "":
		msg.SetBody("text/html", parsed.HTMLBody)
	default:
		msg.SetBody("text/plain", "")
	}

	for _, att := range parsed.Attachments {
		// The copy func runs after the loop (inside DialAndSend); under the
		// pre-1.22 loop semantics of go 1.21 the range variable is shared,
		// so rebind it per iteration to keep each attachment's own data.
		att := att
		settings := []gomail.FileSetting{
			// Copy the raw data into the attachment instead of reading
			// a file from disk.
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(att.Data)
				return err
			}),
		}
		if att.ContentType != "" {
			// Preserve the original Content-Type metadata.
			settings = append(settings, gomail.SetHeader(map[string][]string{
				"Content-Type": {att.ContentType},
			}))
		}
		msg.Attach(att.Filename, settings...)
	}

	dialer := gomail.NewDialer(r.cfg.Server, r.cfg.Port, r.cfg.Username, r.cfg.Password)
	switch r.cfg.Security {
	case config.SecuritySSL:
		dialer.SSL = true
	case config.SecurityStartTLS:
		dialer.TLSConfig = &tls.Config{ServerName: r.cfg.Server}
	}

	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	return nil
}
