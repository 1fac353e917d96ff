package courier

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/meko-christian/mail-courier/internal/config"
)

// Mailbox is the source-mailbox collaborator. Implementations own the
// protocol session; the processor only sees these operations.
type Mailbox interface {
	// Open ensures an authenticated session with the configured mailbox
	// selected read-write, establishing or re-establishing it as needed.
	Open() error
	// ListUnseen returns one snapshot of all currently unseen messages,
	// taken before any of them is mutated.
	ListUnseen() ([]SourceMessage, error)
	// MarkSeen sets the \Seen flag on one message.
	MarkSeen(uid uint32) error
	// Delete removes one message permanently.
	Delete(uid uint32) error
	// Logout closes the session. Best-effort: callers log, never fail on it.
	Logout() error
}

// IMAPMailbox implements Mailbox over an IMAP connection. It is not safe for
// concurrent use; the scheduler guarantees passes never overlap.
type IMAPMailbox struct {
	cfg    config.IMAP
	client *client.Client
}

var _ Mailbox = (*IMAPMailbox)(nil)

// NewIMAPMailbox prepares a mailbox handle. No connection is made until the
// first Open call.
func NewIMAPMailbox(cfg config.IMAP) *IMAPMailbox {
	return &IMAPMailbox{cfg: cfg}
}

// Open dials, authenticates and selects the configured mailbox read-write.
// When a live session already has it selected, Open is a no-op, so every
// pass can call it and a daemon recovers from dropped connections.
func (m *IMAPMailbox) Open() error {
	if m.client != nil && m.client.State() == imap.SelectedState {
		if mbox := m.client.Mailbox(); mbox != nil && mbox.Name == m.cfg.Mailbox {
			return nil
		}
	}

	// Session is gone or in the wrong state; start over.
	if m.client != nil {
		_ = m.client.Logout()
		m.client = nil
	}

	c, err := dialIMAP(m.cfg)
	if err != nil {
		return err
	}

	if err := c.Login(m.cfg.Username, m.cfg.Password); err != nil {
		_ = c.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	if _, err := c.Select(m.cfg.Mailbox, false); err != nil {
		_ = c.Logout()
		return fmt.Errorf("failed to select %s: %w", m.cfg.Mailbox, err)
	}

	m.client = c
	slog.Debug("Mailbox session established", "server", m.cfg.Server, "mailbox", m.cfg.Mailbox)
	return nil
}

// dialIMAP connects to the IMAP server according to the configured security
// mode: implicit TLS, STARTTLS upgrade, or plaintext.
func dialIMAP(cfg config.IMAP) (*client.Client, error) {
	tlsConfig := &tls.Config{ServerName: cfg.Server}

	switch cfg.Security {
	case config.SecurityStartTLS:
		c, err := client.Dial(cfg.Addr())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			_ = c.Logout()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
		return c, nil
	case config.SecurityNone:
		c, err := client.Dial(cfg.Addr())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
		}
		return c, nil
	default:
		c, err := client.DialTLS(cfg.Addr(), tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
		}
		return c, nil
	}
}

// ListUnseen searches for messages without the \Seen flag and fetches their
// UIDs and full raw content in a single fetch. The body section is fetched
// with PEEK so listing never flips the \Seen flag itself; a message that
// fails to forward must stay unseen for the next pass.
func (m *IMAPMailbox) ListUnseen() ([]SourceMessage, error) {
	if m.client == nil {
		return nil, fmt.Errorf("mailbox session not open")
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := m.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	if err := m.client.UidFetch(seqset, items, messages); err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	results := make([]SourceMessage, 0, len(uids))
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			slog.Warn("No body found in message, skipping", "uid", msg.Uid)
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			slog.Warn("Failed to read message body, skipping", "uid", msg.Uid, "error", err)
			continue
		}
		results = append(results, SourceMessage{UID: msg.Uid, Raw: raw})
	}

	return results, nil
}

// MarkSeen sets the \Seen flag on the message with the given UID.
func (m *IMAPMailbox) MarkSeen(uid uint32) error {
	if m.client == nil {
		return fmt.Errorf("mailbox session not open")
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true) // true = silent update
	flags := []interface{}{imap.SeenFlag}

	if err := m.client.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark message %d as \\Seen: %w", uid, err)
	}
	return nil
}

// Delete flags the message with the given UID as \Deleted and expunges the
// mailbox.
func (m *IMAPMailbox) Delete(uid uint32) error {
	if m.client == nil {
		return fmt.Errorf("mailbox session not open")
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}

	if err := m.client.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark message %d as \\Deleted: %w", uid, err)
	}
	if err := m.client.Expunge(nil); err != nil {
		return fmt.Errorf("failed to expunge: %w", err)
	}
	return nil
}

// Logout ends the session. Safe to call with no session open.
func (m *IMAPMailbox) Logout() error {
	if m.client == nil {
		return nil
	}
	err := m.client.Logout()
	m.client = nil
	if err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}
