package courier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	idle "github.com/emersion/go-imap-idle"
	"github.com/emersion/go-imap/client"

	"github.com/meko-christian/mail-courier/internal/config"
)

// IdleWatcher holds a dedicated IMAP connection in IDLE and nudges the
// scheduler whenever the server announces a mailbox change. It is an
// accelerator only: the interval ticker keeps firing regardless, so a broken
// watcher degrades to plain polling.
type IdleWatcher struct {
	cfg config.IMAP
}

func NewIdleWatcher(cfg config.IMAP) *IdleWatcher {
	return &IdleWatcher{cfg: cfg}
}

// Watch blocks until ctx is cancelled, reconnecting whenever the IDLE session
// drops. Consecutive connection failures back off linearly up to five
// minutes; a session that reached the mailbox resets the delay.
func (w *IdleWatcher) Watch(ctx context.Context, nudge chan<- struct{}) {
	var b backoff
	for {
		established, err := w.watchOnce(ctx, nudge)
		if err != nil {
			slog.Warn("IDLE watcher error", "error", err)
		}
		if ctx.Err() != nil {
			return
		}
		delay := b.next(established)
		slog.Warn("IDLE session lost, reconnecting", "delay", delay.String(), "failures", b.failures)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// backoff tracks consecutive failed connection attempts. A session that
// reached the mailbox clears the count.
type backoff struct {
	failures int
}

func (b *backoff) next(established bool) time.Duration {
	if established {
		b.failures = 0
		return 0
	}
	b.failures++
	delay := time.Duration(b.failures) * 10 * time.Second
	if delay > 5*time.Minute {
		delay = 5 * time.Minute
	}
	return delay
}

// watchOnce runs a single IDLE session on a fresh connection. It reports
// whether the session reached the selected mailbox, and returns nil when ctx
// ended the session and an error when the session itself broke.
func (w *IdleWatcher) watchOnce(ctx context.Context, nudge chan<- struct{}) (bool, error) {
	c, err := dialIMAP(w.cfg)
	if err != nil {
		return false, fmt.Errorf("failed to connect for IDLE: %w", err)
	}
	defer func() { _ = c.Logout() }()

	if err := c.Login(w.cfg.Username, w.cfg.Password); err != nil {
		return false, fmt.Errorf("failed to login for IDLE: %w", err)
	}

	// Read-only select: the watcher must never touch message flags.
	if _, err := c.Select(w.cfg.Mailbox, true); err != nil {
		return false, fmt.Errorf("failed to select %s for IDLE: %w", w.cfg.Mailbox, err)
	}

	updates := make(chan client.Update, 8)
	c.Updates = updates

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- idle.NewClient(c).IdleWithFallback(stop, 0)
	}()

	slog.Info("Watching mailbox for updates", "mailbox", w.cfg.Mailbox)

	for {
		select {
		case <-ctx.Done():
			close(stop)
			// Keep draining updates so the client's reader never blocks
			// while the IDLE command winds down.
			for {
				select {
				case <-done:
					return true, nil
				case <-updates:
				}
			}
		case err := <-done:
			return true, err
		case update := <-updates:
			if _, ok := update.(*client.MailboxUpdate); ok {
				select {
				case nudge <- struct{}{}:
				default:
					// A trigger is already pending; this update is covered.
				}
			}
		}
	}
}
