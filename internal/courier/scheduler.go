package courier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meko-christian/mail-courier/internal/config"
)

// PassRunner is what the scheduler drives. *Processor is the production
// implementation.
type PassRunner interface {
	Pass() (PassStats, error)
}

// Scheduler runs the processor once at startup and, in daemon mode, again on
// every interval tick (or IDLE nudge) until the context is cancelled. At most
// one pass is ever in flight: the overlap guard is a single-slot semaphore
// owned by the scheduler, and a trigger arriving while it is held is dropped
// with a log notice. Cancellation stops scheduling but lets the in-flight
// pass reach a terminal state before Run returns.
type Scheduler struct {
	proc    PassRunner
	mailbox Mailbox
	daemon  config.Daemon
	stats   *Stats
	watcher *IdleWatcher

	busy  chan struct{}
	nudge chan struct{}
	wg    sync.WaitGroup
}

// NewScheduler wires the scheduler. watcher may be nil when the IDLE watcher
// is disabled.
func NewScheduler(proc PassRunner, mailbox Mailbox, daemon config.Daemon, stats *Stats, watcher *IdleWatcher) *Scheduler {
	return &Scheduler{
		proc:    proc,
		mailbox: mailbox,
		daemon:  daemon,
		stats:   stats,
		watcher: watcher,
		busy:    make(chan struct{}, 1),
		nudge:   make(chan struct{}, 1),
	}
}

// Run connects to the source mailbox, performs the startup pass, and then
// either returns (non-daemon mode) or keeps scheduling passes until ctx is
// cancelled. The returned error is fatal for the process: a failed initial
// connection in either mode, or a startup pass failing outright in
// non-daemon mode. Individual message failures never surface here.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.mailbox.Open(); err != nil {
		return fmt.Errorf("failed to connect to source mailbox: %w", err)
	}
	defer s.logout()

	err := s.runPass("startup")

	if !s.daemon.Enabled {
		if err != nil {
			return fmt.Errorf("startup pass failed: %w", err)
		}
		return nil
	}

	if err != nil {
		// The session itself is up; treat this like any scheduled-pass
		// failure and let the next trigger retry.
		slog.Error("Startup pass failed, continuing in daemon mode", "error", err)
	}

	if s.watcher != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.watcher.Watch(ctx, s.nudge)
		}()
	}

	slog.Info("Entering daemon mode", "interval", s.daemon.Interval)

	ticker := time.NewTicker(s.daemon.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown requested, waiting for in-flight pass to finish")
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.tryRunPass("interval")
		case <-s.nudge:
			s.tryRunPass("mailbox update")
		}
	}
}

// tryRunPass starts a pass in the background if none is running, and drops
// the trigger otherwise.
func (s *Scheduler) tryRunPass(trigger string) {
	select {
	case s.busy <- struct{}{}:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() { <-s.busy }()
			// Pass failures in daemon mode are logged inside runPass;
			// the next trigger still fires.
			_ = s.runPass(trigger)
		}()
	default:
		s.stats.RecordSkip()
		slog.Warn("Skipping trigger, previous pass still running", "trigger", trigger)
	}
}

// runPass executes one pass and records its result. A panicking pass is
// contained here so the daemon keeps running.
func (s *Scheduler) runPass(trigger string) (err error) {
	log := slog.With("pass_id", uuid.NewString(), "trigger", trigger)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pass panicked: %v", r)
			s.stats.RecordPass(trigger, PassStats{}, err)
			log.Error("Pass panicked", "panic", r)
		}
	}()

	log.Debug("Pass starting")
	start := time.Now()

	stats, err := s.proc.Pass()
	s.stats.RecordPass(trigger, stats, err)
	if err != nil {
		log.Error("Pass failed", "error", err)
		return err
	}

	log.Info("Pass complete",
		"listed", stats.Listed,
		"forwarded", stats.Forwarded,
		"filtered", stats.Filtered,
		"failed", stats.Failed,
		"duration", time.Since(start).String())
	return nil
}

// logout closes the mailbox session at shutdown. Best-effort: a failure here
// is logged and otherwise ignored.
func (s *Scheduler) logout() {
	if err := s.mailbox.Logout(); err != nil {
		slog.Warn("Failed to close mailbox session", "error", err)
		return
	}
	slog.Info("Logged out from IMAP server")
}
