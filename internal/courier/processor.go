package courier

import (
	"fmt"
	"log/slog"
)

// Processor runs one pass over the source mailbox: list every unseen message
// in a single snapshot, then decide each message's fate independently.
//
// Per-message flow: decode the raw content; a sender that fails the
// allow-list is marked seen; a qualifying message is handed to the relay and
// deleted only after the relay confirms acceptance. A message whose decode or
// send fails is left exactly as found, still unseen, so the next pass retries
// it. Deletion strictly after confirmed send is what keeps mail from being
// lost; the price is a small duplicate window when a delete and its mark-seen
// fallback both fail.
type Processor struct {
	mailbox Mailbox
	relay   Relay
	allow   *AllowList
	from    string
	to      string

	// decode is swappable so tests can inject failing decoders.
	decode func([]byte) (*ParsedMessage, error)
}

// NewProcessor wires a processor to its collaborators. from is the
// substituted sender, to the fixed destination address.
func NewProcessor(mailbox Mailbox, relay Relay, allow *AllowList, from, to string) *Processor {
	return &Processor{
		mailbox: mailbox,
		relay:   relay,
		allow:   allow,
		from:    from,
		to:      to,
		decode:  DecodeMessage,
	}
}

// Pass processes every currently unseen message once. It returns an error
// only when the pass could not run at all (session or listing failure);
// failures on individual messages are logged, counted, and never abort the
// rest of the pass.
func (p *Processor) Pass() (PassStats, error) {
	var stats PassStats

	if err := p.mailbox.Open(); err != nil {
		return stats, fmt.Errorf("failed to open mailbox: %w", err)
	}

	messages, err := p.mailbox.ListUnseen()
	if err != nil {
		return stats, fmt.Errorf("failed to list unseen messages: %w", err)
	}
	stats.Listed = len(messages)

	if len(messages) == 0 {
		slog.Info("No unseen messages found")
		return stats, nil
	}

	slog.Info("Processing unseen messages", "count", len(messages))

	for _, msg := range messages {
		switch p.processMessage(msg) {
		case OutcomeForwarded:
			stats.Forwarded++
		case OutcomeFiltered:
			stats.Filtered++
		case OutcomeFailedTransient:
			stats.Failed++
		}
	}

	return stats, nil
}

// processMessage walks one message through the outcome state machine and
// reconciles the mailbox accordingly. It never lets a failure, or even a
// panic from a decoder choking on hostile input, escape to the pass loop.
func (p *Processor) processMessage(src SourceMessage) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic while processing message, leaving it for the next pass",
				"uid", src.UID, "panic", r)
			outcome = OutcomeFailedTransient
		}
	}()

	parsed, err := p.decode(src.Raw)
	if err != nil {
		slog.Error("Failed to decode message, leaving it for the next pass",
			"uid", src.UID, "error", err)
		return OutcomeFailedTransient
	}

	if !p.allow.ShouldForward(parsed.Sender) {
		slog.Info("Sender not on allow-list, marking message seen",
			"uid", src.UID, "from", parsed.Sender, "subject", parsed.Subject)
		if err := p.mailbox.MarkSeen(src.UID); err != nil {
			// Harmless: the message stays unseen and the filter decides
			// the same way next pass.
			slog.Error("Failed to mark filtered message as seen",
				"uid", src.UID, "error", err)
		}
		return OutcomeFiltered
	}

	if err := p.relay.Send(parsed, p.from, p.to); err != nil {
		slog.Error("Failed to forward message, leaving it for the next pass",
			"uid", src.UID, "from", parsed.Sender, "subject", parsed.Subject, "error", err)
		return OutcomeFailedTransient
	}

	slog.Info("Forwarded message",
		"uid", src.UID, "from", parsed.Sender, "subject", parsed.Subject, "to", p.to)

	if err := p.mailbox.Delete(src.UID); err != nil {
		slog.Error("Failed to delete forwarded message, marking it seen instead",
			"uid", src.UID, "error", err)
		if err := p.mailbox.MarkSeen(src.UID); err != nil {
			// Accepted residual risk: the message is still unseen, so a
			// future pass may forward it a second time.
			slog.Error("Failed to mark forwarded message as seen, it may be forwarded again",
				"uid", src.UID, "subject", parsed.Subject, "error", err)
		}
	}

	return OutcomeForwarded
}
