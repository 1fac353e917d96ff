// Package courier implements the mail forwarding pipeline: it watches a
// source mailbox over IMAP, forwards qualifying messages through an SMTP
// relay with a substituted sender, and reconciles the mailbox state
// (delete or mark seen) based on the forwarding outcome.
package courier

// SourceMessage is one unit of mail from the source mailbox listing. The UID
// is stable for the lifetime of the mailbox session; the raw bytes are the
// full RFC 5322 message as stored on the server.
type SourceMessage struct {
	UID uint32
	Raw []byte
}

// ParsedMessage is the decoded form of a SourceMessage. It lives for a
// single processing attempt and is discarded afterwards.
type ParsedMessage struct {
	Sender      string
	Subject     string
	TextBody    string
	HTMLBody    string
	Attachments []Attachment
}

// Attachment represents a file attachment in an email.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Outcome is the result of one processing attempt for one SourceMessage and
// determines how the mailbox state was reconciled.
type Outcome int

const (
	// OutcomeForwarded means the relay accepted the message; the source
	// copy was deleted (or marked seen when the delete failed).
	OutcomeForwarded Outcome = iota
	// OutcomeFiltered means the sender did not match the allow-list; the
	// source copy was marked seen.
	OutcomeFiltered
	// OutcomeFailedTransient means decoding or forwarding failed; the
	// source copy was left untouched so the next pass retries it.
	OutcomeFailedTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeForwarded:
		return "forwarded"
	case OutcomeFiltered:
		return "filtered"
	case OutcomeFailedTransient:
		return "failed-transient"
	}
	return "unknown"
}

// PassStats counts per-outcome results of a single pass over the mailbox.
type PassStats struct {
	Listed    int
	Forwarded int
	Filtered  int
	Failed    int
}
