package courier

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// opLog records mailbox and relay operations in call order so tests can
// assert the reconciliation sequence, not just the end state.
type opLog struct {
	entries []string
}

func (l *opLog) add(format string, args ...any) {
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *opLog) index(entry string) int {
	for i, e := range l.entries {
		if e == entry {
			return i
		}
	}
	return -1
}

// actions strips the session bookkeeping so tests can assert the per-message
// sequence of sends and mailbox mutations.
func (l *opLog) actions() []string {
	var out []string
	for _, e := range l.entries {
		if e == "open" || e == "list" || e == "logout" {
			continue
		}
		out = append(out, e)
	}
	return out
}

type fakeMailbox struct {
	log      *opLog
	messages []SourceMessage
	openErr  error
	listErr  error
	markErr  map[uint32]error
	delErr   map[uint32]error
}

func (m *fakeMailbox) Open() error {
	m.log.add("open")
	return m.openErr
}

func (m *fakeMailbox) ListUnseen() ([]SourceMessage, error) {
	m.log.add("list")
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.messages, nil
}

func (m *fakeMailbox) MarkSeen(uid uint32) error {
	m.log.add("seen %d", uid)
	return m.markErr[uid]
}

func (m *fakeMailbox) Delete(uid uint32) error {
	m.log.add("delete %d", uid)
	return m.delErr[uid]
}

func (m *fakeMailbox) Logout() error {
	m.log.add("logout")
	return nil
}

type sentMessage struct {
	msg  *ParsedMessage
	from string
	to   string
}

type fakeRelay struct {
	log  *opLog
	err  error
	sent []sentMessage
}

func (r *fakeRelay) Send(msg *ParsedMessage, from, to string) error {
	r.log.add("send %s", msg.Subject)
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMessage{msg: msg, from: from, to: to})
	return nil
}

func newTestProcessor(mbox *fakeMailbox, relay *fakeRelay, domains ...string) *Processor {
	return NewProcessor(mbox, relay, ParseAllowList(domains), "courier@fwd.example", "dest@example.com")
}

// Two unseen messages, one from an allowed domain that forwards cleanly, one
// from elsewhere. The first must reach the relay with the substituted sender
// and the fixed destination and then be deleted; the second must only be
// marked seen.
func TestPass_ForwardsAllowedAndMarksFilteredSeen(t *testing.T) {
	t.Parallel()

	rawTrusted := "From: a@trusted.com\r\n" +
		"To: inbox@source.example\r\n" +
		"Subject: Hello\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Please forward me."
	rawOther := "From: b@other.com\r\n" +
		"Subject: Noise\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Not for you."

	log := &opLog{}
	mbox := &fakeMailbox{log: log, messages: []SourceMessage{
		{UID: 1, Raw: []byte(rawTrusted)},
		{UID: 2, Raw: []byte(rawOther)},
	}}
	relay := &fakeRelay{log: log}
	proc := newTestProcessor(mbox, relay, "trusted.com")

	stats, err := proc.Pass()
	require.NoError(t, err)

	assert.Equal(t, PassStats{Listed: 2, Forwarded: 1, Filtered: 1, Failed: 0}, stats)

	require.Len(t, relay.sent, 1)
	assert.Equal(t, "courier@fwd.example", relay.sent[0].from)
	assert.Equal(t, "dest@example.com", relay.sent[0].to)
	assert.Equal(t, "Hello", relay.sent[0].msg.Subject)
	assert.Equal(t, "Please forward me.", relay.sent[0].msg.TextBody)

	// The whole reconciliation, in order, and nothing else.
	assert.Equal(t, []string{"open", "list", "send Hello", "delete 1", "seen 2"}, log.entries)
}

func TestPass_DeletesOnlyAfterRelayConfirms(t *testing.T) {
	t.Parallel()

	log := &opLog{}
	mbox := &fakeMailbox{log: log, messages: []SourceMessage{{UID: 7, Raw: []byte("ok")}}}
	relay := &fakeRelay{log: log}
	proc := newTestProcessor(mbox, relay)
	proc.decode = func([]byte) (*ParsedMessage, error) {
		return &ParsedMessage{Sender: "a@trusted.com", Subject: "hi"}, nil
	}

	_, err := proc.Pass()
	require.NoError(t, err)

	sendAt := log.index("send hi")
	deleteAt := log.index("delete 7")
	require.GreaterOrEqual(t, sendAt, 0, "relay was never invoked")
	require.GreaterOrEqual(t, deleteAt, 0, "message was never deleted")
	assert.Less(t, sendAt, deleteAt, "delete must come after the relay confirmed the send")
}

func TestPass_FailedSendLeavesMessageUntouched(t *testing.T) {
	t.Parallel()

	log := &opLog{}
	mbox := &fakeMailbox{log: log, messages: []SourceMessage{{UID: 3, Raw: []byte("ok")}}}
	relay := &fakeRelay{log: log, err: errors.New("relay down")}
	proc := newTestProcessor(mbox, relay)
	proc.decode = func([]byte) (*ParsedMessage, error) {
		return &ParsedMessage{Sender: "a@trusted.com", Subject: "hi"}, nil
	}

	// Two passes against a persistently failing relay: the message must stay
	// unseen and undeleted both times so a later pass can retry it.
	for pass := 1; pass <= 2; pass++ {
		stats, err := proc.Pass()
		require.NoError(t, err, "pass %d", pass)
		assert.Equal(t, PassStats{Listed: 1, Failed: 1}, stats, "pass %d", pass)
	}

	// The journal shows two full retry attempts and no seen or delete calls.
	assert.Equal(t, []string{"open", "list", "send hi", "open", "list", "send hi"}, log.entries,
		"a failed send must not mutate the mailbox")
}

func TestPass_IsolatesDecodeFailures(t *testing.T) {
	t.Parallel()

	log := &opLog{}
	mbox := &fakeMailbox{log: log, messages: []SourceMessage{
		{UID: 1, Raw: []byte("forward")},
		{UID: 2, Raw: []byte("broken")},
		{UID: 3, Raw: []byte("filter")},
	}}
	relay := &fakeRelay{log: log}
	proc := newTestProcessor(mbox, relay, "trusted.com")
	proc.decode = func(raw []byte) (*ParsedMessage, error) {
		switch string(raw) {
		case "forward":
			return &ParsedMessage{Sender: "a@trusted.com", Subject: "first"}, nil
		case "filter":
			return &ParsedMessage{Sender: "c@other.com", Subject: "third"}, nil
		default:
			return nil, errors.New("garbled MIME")
		}
	}

	stats, err := proc.Pass()
	require.NoError(t, err)

	// The broken message fails, its neighbors still reach terminal states.
	assert.Equal(t, PassStats{Listed: 3, Forwarded: 1, Filtered: 1, Failed: 1}, stats)
	assert.Equal(t, []string{"send first", "delete 1", "seen 3"}, log.actions())
}

func TestPass_IsolatesDecodePanics(t *testing.T) {
	t.Parallel()

	log := &opLog{}
	mbox := &fakeMailbox{log: log, messages: []SourceMessage{
		{UID: 1, Raw: []byte("forward")},
		{UID: 2, Raw: []byte("hostile")},
		{UID: 3, Raw: []byte("forward")},
	}}
	relay := &fakeRelay{log: log}
	proc := newTestProcessor(mbox, relay)
	proc.decode = func(raw []byte) (*ParsedMessage, error) {
		if string(raw) == "hostile" {
			panic("decoder blew up")
		}
		return &ParsedMessage{Sender: "a@trusted.com", Subject: "ok"}, nil
	}

	stats, err := proc.Pass()
	require.NoError(t, err)

	assert.Equal(t, PassStats{Listed: 3, Forwarded: 2, Failed: 1}, stats)
	assert.Equal(t, []string{"send ok", "delete 1", "send ok", "delete 3"}, log.actions())
}

func TestPass_DeleteFailureFallsBackToSeen(t *testing.T) {
	t.Parallel()

	log := &opLog{}
	mbox := &fakeMailbox{
		log:      log,
		messages: []SourceMessage{{UID: 5, Raw: []byte("ok")}},
		delErr:   map[uint32]error{5: errors.New("expunge rejected")},
	}
	relay := &fakeRelay{log: log}
	proc := newTestProcessor(mbox, relay)
	proc.decode = func([]byte) (*ParsedMessage, error) {
		return &ParsedMessage{Sender: "a@trusted.com", Subject: "hi"}, nil
	}

	stats, err := proc.Pass()
	require.NoError(t, err)

	// Forwarding succeeded, so the outcome is Forwarded even though the
	// cleanup had to fall back to the seen flag.
	assert.Equal(t, PassStats{Listed: 1, Forwarded: 1}, stats)
	assert.Equal(t, []string{"send hi", "delete 5", "seen 5"}, log.actions())
}

func TestPass_DeleteAndFallbackFailureStopsMutating(t *testing.T) {
	t.Parallel()

	log := &opLog{}
	mbox := &fakeMailbox{
		log:      log,
		messages: []SourceMessage{{UID: 5, Raw: []byte("ok")}},
		delErr:   map[uint32]error{5: errors.New("expunge rejected")},
		markErr:  map[uint32]error{5: errors.New("store rejected")},
	}
	relay := &fakeRelay{log: log}
	proc := newTestProcessor(mbox, relay)
	proc.decode = func([]byte) (*ParsedMessage, error) {
		return &ParsedMessage{Sender: "a@trusted.com", Subject: "hi"}, nil
	}

	stats, err := proc.Pass()
	require.NoError(t, err)

	// Both cleanup attempts failed; the duplicate risk is logged and the
	// processor moves on without trying anything further.
	assert.Equal(t, PassStats{Listed: 1, Forwarded: 1}, stats)
	assert.Equal(t, []string{"send hi", "delete 5", "seen 5"}, log.actions())
}

func TestPass_FilteredFlagFailureIsHarmless(t *testing.T) {
	t.Parallel()

	log := &opLog{}
	mbox := &fakeMailbox{
		log:      log,
		messages: []SourceMessage{{UID: 9, Raw: []byte("ok")}},
		markErr:  map[uint32]error{9: errors.New("store rejected")},
	}
	relay := &fakeRelay{log: log}
	proc := newTestProcessor(mbox, relay, "trusted.com")
	proc.decode = func([]byte) (*ParsedMessage, error) {
		return &ParsedMessage{Sender: "b@other.com", Subject: "noise"}, nil
	}

	stats, err := proc.Pass()
	require.NoError(t, err)

	// The message stays unseen and the filter re-evaluates it next pass; it
	// must never reach the relay or be deleted.
	assert.Equal(t, PassStats{Listed: 1, Filtered: 1}, stats)
	assert.Empty(t, relay.sent)
	assert.Equal(t, []string{"seen 9"}, log.actions())
}

func TestPass_OpenFailureAbortsPass(t *testing.T) {
	t.Parallel()

	log := &opLog{}
	mbox := &fakeMailbox{log: log, openErr: errors.New("connection refused")}
	relay := &fakeRelay{log: log}
	proc := newTestProcessor(mbox, relay)

	stats, err := proc.Pass()
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, PassStats{}, stats)
	assert.Empty(t, relay.sent)
}

func TestPass_ListFailureAbortsPass(t *testing.T) {
	t.Parallel()

	log := &opLog{}
	mbox := &fakeMailbox{log: log, listErr: errors.New("search failed")}
	relay := &fakeRelay{log: log}
	proc := newTestProcessor(mbox, relay)

	stats, err := proc.Pass()
	require.Error(t, err)
	assert.Equal(t, PassStats{}, stats)
	assert.Empty(t, log.actions())
}

func TestPass_EmptyMailbox(t *testing.T) {
	t.Parallel()

	log := &opLog{}
	mbox := &fakeMailbox{log: log}
	relay := &fakeRelay{log: log}
	proc := newTestProcessor(mbox, relay)

	stats, err := proc.Pass()
	require.NoError(t, err)
	assert.Equal(t, PassStats{}, stats)
}
