package courier

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message"
	// Register decoders for the common non-UTF-8 charsets found in the wild.
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// DecodeMessage parses raw RFC 5322 message bytes and extracts:
// - the sender address (first From address)
// - the decoded subject
// - text and HTML bodies (first of each across all inline parts)
// - attachments (filename, content type, raw data)
//
// A malformed top-level message returns an error; faulty interior parts are
// skipped so the rest of the message is still usable.
func DecodeMessage(raw []byte) (*ParsedMessage, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse MIME message: %w", err)
	}

	mr := mail.NewReader(entity)

	parsed := &ParsedMessage{}

	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		parsed.Sender = addrs[0].Address
	}
	if subject, err := mr.Header.Subject(); err == nil {
		parsed.Subject = subject
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep whatever was extracted so far.
			slog.Warn("Skipping unreadable message part", "error", err)
			break
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				slog.Warn("Failed to read part body", "error", err)
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				if parsed.TextBody == "" {
					parsed.TextBody = string(body)
				}
			case strings.HasPrefix(contentType, "text/html"):
				if parsed.HTMLBody == "" {
					parsed.HTMLBody = string(body)
				}
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			if filename == "" {
				filename = "attachment"
			}
			contentType, _, _ := h.ContentType()

			data, err := io.ReadAll(part.Body)
			if err != nil {
				slog.Warn("Failed to read attachment body", "filename", filename, "error", err)
				continue
			}

			parsed.Attachments = append(parsed.Attachments, Attachment{
				Filename:    filename,
				ContentType: contentType,
				Data:        data,
			})
		}
	}

	return parsed, nil
}
