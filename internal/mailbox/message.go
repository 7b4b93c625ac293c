package mailbox

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

// message is the slice of an email the poller cares about: when it was sent
// and its plain-text body.
type message struct {
	sent time.Time
	body string
}

// parseMessage reads a raw RFC 822 message, returning its Date header and
// the contents of the first text/plain part.
func parseMessage(r io.Reader) (*message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email: %w", err)
	}
	sent, err := mr.Header.Date()
	if err != nil {
		return nil, fmt.Errorf("failed to parse email Date header: %w", err)
	}
	for {
		part, errPart := mr.NextPart()
		if errPart == io.EOF {
			break
		}
		if errPart != nil {
			return nil, fmt.Errorf("failed to read email part: %w", errPart)
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		if contentType != "text/plain" {
			continue
		}
		body, errRead := io.ReadAll(part.Body)
		if errRead != nil {
			return nil, fmt.Errorf("failed to read email body: %w", errRead)
		}
		return &message{sent: sent, body: string(body)}, nil
	}
	return nil, &ExtractionError{Reason: "email has no text/plain part"}
}
