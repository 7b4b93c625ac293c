// Package mailbox polls an IMAP mailbox for the password-reset confirmation
// email and extracts the one-time reset link from it. Delivery latency is
// unbounded and uncorrelated with the HTTP flow that triggered the email,
// so the poller retries on a fixed interval; the caller's timestamp anchor
// keeps older reset emails from prior attempts from being picked up.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	log "github.com/sirupsen/logrus"
)

// Mailbox defaults for the University of Illinois reset emails.
const (
	DefaultSubject   = "University of Illinois - Email Password Reset"
	DefaultURLPrefix = "https://identity.uillinois.edu/iamFrontEnd/iam/password/reset/email?uin="
	DefaultInterval  = 5 * time.Second
	DefaultMaxWait   = 10 * time.Minute
	DefaultPort      = 993
)

// skew absorbs small clock deltas between the web server that timestamps the
// reset request and the mail server that timestamps the email.
const skew = 10 * time.Second

// ErrCorrelationTimeout is returned when no sufficiently recent confirmation
// email arrives before the poller's maximum wait elapses.
var ErrCorrelationTimeout = errors.New("reset email did not arrive in time")

// ExtractionError reports that an expected part of the email was absent: no
// text/plain body, no reset-link prefix, or no terminator after the link.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract reset link: %s", e.Reason)
}

// Options configures a Poller. Zero values fall back to the defaults above.
type Options struct {
	Server    string
	Port      int
	Username  string
	Password  string
	Subject   string
	URLPrefix string
	Interval  time.Duration
	MaxWait   time.Duration
}

// Poller repeatedly searches a mailbox for a confirmation email newer than
// the correlation anchor.
type Poller struct {
	opts Options

	// fetchLatest is swapped out by tests to drive the loop without IMAP.
	fetchLatest func(ctx context.Context) (*message, bool, error)
}

// New creates a Poller, filling unset options with defaults.
func New(opts Options) *Poller {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.URLPrefix == "" {
		opts.URLPrefix = DefaultURLPrefix
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}
	return &Poller{opts: opts}
}

// AwaitResetLink blocks until a confirmation email sent after
// threshold−10s appears in the inbox, then returns the reset link from its
// text/plain body. It gives up with ErrCorrelationTimeout once the maximum
// wait elapses, or earlier if ctx is canceled.
func (p *Poller) AwaitResetLink(ctx context.Context, threshold time.Time) (string, error) {
	log.Info("Retrieving password reset link from email.")
	fetch := p.fetchLatest
	if fetch == nil {
		c, err := p.connect()
		if err != nil {
			return "", err
		}
		defer func() {
			_ = c.Logout()
		}()
		fetch = func(context.Context) (*message, bool, error) {
			return fetchLatest(c, p.opts.Subject)
		}
	}

	deadline := time.Now().Add(p.opts.MaxWait)
	staleLogged := false
	for {
		msg, found, err := fetch(ctx)
		if err != nil {
			return "", err
		}
		switch {
		case !found:
			log.Info("No password reset email found in the inbox.")
		case msg.sent.After(threshold.Add(-skew)):
			log.Infof("Got reset link. It was sent at %s.", msg.sent)
			return ExtractLink(msg.body, p.opts.URLPrefix)
		default:
			if !staleLogged {
				log.Infof("Latest password reset email was sent at %s.", msg.sent)
				staleLogged = true
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w (waited %s)", ErrCorrelationTimeout, p.opts.MaxWait)
		}
		log.Infof("Email has not arrived, checking again in %s.", p.opts.Interval)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.opts.Interval):
		}
	}
}

// connect dials the IMAP server over TLS, logs in, and selects the inbox.
func (p *Poller) connect() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", p.opts.Server, p.opts.Port)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server %s: %w", addr, err)
	}
	if err = c.Login(p.opts.Username, p.opts.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}
	if _, err = c.Select("INBOX", true); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("failed to select inbox: %w", err)
	}
	return c, nil
}

// fetchLatest retrieves the most recent message matching the subject, if any.
func fetchLatest(c *client.Client, subject string) (*message, bool, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Header.Add("Subject", subject)
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, false, fmt.Errorf("mailbox search failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, false, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids[len(ids)-1])
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()
	msg := <-messages
	if err = <-done; err != nil {
		return nil, false, fmt.Errorf("failed to fetch email: %w", err)
	}
	if msg == nil {
		return nil, false, &ExtractionError{Reason: "mailbox returned no message for fetch"}
	}
	r := msg.GetBody(section)
	if r == nil {
		return nil, false, &ExtractionError{Reason: "fetched email had no body section"}
	}
	parsed, err := parseMessage(r)
	if err != nil {
		return nil, false, err
	}
	return parsed, true, nil
}

// ExtractLink returns the substring of body starting at the fixed URL prefix
// and ending before the next whitespace character. Both a missing prefix and
// a missing terminator are hard failures; a link silently truncated at
// end-of-text could be malformed.
func ExtractLink(body, prefix string) (string, error) {
	start := strings.Index(body, prefix)
	if start < 0 {
		return "", &ExtractionError{Reason: fmt.Sprintf("email body does not contain %q", prefix)}
	}
	rest := body[start:]
	end := strings.IndexFunc(rest[len(prefix):], unicode.IsSpace)
	if end < 0 {
		return "", &ExtractionError{Reason: "no whitespace terminator after reset link"}
	}
	return rest[:len(prefix)+end], nil
}
