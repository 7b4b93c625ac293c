package idp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/illinilabs/netreset/internal/session"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Submitter performs the final two-step reset: visit the one-time link from
// the confirmation email, then post the new password.
type Submitter struct {
	sess    *session.Session
	idpBase string
}

// NewSubmitter creates a Submitter. It should be backed by a fresh session;
// the reset link establishes its own cookies independent of the MFA flow.
func NewSubmitter(sess *session.Session) *Submitter {
	return &Submitter{sess: sess, idpBase: IDServerEndpoint}
}

// SetEndpoint overrides the identity-provider base URL.
func (s *Submitter) SetEndpoint(idpBase string) {
	s.idpBase = idpBase
}

// Apply visits the reset link and submits the new password. On success it
// returns the provider-reported password expiry date. A response that is not
// a JSON object (the provider answers errors with a bare JSON string) is a
// SubmissionError carrying the raw payload.
func (s *Submitter) Apply(ctx context.Context, link, newPassword string) (string, error) {
	resp, err := s.sess.Get(ctx, link)
	if err != nil {
		return "", fmt.Errorf("failed to open reset link: %w", err)
	}
	session.Discard(resp)

	resp, err = s.sess.PostForm(ctx, s.idpBase+"/setPassword", url.Values{"passwd": {newPassword}})
	if err != nil {
		return "", fmt.Errorf("failed to submit new password: %w", err)
	}
	body, err := session.ReadBody(resp)
	if err != nil {
		return "", err
	}

	result := gjson.Parse(body)
	if !gjson.Valid(body) || !result.IsObject() {
		return "", &SubmissionError{Payload: strings.TrimSpace(body)}
	}
	expire := result.Get("expireDate").String()
	log.Infof("Reset successful, password valid until %s.", expire)
	return expire, nil
}
