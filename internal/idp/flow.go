// Package idp drives the identity provider's password-reset self-service
// flow: session bootstrap, NetID submission, the Duo MFA handshake, and the
// final email-send trigger. The flow is a fixed sequence of dependent HTTP
// calls exchanging single-use tokens, so it is modeled as an explicit state
// machine with one transition per state; every transition failure is fatal
// for the run, because the tokens it consumed cannot be replayed.
package idp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/illinilabs/netreset/internal/passcode"
	"github.com/illinilabs/netreset/internal/session"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Provider endpoint constants. The flow targets these literal hosts and
// paths; they are overridable only so tests can point the engine at a stub
// server.
const (
	IDServerEndpoint = "https://identity.uillinois.edu/iamFrontEnd/iam"
	DuoEndpoint      = "https://api-cd3ecedb.duosecurity.com"
)

// browserFeatures is the capability blob Duo's prompt endpoint expects from
// a browser client.
const browserFeatures = `{"platform_authenticator_status":"available","webauthn_supported":false}`

// State identifies one step of the reset-initiation sequence.
type State int

const (
	StateBootstrap State = iota
	StateIdentify
	StateMFARedirect
	StateMFAFrame
	StateFrameForm
	StateDeviceAck
	StatePasscode
	StateStatus
	StateExit
	StateDone
)

var stateNames = map[State]string{
	StateBootstrap:   "bootstrap",
	StateIdentify:    "identify",
	StateMFARedirect: "mfa-redirect",
	StateMFAFrame:    "mfa-frame",
	StateFrameForm:   "frame-form",
	StateDeviceAck:   "device-ack",
	StatePasscode:    "passcode",
	StateStatus:      "status",
	StateExit:        "exit",
	StateDone:        "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// runState holds the ephemeral tokens exchanged during one flow invocation.
// None of them survive the run or are ever reused.
type runState struct {
	duoAuthURL string
	frameURL   string
	sid        string
	tx         string
	akey       string
	xsrf       string
	promptURL  string
	txid       string
	requested  time.Time
}

// Engine walks the reset-initiation sequence against the identity provider
// and Duo. One Engine may run the flow multiple times; each invocation uses
// a fresh token set.
type Engine struct {
	sess      *session.Session
	idpBase   string
	duoBase   string
	netID     string
	duoSecret string
	now       func() time.Time

	state State
	run   *runState
}

// NewEngine creates a flow engine for the given NetID and base32-encoded
// Duo shared secret.
func NewEngine(sess *session.Session, netID, duoSecret string) *Engine {
	return &Engine{
		sess:      sess,
		idpBase:   IDServerEndpoint,
		duoBase:   DuoEndpoint,
		netID:     netID,
		duoSecret: duoSecret,
		now:       time.Now,
	}
}

// SetEndpoints overrides the provider base URLs.
func (e *Engine) SetEndpoints(idpBase, duoBase string) {
	e.idpBase = idpBase
	e.duoBase = duoBase
}

// State reports the step the engine last entered.
func (e *Engine) State() State {
	return e.state
}

type transition struct {
	state State
	run   func(context.Context) error
}

func (e *Engine) transitions() []transition {
	return []transition{
		{StateBootstrap, e.stepBootstrap},
		{StateIdentify, e.stepIdentify},
		{StateMFARedirect, e.stepMFARedirect},
		{StateMFAFrame, e.stepMFAFrame},
		{StateFrameForm, e.stepFrameForm},
		{StateDeviceAck, e.stepDeviceAck},
		{StatePasscode, e.stepPasscode},
		{StateStatus, e.stepStatus},
		{StateExit, e.stepExit},
	}
}

// InitiateReset runs the full sequence and returns the UTC instant at which
// the confirmation email was requested. That instant is the correlation
// anchor the mail poller uses to tell the triggered email apart from older
// reset emails in the same mailbox.
func (e *Engine) InitiateReset(ctx context.Context) (time.Time, error) {
	log.Info("Preparing to request password reset.")
	e.run = &runState{}
	for _, t := range e.transitions() {
		e.state = t.state
		log.Debugf("Reset flow entering step %s.", t.state)
		if err := t.run(ctx); err != nil {
			return time.Time{}, fmt.Errorf("step %s: %w", t.state, err)
		}
	}
	e.state = StateDone
	return e.run.requested, nil
}

// stepBootstrap establishes session cookies with the identity provider.
func (e *Engine) stepBootstrap(ctx context.Context) error {
	resp, err := e.sess.Get(ctx, e.idpBase+"/start")
	if err != nil {
		return fmt.Errorf("session bootstrap failed: %w", err)
	}
	session.Discard(resp)
	return nil
}

// stepIdentify tells the provider which account is being reset.
func (e *Engine) stepIdentify(ctx context.Context) error {
	resp, err := e.sess.PostForm(ctx, e.idpBase+"/postNetId", url.Values{"netId": {e.netID}})
	if err != nil {
		return fmt.Errorf("failed to submit NetID: %w", err)
	}
	session.Discard(resp)
	log.Info("Starting authentication.")
	return nil
}

// stepMFARedirect requests the forgotten-password options. The provider must
// answer with a 302 pointing at Duo's authorize endpoint; anything else
// means the flow has changed or the account cannot use the email option.
func (e *Engine) stepMFARedirect(ctx context.Context) error {
	endpoint := e.idpBase + "/forgottenPWoptions"
	resp, err := e.sess.GetNoRedirect(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("failed to request reset options: %w", err)
	}
	session.Discard(resp)
	if resp.StatusCode != http.StatusFound {
		return &ProtocolViolationError{
			Endpoint: endpoint,
			Expected: "302 redirect to MFA",
			Actual:   resp.Status,
		}
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return &ProtocolViolationError{Endpoint: endpoint, Expected: "Location header", Actual: "none"}
	}
	e.run.duoAuthURL = location
	return nil
}

// stepMFAFrame follows the authorize redirect to discover the frame URL and
// captures the challenge-session identifier (sid) from its query string.
func (e *Engine) stepMFAFrame(ctx context.Context) error {
	resp, err := e.sess.GetNoRedirect(ctx, e.run.duoAuthURL)
	if err != nil {
		return fmt.Errorf("failed to follow MFA authorize redirect: %w", err)
	}
	session.Discard(resp)
	location := resp.Header.Get("Location")
	if location == "" {
		return &ProtocolViolationError{
			Endpoint: e.run.duoAuthURL,
			Expected: "redirect to authentication frame",
			Actual:   resp.Status,
		}
	}
	e.run.frameURL = e.duoBase + location
	parsed, err := url.Parse(e.run.frameURL)
	if err != nil {
		return fmt.Errorf("failed to parse frame URL %q: %w", e.run.frameURL, err)
	}
	sid := parsed.Query().Get("sid")
	if sid == "" {
		return &ProtocolViolationError{Endpoint: e.run.frameURL, Expected: "sid query parameter", Actual: "none"}
	}
	e.run.sid = sid
	return nil
}

// stepFrameForm loads the frame page and scrapes the hidden anti-forgery
// tokens needed for the rest of the handshake.
func (e *Engine) stepFrameForm(ctx context.Context) error {
	resp, err := e.sess.Get(ctx, e.run.frameURL)
	if err != nil {
		return fmt.Errorf("failed to load MFA frame: %w", err)
	}
	body, err := session.ReadBody(resp)
	if err != nil {
		return err
	}
	values, missing := hiddenInputs(body, "tx", "akey", "_xsrf")
	if len(missing) > 0 {
		return &ProtocolViolationError{
			Endpoint: e.run.frameURL,
			Expected: "hidden inputs tx, akey, _xsrf",
			Actual:   fmt.Sprintf("missing %v", missing),
		}
	}
	e.run.tx = values["tx"]
	e.run.akey = values["akey"]
	e.run.xsrf = values["_xsrf"]
	return nil
}

// stepDeviceAck posts the captured tokens plus fixed platform metadata back
// to the frame, which redirects to the prompt endpoint.
func (e *Engine) stepDeviceAck(ctx context.Context) error {
	form := url.Values{
		"tx":      {e.run.tx},
		"parent":  {"None"},
		"_xsrf":   {e.run.xsrf},
		"version": {"v4"},
		"akey":    {e.run.akey},
		"is_user_verifying_platform_authenticator_available": {"false"},
	}
	resp, err := e.sess.PostFormNoRedirect(ctx, e.run.frameURL, form)
	if err != nil {
		return fmt.Errorf("failed to acknowledge device context: %w", err)
	}
	session.Discard(resp)
	location := resp.Header.Get("Location")
	if location == "" {
		return &ProtocolViolationError{
			Endpoint: e.run.frameURL,
			Expected: "redirect to prompt endpoint",
			Actual:   resp.Status,
		}
	}
	e.run.promptURL = e.duoBase + location
	return nil
}

// stepPasscode computes the TOTP code for the current time step and submits
// it as the Passcode factor. Only the derived 6-digit code ever goes over
// the wire; the shared secret stays local.
func (e *Engine) stepPasscode(ctx context.Context) error {
	code, err := passcode.Generate(e.duoSecret, e.now())
	if err != nil {
		return fmt.Errorf("failed to compute passcode: %w", err)
	}
	endpoint := e.duoBase + "/frame/v4/prompt"
	resp, err := e.sess.PostForm(ctx, endpoint, url.Values{
		"passcode":            {code},
		"device":              {"null"},
		"factor":              {"Passcode"},
		"postAuthDestination": {"OIDC_EXIT"},
		"browser_features":    {browserFeatures},
		"sid":                 {e.run.sid},
	})
	if err != nil {
		return fmt.Errorf("failed to submit passcode: %w", err)
	}
	body, err := session.ReadBody(resp)
	if err != nil {
		return err
	}
	txid := gjson.Get(body, "response.txid").String()
	if txid == "" {
		return &ProtocolViolationError{Endpoint: endpoint, Expected: "response.txid", Actual: body}
	}
	e.run.txid = txid
	return nil
}

// stepStatus confirms that Duo accepted the passcode. A failed passcode is
// not retried here: a new attempt needs a fresh code from a new time step,
// which means re-running the whole flow.
func (e *Engine) stepStatus(ctx context.Context) error {
	endpoint := e.duoBase + "/frame/v4/status"
	resp, err := e.sess.PostForm(ctx, endpoint, url.Values{
		"txid": {e.run.txid},
		"sid":  {e.run.sid},
	})
	if err != nil {
		return fmt.Errorf("failed to query authentication status: %w", err)
	}
	body, err := session.ReadBody(resp)
	if err != nil {
		return err
	}
	result := gjson.Get(body, "response.result")
	if !result.Exists() {
		return &ProtocolViolationError{Endpoint: endpoint, Expected: "response.result", Actual: body}
	}
	if result.String() != "SUCCESS" {
		return &AuthFailedError{
			Result: result.String(),
			Reason: gjson.Get(body, "response.reason").String(),
		}
	}
	log.Info("Duo authentication succeeded.")
	return nil
}

// stepExit records the correlation anchor and triggers the email send. The
// timestamp is taken immediately before the side-effecting call so that the
// confirmation email can only postdate it (minus mail-server clock skew).
func (e *Engine) stepExit(ctx context.Context) error {
	e.run.requested = e.now().UTC()
	endpoint := e.duoBase + "/frame/v4/oidc/exit"
	resp, err := e.sess.PostForm(ctx, endpoint, url.Values{
		"txid":          {e.run.txid},
		"sid":           {e.run.sid},
		"factor":        {"Duo+Mobile+Passcode"},
		"device_key":    {""},
		"_xsrf":         {e.run.xsrf},
		"dampen_choice": {"true"},
	})
	if err != nil {
		return fmt.Errorf("failed to trigger reset email: %w", err)
	}
	body, err := session.ReadBody(resp)
	if err != nil {
		return err
	}
	payload, ok := firstScriptPayload(body)
	if !ok {
		return &ProtocolViolationError{Endpoint: endpoint, Expected: "embedded options script", Actual: "none found"}
	}
	if gjson.Get(payload, "pwEmailLocked").Bool() {
		reason := "email reset option is disabled"
		if until := gjson.Get(payload, "pwEmailLockedUntil"); until.Exists() {
			reason = fmt.Sprintf("email reset option is disabled until %s", until.String())
		}
		return &AuthFailedError{Result: "LOCKED", Reason: reason}
	}
	return nil
}
