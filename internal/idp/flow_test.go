package idp

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/illinilabs/netreset/internal/passcode"
	"github.com/illinilabs/netreset/internal/session"
)

const testSID = "frameless-11111111-2222-3333-4444-555555555555"

var testSecret = base32.StdEncoding.EncodeToString([]byte("test-duo-shared-seed"))

// fakeProvider simulates both the identity provider and Duo on one server.
type fakeProvider struct {
	baseURL string

	optionsStatus string // non-empty: override /forgottenPWoptions behavior
	statusResult  string
	statusReason  string
	emailLocked   bool
	lockedUntil   string

	gotPasscode string
	gotNetID    string
	gotXSRF     string
}

func newFakeProvider(t *testing.T) (*fakeProvider, *httptest.Server) {
	t.Helper()
	fp := &fakeProvider{statusResult: "SUCCESS"}
	mux := http.NewServeMux()

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "fake-session"})
	})
	mux.HandleFunc("/postNetId", func(w http.ResponseWriter, r *http.Request) {
		fp.gotNetID = r.FormValue("netId")
	})
	mux.HandleFunc("/forgottenPWoptions", func(w http.ResponseWriter, r *http.Request) {
		if fp.optionsStatus != "" {
			http.Error(w, fp.optionsStatus, http.StatusOK)
			return
		}
		w.Header().Set("Location", fp.baseURL+"/oauth/v1/authorize?scope=openid")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/oauth/v1/authorize", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/frame/frameless/v4/auth?sid="+testSID+"&tx=outer-tx")
		w.WriteHeader(http.StatusSeeOther)
	})
	mux.HandleFunc("/frame/frameless/v4/auth", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			fp.gotXSRF = r.FormValue("_xsrf")
			w.Header().Set("Location", "/frame/v4/prompt?sid="+testSID)
			w.WriteHeader(http.StatusFound)
			return
		}
		fmt.Fprint(w, `<html><body><form>
			<input type="hidden" name="tx" value="tx-value">
			<input type="hidden" name="akey" value="akey-value">
			<input type="hidden" name="_xsrf" value="xsrf-value">
		</form></body></html>`)
	})
	mux.HandleFunc("/frame/v4/prompt", func(w http.ResponseWriter, r *http.Request) {
		fp.gotPasscode = r.FormValue("passcode")
		fmt.Fprint(w, `{"stat":"OK","response":{"txid":"txid-42","redirect_to_inline_auth":false}}`)
	})
	mux.HandleFunc("/frame/v4/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"response":{"result":%q,"reason":%q}}`, fp.statusResult, fp.statusReason)
	})
	mux.HandleFunc("/frame/v4/oidc/exit", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><script>var pageData = {"pwEmailLocked":%t,"pwEmailLockedUntil":%q};</script></head><body></body></html>`,
			fp.emailLocked, fp.lockedUntil)
	})

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	fp.baseURL = ts.URL
	return fp, ts
}

func newTestEngine(t *testing.T, ts *httptest.Server, now time.Time) *Engine {
	t.Helper()
	sess, err := session.New("")
	if err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(sess, "jdoe2", testSecret)
	engine.SetEndpoints(ts.URL, ts.URL)
	engine.now = func() time.Time { return now }
	return engine
}

func TestInitiateResetHappyPath(t *testing.T) {
	fp, ts := newFakeProvider(t)
	instant := time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	engine := newTestEngine(t, ts, instant)

	requested, err := engine.InitiateReset(context.Background())
	if err != nil {
		t.Fatalf("InitiateReset: %v", err)
	}
	if !requested.Equal(instant) {
		t.Errorf("requested timestamp = %s, want %s", requested, instant)
	}
	if engine.State() != StateDone {
		t.Errorf("engine state = %s, want %s", engine.State(), StateDone)
	}
	if fp.gotNetID != "jdoe2" {
		t.Errorf("provider saw netId %q, want %q", fp.gotNetID, "jdoe2")
	}
	if fp.gotXSRF != "xsrf-value" {
		t.Errorf("device ack carried _xsrf %q, want %q", fp.gotXSRF, "xsrf-value")
	}
	want, err := passcode.Generate(testSecret, instant)
	if err != nil {
		t.Fatal(err)
	}
	if fp.gotPasscode != want {
		t.Errorf("submitted passcode %q, want %q", fp.gotPasscode, want)
	}
	if engine.run.sid != testSID {
		t.Errorf("captured sid %q, want %q", engine.run.sid, testSID)
	}
}

func TestInitiateResetProtocolViolationOnMissingRedirect(t *testing.T) {
	fp, ts := newFakeProvider(t)
	fp.optionsStatus = "options page instead of redirect"
	engine := newTestEngine(t, ts, time.Now())

	_, err := engine.InitiateReset(context.Background())
	var pv *ProtocolViolationError
	if !errors.As(err, &pv) {
		t.Fatalf("got %v, want ProtocolViolationError", err)
	}
	if engine.State() != StateMFARedirect {
		t.Errorf("engine stopped in %s, want %s", engine.State(), StateMFARedirect)
	}
}

func TestInitiateResetAuthFailure(t *testing.T) {
	fp, ts := newFakeProvider(t)
	fp.statusResult = "DENY"
	fp.statusReason = "Incorrect passcode"
	engine := newTestEngine(t, ts, time.Now())

	_, err := engine.InitiateReset(context.Background())
	var af *AuthFailedError
	if !errors.As(err, &af) {
		t.Fatalf("got %v, want AuthFailedError", err)
	}
	if af.Result != "DENY" || af.Reason != "Incorrect passcode" {
		t.Errorf("got result=%q reason=%q", af.Result, af.Reason)
	}
}

func TestInitiateResetEmailLocked(t *testing.T) {
	fp, ts := newFakeProvider(t)
	fp.emailLocked = true
	fp.lockedUntil = "2025-04-01 00:00:00"
	engine := newTestEngine(t, ts, time.Now())

	_, err := engine.InitiateReset(context.Background())
	var af *AuthFailedError
	if !errors.As(err, &af) {
		t.Fatalf("got %v, want AuthFailedError", err)
	}
	if af.Result != "LOCKED" {
		t.Errorf("result = %q, want LOCKED", af.Result)
	}
}

func TestInitiateResetFreshTokensPerRun(t *testing.T) {
	_, ts := newFakeProvider(t)
	engine := newTestEngine(t, ts, time.Now())

	if _, err := engine.InitiateReset(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := engine.run
	if _, err := engine.InitiateReset(context.Background()); err != nil {
		t.Fatal(err)
	}
	if engine.run == first {
		t.Error("second run reused the first run's token state")
	}
}
