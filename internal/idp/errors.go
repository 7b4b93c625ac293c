package idp

import "fmt"

// ProtocolViolationError reports a provider response that does not match the
// documented reset flow: an unexpected HTTP status, a missing redirect
// Location, or a missing form field. It is fatal; the provider's behavior
// has changed or the account state is invalid, so retrying the same flow
// cannot succeed.
type ProtocolViolationError struct {
	Endpoint string
	Expected string
	Actual   string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("protocol violation at %s: expected %s, got %s", e.Endpoint, e.Expected, e.Actual)
}

// AuthFailedError reports that Duo rejected the authentication attempt or
// that the account's email-reset option is administratively locked. The
// Reason field carries the provider-supplied explanation.
type AuthFailedError struct {
	Result string
	Reason string
}

func (e *AuthFailedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("authentication failed: %s: %s", e.Result, e.Reason)
	}
	return fmt.Sprintf("authentication failed: %s", e.Result)
}

// SubmissionError reports that the final set-password call returned a
// non-success payload. Payload holds the raw response body for diagnosis.
type SubmissionError struct {
	Payload string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("password submission rejected: %s", e.Payload)
}
