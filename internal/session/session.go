// Package session provides the cookie-persisting HTTP client shared by the
// identity-provider and Duo calls. The reset flow spans two hosts and relies
// on server-set cookies surviving every hop, so a single jar backs all
// requests; redirect-sensitive steps use the no-follow variants to inspect
// Location headers themselves.
package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Session is an HTTP client that persists cookies across requests and can
// suppress redirect following per call.
type Session struct {
	client     *http.Client
	noRedirect *http.Client
}

// New creates a Session with a fresh cookie jar. An optional proxy URL
// (http, https, or socks5) is applied to the underlying transport.
func New(proxyURL string) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	transport, err := newTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	return &Session{
		client: &http.Client{Jar: jar, Transport: transport},
		noRedirect: &http.Client{
			Jar:       jar,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Get performs a GET request, following redirects.
func (s *Session) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	return s.do(ctx, s.client, http.MethodGet, rawURL, nil, "")
}

// GetNoRedirect performs a GET request without following redirects, so the
// caller can inspect the 3xx status and Location header.
func (s *Session) GetNoRedirect(ctx context.Context, rawURL string) (*http.Response, error) {
	return s.do(ctx, s.noRedirect, http.MethodGet, rawURL, nil, "")
}

// PostForm performs a form-encoded POST request, following redirects.
func (s *Session) PostForm(ctx context.Context, rawURL string, data url.Values) (*http.Response, error) {
	return s.do(ctx, s.client, http.MethodPost, rawURL, strings.NewReader(data.Encode()), "application/x-www-form-urlencoded")
}

// PostFormNoRedirect performs a form-encoded POST request without following
// redirects.
func (s *Session) PostFormNoRedirect(ctx context.Context, rawURL string, data url.Values) (*http.Response, error) {
	return s.do(ctx, s.noRedirect, http.MethodPost, rawURL, strings.NewReader(data.Encode()), "application/x-www-form-urlencoded")
}

func (s *Session) do(ctx context.Context, client *http.Client, method, rawURL string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request for %s: %w", method, rawURL, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return client.Do(req)
}

// ReadBody drains and closes the response body, returning it as a string.
func ReadBody(resp *http.Response) (string, error) {
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("failed to close response body: %v", errClose)
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(body), nil
}

// Discard drains and closes the response body, keeping the connection
// reusable when the caller only cares about status and headers.
func Discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
