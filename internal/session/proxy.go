package session

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/proxy"
)

// newTransport builds an HTTP transport honoring the configured proxy URL.
// Supports http, https, and socks5 schemes; an empty URL yields the default
// transport.
func newTransport(proxyURL string) (*http.Transport, error) {
	if proxyURL == "" {
		return &http.Transport{}, nil
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proxy URL %q: %w", proxyURL, err)
	}
	switch parsed.Scheme {
	case "socks5":
		var auth *proxy.Auth
		if parsed.User != nil {
			password, _ := parsed.User.Password()
			auth = &proxy.Auth{User: parsed.User.Username(), Password: password}
		}
		dialer, errSOCKS5 := proxy.SOCKS5("tcp", parsed.Host, auth, proxy.Direct)
		if errSOCKS5 != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", errSOCKS5)
		}
		return &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}, nil
	case "http", "https":
		return &http.Transport{Proxy: http.ProxyURL(parsed)}, nil
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", parsed.Scheme)
	}
}
