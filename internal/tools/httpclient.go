// ABOUTME: Shared outbound HTTP client for tools and identity providers.

package tools

import (
	"net"
	"net/http"
	"time"
)

// Outbound timeouts.
const (
	ConnectTimeout = 30 * time.Second
	RequestTimeout = 60 * time.Second
)

// NewHTTPClient returns a client with a 30s connect and 60s overall timeout.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	return &http.Client{
		Transport: transport,
		Timeout:   RequestTimeout,
	}
}
