package tool

import (
	"net"
	"net/http"
	"time"
)

var (
	DefaultTimeout = 30 * time.Second
	BackendClient  *http.Client
)

func init() {
	BackendClient = NewHTTPClient(DefaultTimeout)
}

// NewHTTPClient creates the client used for backend calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   false,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// InitHTTPClients (re)initializes the backend client with the configured timeout.
func InitHTTPClients(timeout time.Duration) {
	BackendClient = NewHTTPClient(timeout)
}

func GetHttpClient() *http.Client {
	return BackendClient
}
