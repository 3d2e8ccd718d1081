package tool

import (
	"context"
	"fmt"
	"net/url"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// ProbeResult is the outcome of one ICMP probe.
type ProbeResult struct {
	Host    string        `json:"host"`
	Reached bool          `json:"reached"`
	RTT     time.Duration `json:"rtt"`
}

// HostFromURL extracts the host name of a backend URL.
func HostFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %v", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("URL %q has no host", raw)
	}
	return u.Hostname(), nil
}

// ProbeHost sends a single unprivileged ICMP echo to host.
func ProbeHost(ctx context.Context, host string, timeout time.Duration) (ProbeResult, error) {
	result := ProbeResult{Host: host}
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return result, fmt.Errorf("failed to create pinger for %s: %v", host, err)
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)
	if err := pinger.RunWithContext(ctx); err != nil {
		return result, fmt.Errorf("ping %s failed: %v", host, err)
	}
	stats := pinger.Statistics()
	result.Reached = stats.PacketsRecv > 0
	result.RTT = stats.AvgRtt
	return result, nil
}
