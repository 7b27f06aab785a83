// Command healthcheck probes the dispatchd health endpoint and exits 0 or 1.
// It exists because the scratch runtime image has no shell or curl for a
// container HEALTHCHECK to call.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	defaultAddr  = "127.0.0.1:8080"
	probeTimeout = 2 * time.Second
)

func main() {
	if !healthy() {
		os.Exit(1)
	}
}

func healthy() bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	url := "http://" + probeAddr(os.Getenv("DISPATCH_LISTEN_ADDR")) + "/api/v1/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	client := &http.Client{Timeout: probeTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// probeAddr turns the server's bind address into a dialable one. The probe
// runs inside the same container, so a 0.0.0.0 or empty host means loopback.
func probeAddr(bindAddr string) string {
	host, port, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
