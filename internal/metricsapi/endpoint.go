package metricsapi

import (
	"context"
	"crypto/tls"
	"github.com/certifi/gocertifi"
	"github.com/sirupsen/logrus"
	"net"
	"net/http"
	"strings"
	"time"
)

const unixBaseURL = "http://unix"

var caCerts = gocertifi.CACerts

type transport struct {
	baseURL  string
	socket   string
	insecure bool
}

func transportSettings(endpoint string) transport {
	endpoint = strings.TrimSuffix(endpoint, "/")

	// HTTP is always insecure
	if strings.HasPrefix(endpoint, "http://") {
		return transport{baseURL: endpoint, insecure: true}
	}

	// Unix domain sockets are always insecure
	if strings.HasPrefix(endpoint, "unix:") {
		socket := strings.TrimPrefix(strings.TrimPrefix(endpoint, "unix:"), "//")

		return transport{baseURL: unixBaseURL, socket: socket, insecure: true}
	}

	// HTTPS and other cases are always secure
	endpoint = strings.TrimPrefix(endpoint, "https://")

	return transport{baseURL: "https://" + endpoint}
}

func (transport transport) httpClient(logger logrus.FieldLogger) *http.Client {
	roundTripper := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if !transport.insecure {
		certPool, err := caCerts()
		if err != nil {
			logger.Warnf("Failed to load bundled CA certificates, falling back to the system ones: %v", err)
		}
		roundTripper.TLSClientConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    certPool,
		}
	}

	if transport.socket != "" {
		socket := transport.socket
		dialer := &net.Dialer{Timeout: 10 * time.Second}
		roundTripper.Proxy = nil
		roundTripper.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socket)
		}
	}

	return &http.Client{Transport: roundTripper}
}
