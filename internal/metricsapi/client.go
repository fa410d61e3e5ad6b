package metricsapi

import (
	"context"
	"encoding/json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"io"
	"net/http"
)

// Path is where the metrics endpoint lives relative to the base URL.
const Path = "/api/metrics/v1"

const maxResponseSize = 1 << 20

var ErrUnexpectedStatus = errors.New("unexpected metrics endpoint status")

type Client struct {
	url        string
	token      string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

type Option func(client *Client)

func WithToken(token string) Option {
	return func(client *Client) {
		client.token = token
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		client.httpClient = httpClient
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(client *Client) {
		client.logger = logger
	}
}

// New creates a client for the endpoint, which is either an http:// or
// https:// URL, a unix:/path/to/socket address or a bare host:port
// (reached over TLS).
func New(endpoint string, opts ...Option) *Client {
	transport := transportSettings(endpoint)

	client := &Client{
		url:    transport.baseURL + Path,
		logger: logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.httpClient == nil {
		client.httpClient = transport.httpClient(client.logger)
	}

	return client
}

func (client *Client) URL() string {
	return client.url
}

// Fetch queries the endpoint once. It satisfies poll.FetchFunc.
func (client *Client) Fetch(ctx context.Context) (*Payload, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, client.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create metrics request")
	}

	requestID := uuid.New().String()
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-Request-Id", requestID)
	if client.token != "" {
		request.Header.Set("Authorization", "token "+client.token)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query metrics endpoint")
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxResponseSize))

		return nil, errors.Wrapf(ErrUnexpectedStatus, "%s returned %d", client.url, response.StatusCode)
	}

	var payload Payload
	if err := json.NewDecoder(io.LimitReader(response.Body, maxResponseSize)).Decode(&payload); err != nil {
		return nil, errors.Wrapf(ErrMalformedPayload, "failed to decode response: %v", err)
	}

	if err := payload.Validate(); err != nil {
		return nil, err
	}

	client.logger.WithField("request_id", requestID).Trace("fetched metrics")

	return &payload, nil
}
