// Package transport delivers batches of log items to the New Relic Log API.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/newrelic/nrlogsink/common"
	"github.com/newrelic/nrlogsink/logger"
)

var log = logger.NewLogrusLogger(logger.WithDebugLevel())

var (
	ErrMissingEndpoint    = errors.New("transport: endpoint URL is required")
	ErrMissingApplication = errors.New("transport: application name is required")
	ErrMissingKey         = errors.New("transport: a license key or an insert key is required")
)

// Outcome is the result of one delivery attempt.
type Outcome int

const (
	Accepted Outcome = iota
	Rejected
	NetworkFailure
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "Accepted"
	case Rejected:
		return "Rejected"
	case NetworkFailure:
		return "NetworkFailure"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Deliverer sends one batch. Implementations never retry.
type Deliverer interface {
	Deliver(ctx context.Context, items []common.LogItem) (Outcome, error)
}

// StatusError is returned with Rejected when the Log API answers with anything but 202.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("log API returned status %d: %s", e.StatusCode, e.Body)
}

// Client posts gzip compressed batches to a Log API endpoint.
type Client struct {
	endpoint    string
	application string
	licenseKey  string
	insertKey   string
	timeout     time.Duration
	httpClient  *http.Client
	log         logrus.FieldLogger
}

var _ Deliverer = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLicenseKey authenticates with X-License-Key. It takes precedence over an insert key.
func WithLicenseKey(key string) Option {
	return func(c *Client) { c.licenseKey = strings.TrimSpace(key) }
}

// WithInsertKey authenticates with X-Insert-Key when no license key is set.
func WithInsertKey(key string) Option {
	return func(c *Client) { c.insertKey = strings.TrimSpace(key) }
}

// WithTimeout bounds each delivery, including reading the response.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// New returns a Client posting to endpoint on behalf of application.
func New(endpoint, application string, opts ...Option) (*Client, error) {
	c := &Client{
		endpoint:    strings.TrimSpace(endpoint),
		application: application,
		timeout:     common.DefaultSendTimeout,
		httpClient:  http.DefaultClient,
		log:         log,
	}
	for _, fn := range opts {
		if fn != nil {
			fn(c)
		}
	}

	switch {
	case c.endpoint == "":
		return nil, ErrMissingEndpoint
	case c.application == "":
		return nil, ErrMissingApplication
	case c.licenseKey == "" && c.insertKey == "":
		return nil, ErrMissingKey
	}
	return c, nil
}

// EndpointForRegion returns the Log API endpoint of a New Relic region. Unknown regions map to US.
func EndpointForRegion(region string) string {
	switch strings.ToLower(strings.TrimSpace(region)) {
	case "eu":
		return common.NewRelicLogsAPIEndpointEU
	default:
		return common.NewRelicLogsAPIEndpointUS
	}
}

// Encode serializes items as the Log API detailed JSON payload and gzips it.
func Encode(application string, items []common.LogItem) ([]byte, error) {
	payload, err := json.Marshal(common.NewDetailedLogsBatch(application, items))
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Deliver posts items once. A payload that cannot be encoded is Rejected without a request.
func (c *Client) Deliver(ctx context.Context, items []common.LogItem) (Outcome, error) {
	body, err := Encode(c.application, items)
	if err != nil {
		return Rejected, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return NetworkFailure, fmt.Errorf("create request: %w", err)
	}
	req.Close = true
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/gzip")
	req.Header.Set("Accept", "*/*")
	if c.licenseKey != "" {
		req.Header.Set(common.HeaderLicenseKey, c.licenseKey)
	} else {
		req.Header.Set(common.HeaderInsertKey, c.insertKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NetworkFailure, fmt.Errorf("post to %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Rejected, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	c.log.WithFields(logrus.Fields{
		"items":  len(items),
		"status": resp.StatusCode,
	}).Debug("batch accepted by the log API")
	return Accepted, nil
}
