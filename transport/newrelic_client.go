package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/newrelic/newrelic-client-go/v2/pkg/config"
	logging "github.com/newrelic/newrelic-client-go/v2/pkg/logs"
	"github.com/newrelic/newrelic-client-go/v2/pkg/region"

	"github.com/newrelic/nrlogsink/common"
)

// NewRelicClientAPI is an interface that defines the methods for interacting with the New Relic Logs API.
type NewRelicClientAPI interface {
	CreateLogEntry(logEntry interface{}) error
}

// ClientDeliverer delivers batches through the New Relic Go client, which selects the endpoint
// from a region and handles compression itself.
type ClientDeliverer struct {
	client      NewRelicClientAPI
	application string
	timeout     time.Duration
}

var _ Deliverer = (*ClientDeliverer)(nil)

// ClientOption configures a ClientDeliverer.
type ClientOption func(*ClientDeliverer)

// WithClientTimeout bounds each delivery through the client.
func WithClientTimeout(timeout time.Duration) ClientOption {
	return func(d *ClientDeliverer) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewClientDeliverer wraps client.
func NewClientDeliverer(client NewRelicClientAPI, application string, opts ...ClientOption) (*ClientDeliverer, error) {
	if client == nil {
		return nil, errors.New("transport: New Relic client is required")
	}
	if application == "" {
		return nil, ErrMissingApplication
	}
	d := &ClientDeliverer{client: client, application: application, timeout: common.DefaultSendTimeout}
	for _, fn := range opts {
		if fn != nil {
			fn(d)
		}
	}
	return d, nil
}

// Deliver sends items as one detailed log batch. The client does not expose the response
// status, so every failure is reported as NetworkFailure. The client call cannot be cancelled;
// when ctx ends or the timeout passes first, Deliver returns and the call is abandoned.
func (d *ClientDeliverer) Deliver(ctx context.Context, items []common.LogItem) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return NetworkFailure, err
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	batch := common.NewDetailedLogsBatch(d.application, items)
	done := make(chan error, 1)
	go func() {
		done <- d.client.CreateLogEntry(batch)
	}()

	select {
	case err := <-done:
		if err != nil {
			return NetworkFailure, fmt.Errorf("error posting log entry: %w", err)
		}
		return Accepted, nil
	case <-ctx.Done():
		return NetworkFailure, fmt.Errorf("error posting log entry: %w", ctx.Err())
	}
}

// NewNRClient Initializes a new NRClient with debug level and region
// It returns a NewRelicClientAPI interface and an error if there is a problem setting the region.
// A positive timeout bounds each HTTP request of the client.
func NewNRClient(regionName, licenseKey string, timeout time.Duration) (NewRelicClientAPI, error) {
	nrRegion, _ := region.Get(region.Name(regionName))
	var nrClient logging.Logs
	cfg := config.Config{
		Compression: config.Compression.Gzip,
	}
	if timeout > 0 {
		cfg.Timeout = &timeout
	}

	if os.Getenv(common.DebugEnabled) == "true" {
		cfg.LogLevel = "debug"
	} else {
		cfg.LogLevel = "info"
	}

	if err := cfg.SetRegion(nrRegion); err != nil {
		return &nrClient, err
	}
	if licenseKey == "" {
		return &nrClient, ErrMissingKey
	}

	cfg.LicenseKey = licenseKey
	nrClient = logging.New(cfg)
	return &nrClient, nil
}
