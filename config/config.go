// Package config loads the log sink configuration from YAML and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/newrelic/nrlogsink/common"
	"github.com/newrelic/nrlogsink/event"
	"github.com/newrelic/nrlogsink/logger"
	"github.com/newrelic/nrlogsink/sanitize"
	"github.com/newrelic/nrlogsink/transport"
)

var log = logger.NewLogrusLogger(logger.WithDebugLevel())

var (
	ErrMissingApplication = errors.New("config: applicationName is required")
	ErrInvalidEndpoint    = errors.New("config: endpointUrl must be an absolute http or https URL")
	ErrMissingKey         = errors.New("config: licenseKey or insertKey is required")
)

// Delivery backends.
const (
	DeliveryHTTP   = "http"
	DeliveryClient = "client"
)

// Allow-list presets.
const (
	AllowListLog    = "log"
	AllowListMetric = "metric"
)

// Config holds every setting of a log sink. Zero values are replaced with defaults by Validate.
type Config struct {
	ApplicationName string `json:"applicationName"`
	// EndpointURL takes precedence over Region.
	EndpointURL string `json:"endpointUrl,omitempty"`
	Region      string `json:"region,omitempty"`
	LicenseKey  string `json:"licenseKey,omitempty"`
	InsertKey   string `json:"insertKey,omitempty"`
	// SecretOCID and VaultRegion locate the license key in OCI Vault when no key is configured.
	SecretOCID  string `json:"secretOcid,omitempty"`
	VaultRegion string `json:"vaultRegion,omitempty"`

	BatchSizeLimit int      `json:"batchSizeLimit,omitempty"`
	Period         Duration `json:"period,omitempty"`
	SendTimeout    Duration `json:"sendTimeout,omitempty"`
	ShutdownGrace  Duration `json:"shutdownGrace,omitempty"`

	MinimumLevel    string `json:"minimumLevel,omitempty"`
	CustomEventName string `json:"customEventName,omitempty"`
	AllowList       string `json:"allowList,omitempty"`
	Delivery        string `json:"delivery,omitempty"`
}

// Duration is a time.Duration written as a Go duration string, e.g. "2s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d.Duration = v
		return nil
	}
	var seconds float64
	if err := json.Unmarshal(b, &seconds); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	d.Duration = time.Duration(seconds * float64(time.Second))
	return nil
}

// Load reads a YAML configuration file.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	log.WithField("path", path).Debug("configuration loaded")
	return cfg, nil
}

// FromEnv overlays the settings present in the environment onto c.
func (c *Config) FromEnv() error {
	str := map[string]*string{
		common.EnvAppName:      &c.ApplicationName,
		common.EnvEndpoint:     &c.EndpointURL,
		common.NewRelicRegion:  &c.Region,
		common.EnvLicenseKey:   &c.LicenseKey,
		common.EnvInsertKey:    &c.InsertKey,
		common.SecretOCID:      &c.SecretOCID,
		common.VaultRegion:     &c.VaultRegion,
		common.EnvMinimumLevel: &c.MinimumLevel,
		common.EnvDelivery:     &c.Delivery,
	}
	for name, field := range str {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*field = v
		}
	}

	if v, ok := os.LookupEnv(common.EnvBatchSize); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", common.EnvBatchSize, err)
		}
		c.BatchSizeLimit = n
	}
	if v, ok := os.LookupEnv(common.EnvPeriod); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", common.EnvPeriod, err)
		}
		c.Period = Duration{d}
	}
	return nil
}

// Validate checks required settings and fills in defaults.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ApplicationName) == "" {
		return ErrMissingApplication
	}

	if c.EndpointURL == "" {
		c.EndpointURL = transport.EndpointForRegion(c.Region)
	}
	u, err := url.Parse(c.EndpointURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, c.EndpointURL)
	}

	if c.LicenseKey == "" && c.InsertKey == "" {
		return ErrMissingKey
	}

	if c.BatchSizeLimit <= 0 {
		c.BatchSizeLimit = common.DefaultBatchSizeLimit
	}
	if c.Period.Duration <= 0 {
		c.Period.Duration = common.DefaultPeriod
	}
	if c.SendTimeout.Duration <= 0 {
		c.SendTimeout.Duration = common.DefaultSendTimeout
	}
	if c.ShutdownGrace.Duration <= 0 {
		c.ShutdownGrace.Duration = common.DefaultShutdownGrace
	}
	if c.CustomEventName == "" {
		c.CustomEventName = common.DefaultCustomEventName
	}

	if c.MinimumLevel == "" {
		c.MinimumLevel = event.Verbose.String()
	}
	if _, err := event.ParseLevel(c.MinimumLevel); err != nil {
		return fmt.Errorf("config: minimumLevel: %w", err)
	}

	c.AllowList = strings.ToLower(strings.TrimSpace(c.AllowList))
	switch c.AllowList {
	case "":
		c.AllowList = AllowListLog
	case AllowListLog, AllowListMetric:
	default:
		return fmt.Errorf("config: unknown allowList %q", c.AllowList)
	}

	c.Delivery = strings.ToLower(strings.TrimSpace(c.Delivery))
	switch c.Delivery {
	case "":
		c.Delivery = DeliveryHTTP
	case DeliveryHTTP, DeliveryClient:
	default:
		return fmt.Errorf("config: unknown delivery %q", c.Delivery)
	}
	return nil
}

// Level returns the minimum accepted level. Invalid names yield Verbose.
func (c *Config) Level() event.Level {
	l, err := event.ParseLevel(c.MinimumLevel)
	if err != nil {
		return event.Verbose
	}
	return l
}

// Sanitizer returns a sanitizer using the configured allow-list.
func (c *Config) Sanitizer() *sanitize.Sanitizer {
	if strings.EqualFold(c.AllowList, AllowListMetric) {
		return sanitize.New(sanitize.WithAllowList(sanitize.MetricAllowList))
	}
	return sanitize.Default
}
