package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/yaml"

	"github.com/newrelic/nrlogsink/common"
	"github.com/newrelic/nrlogsink/event"
	"github.com/newrelic/nrlogsink/sanitize"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nrlogsink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestLoad tests reading a YAML file.
func TestLoad(t *testing.T) {
	path := writeConfig(t, `
applicationName: checkout
region: EU
licenseKey: abc
batchSizeLimit: 250
period: 5s
shutdownGrace: 3
minimumLevel: warning
customEventName: CheckoutEvent
allowList: metric
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "checkout", cfg.ApplicationName)
	assert.Equal(t, "EU", cfg.Region)
	assert.Equal(t, "abc", cfg.LicenseKey)
	assert.Equal(t, 250, cfg.BatchSizeLimit)
	assert.Equal(t, 5*time.Second, cfg.Period.Duration)
	assert.Equal(t, 3*time.Second, cfg.ShutdownGrace.Duration)
	assert.Equal(t, "warning", cfg.MinimumLevel)
	assert.Equal(t, "CheckoutEvent", cfg.CustomEventName)
	assert.Equal(t, AllowListMetric, cfg.AllowList)
}

// TestLoadErrors tests unreadable and malformed files.
func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "unknown field", content: "applicationName: a\nflushEvery: 2s\n"},
		{name: "bad duration", content: "period: soon\n"},
		{name: "not yaml", content: "applicationName: [unclosed\n"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// TestDurationRoundTrip tests that durations are written as strings.
func TestDurationRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Config{ApplicationName: "a", Period: Duration{1500 * time.Millisecond}})
	require.NoError(t, err)
	assert.Contains(t, string(out), "period: 1.5s")
}

// TestFromEnv tests the environment overlay.
func TestFromEnv(t *testing.T) {
	t.Setenv(common.EnvAppName, "from-env")
	t.Setenv(common.EnvEndpoint, "https://example.test/log/v1")
	t.Setenv(common.EnvInsertKey, "insert")
	t.Setenv(common.EnvBatchSize, "10")
	t.Setenv(common.EnvPeriod, "250ms")
	t.Setenv(common.EnvMinimumLevel, "Error")
	t.Setenv(common.EnvLicenseKey, "")

	cfg := Config{ApplicationName: "from-file", LicenseKey: "kept"}
	require.NoError(t, cfg.FromEnv())

	assert.Equal(t, "from-env", cfg.ApplicationName)
	assert.Equal(t, "https://example.test/log/v1", cfg.EndpointURL)
	assert.Equal(t, "kept", cfg.LicenseKey, "empty variables do not override")
	assert.Equal(t, "insert", cfg.InsertKey)
	assert.Equal(t, 10, cfg.BatchSizeLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.Period.Duration)
	assert.Equal(t, event.Error, cfg.Level())
}

// TestFromEnvErrors tests malformed numeric variables.
func TestFromEnvErrors(t *testing.T) {
	t.Run("batch size", func(t *testing.T) {
		t.Setenv(common.EnvBatchSize, "lots")
		var cfg Config
		assert.ErrorContains(t, cfg.FromEnv(), common.EnvBatchSize)
	})
	t.Run("period", func(t *testing.T) {
		t.Setenv(common.EnvPeriod, "often")
		var cfg Config
		assert.ErrorContains(t, cfg.FromEnv(), common.EnvPeriod)
	})
}

// TestValidate tests required settings and defaults.
func TestValidate(t *testing.T) {
	testCases := []struct {
		name     string
		cfg      Config
		expected error
		message  string
	}{
		{name: "missing application", cfg: Config{LicenseKey: "k"}, expected: ErrMissingApplication},
		{name: "missing key", cfg: Config{ApplicationName: "a"}, expected: ErrMissingKey},
		{name: "relative endpoint", cfg: Config{ApplicationName: "a", LicenseKey: "k", EndpointURL: "/log/v1"}, expected: ErrInvalidEndpoint},
		{name: "ftp endpoint", cfg: Config{ApplicationName: "a", LicenseKey: "k", EndpointURL: "ftp://x/y"}, expected: ErrInvalidEndpoint},
		{name: "bad level", cfg: Config{ApplicationName: "a", LicenseKey: "k", MinimumLevel: "loud"}, message: "minimumLevel"},
		{name: "bad allow list", cfg: Config{ApplicationName: "a", LicenseKey: "k", AllowList: "everything"}, message: "allowList"},
		{name: "bad delivery", cfg: Config{ApplicationName: "a", LicenseKey: "k", Delivery: "pigeon"}, message: "delivery"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.expected != nil {
				assert.ErrorIs(t, err, tc.expected)
			} else {
				assert.ErrorContains(t, err, tc.message)
			}
		})
	}
}

// TestValidateDefaults tests the values filled in by Validate.
func TestValidateDefaults(t *testing.T) {
	cfg := Config{ApplicationName: "a", InsertKey: "k"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, common.NewRelicLogsAPIEndpointUS, cfg.EndpointURL)
	assert.Equal(t, common.DefaultBatchSizeLimit, cfg.BatchSizeLimit)
	assert.Equal(t, common.DefaultPeriod, cfg.Period.Duration)
	assert.Equal(t, common.DefaultSendTimeout, cfg.SendTimeout.Duration)
	assert.Equal(t, common.DefaultShutdownGrace, cfg.ShutdownGrace.Duration)
	assert.Equal(t, common.DefaultCustomEventName, cfg.CustomEventName)
	assert.Equal(t, event.Verbose, cfg.Level())
	assert.Equal(t, AllowListLog, cfg.AllowList)
	assert.Equal(t, DeliveryHTTP, cfg.Delivery)
	assert.Equal(t, sanitize.LogAllowList, cfg.Sanitizer().AllowList())
}

// TestValidateNormalizesChoices tests that named choices are accepted in any case and stored in lower case.
func TestValidateNormalizesChoices(t *testing.T) {
	cfg := Config{ApplicationName: "a", LicenseKey: "k", Delivery: "CLIENT", AllowList: " Metric "}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DeliveryClient, cfg.Delivery)
	assert.Equal(t, AllowListMetric, cfg.AllowList)
}

// TestValidateRegion tests endpoint selection by region.
func TestValidateRegion(t *testing.T) {
	cfg := Config{ApplicationName: "a", LicenseKey: "k", Region: "eu"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, common.NewRelicLogsAPIEndpointEU, cfg.EndpointURL)

	cfg = Config{ApplicationName: "a", LicenseKey: "k", Region: "eu", EndpointURL: "http://localhost:8080/log"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:8080/log", cfg.EndpointURL, "an explicit endpoint wins")
}

// TestSanitizerPreset tests the narrower allow-list.
func TestSanitizerPreset(t *testing.T) {
	cfg := Config{AllowList: "Metric"}
	assert.Equal(t, sanitize.MetricAllowList, cfg.Sanitizer().AllowList())
	assert.Equal(t, "ab", cfg.Sanitizer().Sanitize("a.b"))
}
