package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/newrelic/nrlogsink/common"
	"github.com/newrelic/nrlogsink/config"
	"github.com/newrelic/nrlogsink/logger"
	"github.com/newrelic/nrlogsink/sink"
	"github.com/newrelic/nrlogsink/transport"
	"github.com/newrelic/nrlogsink/unmarshal"
)

// dryRunKey stands in for a key when nothing is sent.
const dryRunKey = "dry-run"

// buildConfig layers the flags that were set over the configuration file and the environment.
func buildConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	var cfg config.Config
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.FromEnv(); err != nil {
		return cfg, err
	}

	set := cmd.Flags().Changed
	str := []struct {
		flag  string
		value string
		field *string
	}{
		{"app", f.app, &cfg.ApplicationName},
		{"endpoint", f.endpoint, &cfg.EndpointURL},
		{"region", f.region, &cfg.Region},
		{"license-key", f.licenseKey, &cfg.LicenseKey},
		{"insert-key", f.insertKey, &cfg.InsertKey},
		{"min-level", f.minLevel, &cfg.MinimumLevel},
		{"delivery", f.delivery, &cfg.Delivery},
	}
	for _, s := range str {
		if set(s.flag) {
			*s.field = s.value
		}
	}
	if set("batch-size") {
		cfg.BatchSizeLimit = f.batchSize
	}
	if set("period") {
		cfg.Period = config.Duration{Duration: f.period}
	}

	if f.dryRun {
		if cfg.LicenseKey == "" && cfg.InsertKey == "" {
			cfg.LicenseKey = dryRunKey
		}
		return cfg, nil
	}
	if err := cfg.ResolveLicenseKey(cmd.Context()); err != nil {
		return cfg, fmt.Errorf("resolve license key: %w", err)
	}
	return cfg, nil
}

// printDeliverer writes every item as one JSON line and accepts the batch.
type printDeliverer struct {
	enc *json.Encoder
}

func newPrintDeliverer(w io.Writer) *printDeliverer {
	return &printDeliverer{enc: json.NewEncoder(w)}
}

func (p *printDeliverer) Deliver(_ context.Context, items []common.LogItem) (transport.Outcome, error) {
	for _, item := range items {
		if err := p.enc.Encode(item); err != nil {
			return transport.Rejected, err
		}
	}
	return transport.Accepted, nil
}

func ship(cmd *cobra.Command, f *flags, args []string) error {
	level := "info"
	if f.verbose {
		level = "debug"
	}
	log := logger.NewLogrusLogger(logger.WithLogLevel(level), logger.WithOutput(cmd.ErrOrStderr()))

	cfg, err := buildConfig(cmd, f)
	if err != nil {
		return err
	}

	opts := []sink.Option{sink.WithLogger(log)}
	if f.dryRun {
		opts = append(opts, sink.WithDeliverer(newPrintDeliverer(cmd.OutOrStdout())))
	}
	if f.metricsListen != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, sink.WithRegisterer(reg))
		srv := &http.Server{
			Addr:    f.metricsListen,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
		defer srv.Close()
		log.WithField("addr", f.metricsListen).Info("serving metrics")
	}

	s, err := sink.New(cfg, opts...)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = []string{"-"}
	}
	var readErr error
	for _, name := range args {
		if err := readFile(cmd, name, s, log); err != nil {
			readErr = errors.Join(readErr, err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.Close(ctx); err != nil {
		return errors.Join(readErr, fmt.Errorf("close: %w", err))
	}
	return readErr
}

func readFile(cmd *cobra.Command, name string, s *sink.Sink, log logrus.FieldLogger) error {
	in := cmd.InOrStdin()
	if name != "-" {
		file, err := os.Open(name)
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}

	return unmarshal.Lines(in, s.Submit, func(line int, err error) {
		log.WithFields(logrus.Fields{
			"file":  name,
			"line":  line,
			"error": err,
		}).Warn("line skipped, it is not a log record")
	})
}
