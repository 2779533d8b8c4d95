// Command nrlogship reads newline delimited JSON log records from files or standard input
// and ships them to the New Relic Log API.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newrelic/nrlogsink/common"
)

// flags holds the command line settings. Settings left unset fall back to the
// configuration file and then to the environment.
type flags struct {
	configFile    string
	app           string
	endpoint      string
	region        string
	licenseKey    string
	insertKey     string
	batchSize     int
	period        time.Duration
	minLevel      string
	delivery      string
	dryRun        bool
	metricsListen string
	verbose       bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "nrlogship [FILE...]",
		Short: "Ship newline delimited JSON log records to New Relic",
		Long: `Reads one JSON log record per line from each FILE, or from standard input when no FILE
or "-" is given, and delivers them in batches. Records that cannot be decoded are reported
and skipped.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ship(cmd, f, args)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configFile, "config", "c", os.Getenv(common.EnvConfigFile), "YAML configuration file")
	fs.StringVar(&f.app, "app", "", "Application name attached to every record")
	fs.StringVar(&f.endpoint, "endpoint", "", "Log API endpoint URL, overrides --region")
	fs.StringVar(&f.region, "region", "", "New Relic region: us or eu")
	fs.StringVar(&f.licenseKey, "license-key", "", "New Relic license key")
	fs.StringVar(&f.insertKey, "insert-key", "", "New Relic insert key, used when no license key is set")
	fs.IntVar(&f.batchSize, "batch-size", 0, "Maximum number of records per request")
	fs.DurationVar(&f.period, "period", 0, "Time between flushes")
	fs.StringVar(&f.minLevel, "min-level", "", "Minimum level of shipped records")
	fs.StringVar(&f.delivery, "delivery", "", "Delivery backend: http or client")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Print the projected items as NDJSON instead of sending them")
	fs.StringVar(&f.metricsListen, "metrics-listen", "", "Serve Prometheus metrics on this address, e.g. :9090")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Log debug diagnostics")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
