// Command nrlogsink-fn is an Fn function that forwards structured log records to New Relic.
//
// The payload is a single record object or an array of records. Every call flushes what it
// submitted before returning, so nothing is left buffered when the function is frozen.
package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/fnproject/fdk-go"
	"github.com/sirupsen/logrus"

	"github.com/newrelic/nrlogsink/config"
	"github.com/newrelic/nrlogsink/event"
	"github.com/newrelic/nrlogsink/logger"
	"github.com/newrelic/nrlogsink/sink"
	"github.com/newrelic/nrlogsink/unmarshal"
)

var log = logger.NewLogrusLogger(logger.WithDebugLevel(), logger.WithJSONFormatter())

// recordSink is the part of *sink.Sink the handler uses.
type recordSink interface {
	Submit(event.Record)
	Flush(ctx context.Context) error
}

// result is written back to the caller.
type result struct {
	EventType string `json:"eventType,omitempty"`
	Records   int    `json:"records"`
	Error     string `json:"error,omitempty"`
}

func main() {
	cfg, err := config.FromEnvironment(context.Background())
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	s, err := sink.New(cfg, sink.WithLogger(log))
	if err != nil {
		log.Fatalf("Unable to start the log sink: %v", err)
	}

	fdk.Handle(fdk.HandlerFunc(func(ctx context.Context, in io.Reader, out io.Writer) {
		handleFunction(ctx, in, out, s)
	}))
}

// handleFunction decodes the incoming payload, submits every record and waits for them to be
// delivered. Failures are reported in the result and logged; they never abort the function.
func handleFunction(ctx context.Context, in io.Reader, out io.Writer, s recordSink) {
	var res result
	defer func() {
		if err := json.NewEncoder(out).Encode(res); err != nil {
			log.Errorf("Error writing function result: %v", err)
		}
	}()

	var e unmarshal.Event
	if err := e.Unmarshal(in); err != nil {
		log.Errorf("Error decoding incoming payload: %v", err)
		res.Error = err.Error()
		return
	}
	res.EventType = e.EventType

	for _, rec := range e.Records {
		s.Submit(rec)
	}
	res.Records = len(e.Records)
	log.WithFields(logrus.Fields{
		"eventType": e.EventType,
		"records":   len(e.Records),
	}).Debug("Submitted incoming records")

	if err := s.Flush(ctx); err != nil {
		log.Errorf("Error flushing records: %v", err)
		res.Error = err.Error()
	}
}
