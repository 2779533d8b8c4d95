package classify

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/newrelic/nrlogsink/common"
	"github.com/newrelic/nrlogsink/event"
	"github.com/newrelic/nrlogsink/simplify"
)

// Project converts rec into a Log API item.
//
// The item always carries "level" and "stack_trace". Every attribute is simplified and stored
// under its sanitized name; when two names collide the first one wins. A mapping stored under
// "newrelic.linkingmetadata" is unrolled so that trace and entity identifiers become top-level
// attributes.
func (c *Classifier) Project(rec event.Record) (item common.LogItem, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("project: panic: %v", r)
		}
	}()

	stackTrace := ""
	if rec.Exception != nil {
		stackTrace = rec.Exception.StackTrace
	}
	attrs := common.LogAttributes{
		common.AttributeLevel:      rec.Level.String(),
		common.AttributeStackTrace: stackTrace,
	}

	for _, a := range rec.Attributes {
		if strings.EqualFold(a.Key, common.LinkingMetadata) {
			c.unrollLinkingMetadata(&rec, attrs, a.Value)
			continue
		}
		key := c.sanitizer.Sanitize(a.Key)
		if _, dup := attrs[key]; dup {
			c.duplicate(&rec, a.Key, key)
			continue
		}
		attrs[key] = simplify.Value(a.Value, simplify.WithCollisionReporter(c.collision(&rec, a.Key)))
	}

	return common.LogItem{
		Timestamp:  epochMillis(rec),
		Message:    rec.Message,
		Attributes: attrs,
	}, nil
}

func (c *Classifier) unrollLinkingMetadata(rec *event.Record, attrs common.LogAttributes, v event.Value) {
	m, ok := v.(event.Mapping)
	if !ok {
		return
	}
	for _, e := range m {
		key := fmt.Sprint(simplify.Value(e.Key))
		if _, dup := attrs[key]; dup {
			c.log.WithFields(logrus.Fields{
				"key":      key,
				"template": rec.MessageTemplate,
			}).Warn("linking metadata key dropped, attribute already set")
			continue
		}
		attrs[key] = simplify.Value(e.Value)
	}
}

func epochMillis(rec event.Record) int64 {
	if rec.Timestamp.IsZero() {
		return 0
	}
	return rec.Timestamp.UTC().UnixMilli()
}
