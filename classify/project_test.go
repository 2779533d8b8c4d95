package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newrelic/nrlogsink/common"
	"github.com/newrelic/nrlogsink/event"
)

// TestProject tests the projection of a record into a Log API item.
func TestProject(t *testing.T) {
	c, _, hook := newTestClassifier()
	ts := time.Date(2024, 5, 6, 7, 8, 9, 10_000_000, time.FixedZone("CEST", 2*3600))

	item, err := c.Project(event.Record{
		Timestamp:       ts,
		Level:           event.Warning,
		MessageTemplate: "Cart {CartId} has {Count} items",
		Message:         "Cart 7 has 3 items",
		Exception:       &event.Exception{StackTrace: "at Cart.Add()"},
		Attributes: attrs(
			"CartId", 7,
			"Count", int64(3),
			"level", "shadowed",
			"Tags", event.Sequence{event.S("a"), event.S("b")},
			"Missing", nil,
		),
	})
	require.NoError(t, err)

	assert.Equal(t, ts.UnixMilli(), item.Timestamp)
	assert.Equal(t, "Cart 7 has 3 items", item.Message)
	assert.Equal(t, common.LogAttributes{
		"level":       "Warning",
		"stack_trace": "at Cart.Add()",
		"CartId":      7,
		"Count":       int64(3),
		"Tags":        []any{"a", "b"},
		"Missing":     "null",
	}, item.Attributes)
	assert.Len(t, hook.AllEntries(), 1, "the shadowed level attribute is reported")
}

// TestProjectDefaults tests the attributes present on every item.
func TestProjectDefaults(t *testing.T) {
	c, _, _ := newTestClassifier()

	item, err := c.Project(event.Record{Level: event.Information, Message: "hi"})
	require.NoError(t, err)

	assert.Equal(t, int64(0), item.Timestamp)
	assert.Equal(t, "Information", item.Attributes[common.AttributeLevel])
	assert.Equal(t, "", item.Attributes[common.AttributeStackTrace])
}

// TestProjectLinkingMetadata tests that linking metadata is unrolled into top-level attributes.
func TestProjectLinkingMetadata(t *testing.T) {
	c, _, _ := newTestClassifier()

	item, err := c.Project(event.Record{
		Attributes: attrs(
			"NewRelic.LinkingMetadata", event.Mapping{
				{Key: event.S("trace.id"), Value: event.S("abc")},
				{Key: event.S("entity.guid"), Value: event.S("MTIz")},
			},
		),
	})
	require.NoError(t, err)

	assert.Equal(t, "abc", item.Attributes["trace.id"])
	assert.Equal(t, "MTIz", item.Attributes["entity.guid"])
	assert.NotContains(t, item.Attributes, "NewRelic.LinkingMetadata")
}

// TestProjectLinkingMetadataNotAMapping tests that other shapes are ignored.
func TestProjectLinkingMetadataNotAMapping(t *testing.T) {
	c, _, _ := newTestClassifier()

	item, err := c.Project(event.Record{Attributes: attrs(common.LinkingMetadata, "scalar")})
	require.NoError(t, err)
	assert.Len(t, item.Attributes, 2)
}
