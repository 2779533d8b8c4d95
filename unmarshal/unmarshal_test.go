package unmarshal

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newrelic/nrlogsink/event"
)

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	original := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = original })
	return fixed
}

// TestUnmarshalRecordBatch tests decoding an array of flat records, keeping attribute order.
func TestUnmarshalRecordBatch(t *testing.T) {
	input := []byte(`[
		{"timestamp":"2023-01-01T12:00:00Z","level":"INFO","message":"Application started successfully","service":"web-server","compartmentId":"ocid1.compartment.test"},
		{"timestamp":"2023-01-01T12:01:00Z","level":"ERROR","message":"Database connection failed","service":"web-server","error":"connection timeout"}
	]`)

	var e Event
	require.NoError(t, e.Unmarshal(bytes.NewReader(input)))

	assert.Equal(t, RECORD_BATCH, e.EventType)
	require.Len(t, e.Records, 2)

	first := e.Records[0]
	assert.Equal(t, time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC), first.Timestamp.UTC())
	assert.Equal(t, event.Information, first.Level)
	assert.Equal(t, "Application started successfully", first.Message)
	assert.Equal(t, []event.Attribute{
		{Key: "service", Value: event.S("web-server")},
		{Key: "compartmentId", Value: event.S("ocid1.compartment.test")},
	}, first.Attributes)

	second := e.Records[1]
	assert.Equal(t, event.Error, second.Level)
	assert.Equal(t, "error", second.Attributes[1].Key)
}

// TestUnmarshalCompactRecord tests the compact member names, template rendering and value shapes.
func TestUnmarshalCompactRecord(t *testing.T) {
	input := `{
		"@t": 1700000000123,
		"@l": "Warning",
		"@mt": "Cart {CartId} holds {Count} items",
		"@x": "System.TimeoutException: took too long\n   at Cart.Load()",
		"CartId": 42,
		"Count": 2.5,
		"Paid": false,
		"Tags": ["a", null],
		"Owner": {"$type": "Customer", "Name": "ada", "Vip": true},
		"Headers": {"b": 1, "a": 2}
	}`

	var e Event
	require.NoError(t, e.UnmarshalBytes([]byte(input)))
	assert.Equal(t, SINGLE_RECORD, e.EventType)
	require.Len(t, e.Records, 1)
	rec := e.Records[0]

	assert.Equal(t, time.UnixMilli(1700000000123), rec.Timestamp)
	assert.Equal(t, event.Warning, rec.Level)
	assert.Equal(t, "Cart 42 holds 2.5 items", rec.Message)
	require.NotNil(t, rec.Exception)
	assert.Equal(t, "System.TimeoutException", rec.Exception.Type)
	assert.Equal(t, "took too long", rec.Exception.Message)
	assert.Contains(t, rec.Exception.StackTrace, "at Cart.Load()")

	assert.Equal(t, []event.Attribute{
		{Key: "CartId", Value: event.S(int64(42))},
		{Key: "Count", Value: event.S(2.5)},
		{Key: "Paid", Value: event.S(false)},
		{Key: "Tags", Value: event.Sequence{event.S("a"), event.S(nil)}},
		{Key: "Owner", Value: event.Structure{TypeTag: "Customer", Fields: []event.Field{
			{Name: "Name", Value: event.S("ada")},
			{Name: "Vip", Value: event.S(true)},
		}}},
		{Key: "Headers", Value: event.Mapping{
			{Key: event.S("b"), Value: event.S(int64(1))},
			{Key: event.S("a"), Value: event.S(int64(2))},
		}},
	}, rec.Attributes)
}

// TestUnmarshalAttributesMember tests the nested attributes object and exception objects.
func TestUnmarshalAttributesMember(t *testing.T) {
	input := `{
		"messageTemplate": "Order placed",
		"message": "Order placed!",
		"exception": {"type": "IOError", "message": "disk", "stackTrace": "at main"},
		"attributes": {"OrderId": "o-1", "CounterName": "orders"},
		"OrderId": "shadowed"
	}`
	fixed := fixedNow(t)

	var e Event
	require.NoError(t, e.UnmarshalBytes([]byte(input)))
	rec := e.Records[0]

	assert.Equal(t, fixed, rec.Timestamp, "missing timestamps default to now")
	assert.Equal(t, "Order placed", rec.MessageTemplate)
	assert.Equal(t, "Order placed!", rec.Message)
	assert.Equal(t, &event.Exception{Type: "IOError", Message: "disk", StackTrace: "at main"}, rec.Exception)
	assert.Equal(t, []event.Attribute{
		{Key: "OrderId", Value: event.S("o-1")},
		{Key: "CounterName", Value: event.S("orders")},
	}, rec.Attributes)
}

// TestUnmarshalErrors tests payloads that cannot be decoded.
func TestUnmarshalErrors(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		message string
	}{
		{name: "invalid JSON", input: `{invalid json`, message: "decoding incoming payload"},
		{name: "scalar payload", input: `"hello"`, message: ErrNotAnObject.Error()},
		{name: "array of scalars", input: `[{"message":"ok"}, 3]`, message: "record 1"},
		{name: "bad level", input: `{"level":"LOUD"}`, message: "unknown level"},
		{name: "bad timestamp", input: `{"timestamp":"yesterday"}`, message: "invalid timestamp"},
		{name: "boolean timestamp", input: `{"timestamp":true}`, message: "invalid timestamp"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var e Event
			err := e.Unmarshal(strings.NewReader(tc.input))
			assert.ErrorContains(t, err, tc.message)
		})
	}
}

// TestUnmarshalEmptyArray tests that an empty batch is valid.
func TestUnmarshalEmptyArray(t *testing.T) {
	var e Event
	require.NoError(t, e.UnmarshalBytes([]byte(`[]`)))
	assert.Equal(t, RECORD_BATCH, e.EventType)
	assert.Empty(t, e.Records)
}

// TestLines tests newline delimited decoding.
func TestLines(t *testing.T) {
	input := strings.Join([]string{
		`{"message":"one"}`,
		``,
		`not json`,
		`{"message":"two","level":"debug"}`,
		`[1]`,
	}, "\n")

	var got []string
	var failed []int
	err := Lines(strings.NewReader(input), func(rec event.Record) {
		got = append(got, rec.Message)
	}, func(line int, err error) {
		failed = append(failed, line)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, got)
	assert.Equal(t, []int{3, 5}, failed)
}

// TestLinesStopsWithoutErrorHandler tests that the first bad line ends decoding.
func TestLinesStopsWithoutErrorHandler(t *testing.T) {
	var got int
	err := Lines(strings.NewReader("{}\nnope\n{}"), func(event.Record) { got++ }, nil)
	assert.ErrorContains(t, err, "line 2")
	assert.Equal(t, 1, got)
}

// TestExceptionString tests stack trace strings without a type prefix.
func TestExceptionString(t *testing.T) {
	var e Event
	require.NoError(t, e.UnmarshalBytes([]byte(`{"@x":"something broke badly: here\nat x"}`)))
	exc := e.Records[0].Exception
	require.NotNil(t, exc)
	assert.Equal(t, "", exc.Type)
	assert.Equal(t, "something broke badly: here", exc.Message)
}
