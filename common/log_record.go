package common

// DetailedLog represents a detailed log batch.
//
// Reference: https://docs.newrelic.com/docs/logs/log-api/introduction-log-api/#detailed-json
type DetailedLog struct {
	CommonData Common    `json:"common"`
	Entries    []LogItem `json:"logs"`
}

// Common represents the common data shared by all log records of a batch.
type Common struct {
	Attributes CommonAttributes `json:"attributes"`
}

// CommonAttributes are the attributes New Relic applies to every entry of a batch.
type CommonAttributes struct {
	Application string `json:"application"`
}

// LogItem is the backend-ready projection of one log record.
type LogItem struct {
	Timestamp  int64         `json:"timestamp"` // Unix epoch milliseconds
	Message    string        `json:"message"`
	Attributes LogAttributes `json:"attributes"`
}

// LogAttributes represents the attributes of a log record.
type LogAttributes map[string]any

// AttributeLevel and AttributeStackTrace are present on every LogItem.
const (
	AttributeLevel      = "level"
	AttributeStackTrace = "stack_trace"
)

// DetailedLogsBatch represents a batch of detailed log records. This is the expected payload format in the API call to New Relic.
type DetailedLogsBatch []DetailedLog

// NewDetailedLogsBatch wraps items into the single-batch payload sent to the Log API.
func NewDetailedLogsBatch(application string, items []LogItem) DetailedLogsBatch {
	if items == nil {
		items = []LogItem{}
	}
	return DetailedLogsBatch{{
		CommonData: Common{
			Attributes: CommonAttributes{Application: application},
		},
		Entries: items,
	}}
}
