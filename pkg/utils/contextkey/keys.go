package contextkey

// key is a private type to avoid context key collisions across packages.
type key string

const (
	TraceID       key = "trace_id"
	RequestID     key = "request_id"
	SubmissionID  key = "submission_id"
	CorrelationID key = "correlation_id"
)

// All lists the keys the logger copies into log fields, in field order.
var All = []key{TraceID, RequestID, SubmissionID, CorrelationID}

// String returns the log field name for the key.
func (k key) String() string {
	return string(k)
}
