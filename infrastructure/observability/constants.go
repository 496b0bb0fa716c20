package observability

// Metric name prefixes
const (
	MetricPrefix = "eodmarker"
)

// Metric names
const (
	// Lock metrics
	LockAttemptsTotal = MetricPrefix + ".lock.attempts_total"

	// Job metrics
	JobRunsTotal   = MetricPrefix + ".job.runs_total"
	JobRunDuration = MetricPrefix + ".job.run_duration"

	// Marking metrics
	MarksTotal = MetricPrefix + ".marks_total"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"

	// HTTP metrics
	StatusRequestsTotal = MetricPrefix + ".http.status_requests_total"
)

// Label keys
const (
	LabelLock      = "lock"
	LabelResult    = "result"
	LabelOutcome   = "outcome"
	LabelEventType = "event_type"
	LabelCode      = "code"
)
