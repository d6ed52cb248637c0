package logger

// Standard field keys for structured logging. Use these consistently across
// log statements so lines can be aggregated and queried by field.
const (
	// Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Cache and task lifecycle
	KeyKey       = "key"        // resource key (upstream handle)
	KeyTaskID    = "task_id"    // task identifier
	KeyFreshness = "freshness"  // fresh, stale, absent
	KeyAge       = "age"        // cache entry age
	KeyStatus    = "status"     // task status or HTTP status
	KeyQueueLen  = "queue_len"  // number of queued jobs
	KeyAttempt   = "attempt"    // poll or retry attempt number
	KeyDuration  = "duration"   // operation duration
	KeyError     = "error"      // error message
	KeyErrorKind = "error_kind" // upstream error kind

	// HTTP
	KeyRequestID  = "request_id"
	KeyMethod     = "method"
	KeyPath       = "path"
	KeyRemoteAddr = "remote_addr"
)
