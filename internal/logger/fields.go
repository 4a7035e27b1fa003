package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, propagated through the call chain via context.
const (
	FieldRequestID = "request_id"

	// FieldRunID identifies one indexing run.
	FieldRunID = "run_id"

	FieldComponent = "component"

	// FieldImage is the source image path being processed.
	FieldImage = "image"

	FieldEmbeddingID = "embedding_id"
)

// Metric fields, attached through Entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
)
