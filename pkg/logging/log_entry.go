package logging

// LogEntry represents a structured log record with fields relevant to
// pipeline execution.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Pipeline-specific fields
	Pipeline  string // Name of the pipeline being executed
	Processor string // Name of the processor producing the entry

	// General structured data
	Fields map[string]interface{}
}
