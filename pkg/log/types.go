package log

// Logger is a leveled, key-value structured logger.
type Logger interface {
	// Debug logs detail that is only useful while diagnosing a problem.
	Debug(msg string, keysAndValues ...any)
	// Info logs routine progress and state changes.
	Info(msg string, keysAndValues ...any)
	// Warn logs an unexpected situation the caller recovered from.
	Warn(msg string, keysAndValues ...any)
	// Error logs a failure of the current operation.
	Error(msg string, keysAndValues ...any)
	// Fatal logs an unrecoverable failure. Implementations may exit the process.
	Fatal(msg string, keysAndValues ...any)

	// WithKV returns a child logger that adds key=value to every record.
	WithKV(key string, value any) Logger
	// GetAllKV returns the key-value pairs accumulated through WithKV.
	GetAllKV() []any
	// WithName returns a child logger with name appended to the logger name.
	WithName(name string) Logger
	// Name returns the dotted logger name.
	Name() string
	// AddCallerSkip returns a logger that reports the caller skip frames higher.
	AddCallerSkip(skip int) Logger
}

// Level is the severity of a record.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// SpanEventRecorder receives log records that should also land on a trace span.
type SpanEventRecorder interface {
	TraceID() string
	SpanID() string
	// RecordEvent adds a span event with keysAndValues as attributes.
	RecordEvent(name string, keysAndValues ...any)
	// RecordError adds a span event and marks the span as failed.
	RecordError(name string, keysAndValues ...any)
}
