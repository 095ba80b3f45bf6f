package log

// Logger receives protocol events from the transport and both engines.
// A nil Logger field anywhere in this module means logging is off; use
// NoopLogger where an instance is required.
type Logger interface {
	// Log records one event. Implementations must be safe for
	// concurrent use and should return quickly: Log is called from
	// connection read and write paths.
	Log(event Event)
}

// NoopLogger drops every event. The zero value is ready to use.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

// MultiLogger fans one event stream out to several loggers, typically
// a console SlogAdapter next to a FileLogger capture.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a MultiLogger over the given loggers. Events
// are delivered in argument order.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = (*MultiLogger)(nil)
)
