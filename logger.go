package pagecache

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger. Adapters for logrus, zap and slog live
// under log/. If Logger is nil in any Options, logging is disabled.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// componentLogger stamps every record with the emitting component.
type componentLogger struct {
	l         Logger
	component string
}

func newComponentLogger(l Logger, component string) componentLogger {
	return componentLogger{l: coalesceLogger(l), component: component}
}

func (c componentLogger) fields(f Fields) Fields {
	out := make(Fields, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	out["component"] = c.component
	return out
}

func (c componentLogger) Debug(msg string, f Fields) { c.l.Debug(msg, c.fields(f)) }
func (c componentLogger) Info(msg string, f Fields)  { c.l.Info(msg, c.fields(f)) }
func (c componentLogger) Warn(msg string, f Fields)  { c.l.Warn(msg, c.fields(f)) }
func (c componentLogger) Error(msg string, f Fields) { c.l.Error(msg, c.fields(f)) }

func coalesceLogger(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
