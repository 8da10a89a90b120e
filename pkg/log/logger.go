package log

// Logger is the logging surface used across hamilton.
// Components receive it through their constructors and never reach for a
// package-level logger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})

	// WithField returns a child logger that appends key=value to every line.
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}
