package core

// Logger is any service that can report application events.
// expected args: error, map[string]interface{} (extra data), LogScope
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// LogScope tags a log entry with the school it concerns.
type LogScope struct {
	SchoolID string
	TaskID   string
}
