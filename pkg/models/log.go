package models

// LogLevel is the severity attached to a parsed log line.
type LogLevel string

const (
	LevelInfo     LogLevel = "INFO"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelDebug    LogLevel = "DEBUG"
	LevelCritical LogLevel = "CRITICAL"
	LevelUnknown  LogLevel = "UNKNOWN"
)

// NoTimestamp marks entries whose line carried no timestamp.
const NoTimestamp = "N/A"

// LogEntry is one structured line of the backend log.
type LogEntry struct {
	Timestamp string   `json:"timestamp"`
	Level     LogLevel `json:"level"`
	Message   string   `json:"message"`
}
