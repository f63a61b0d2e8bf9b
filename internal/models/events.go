package models

// Event channel names. The UI layer subscribes to these by name; runs open
// their subscriptions on entry and release them on every exit path.
const (
	ChannelLog      = "log"
	ChannelProgress = "analysis-progress"
	ChannelDetected = "pdf-detected"
)

// Log levels used by LogEvent.
const (
	LevelInfo    = "info"
	LevelWave    = "wave"
	LevelSuccess = "success"
	LevelError   = "error"
)

// LogEvent is one transcript line emitted during a run.
type LogEvent struct {
	Message string `json:"message"`
	Level   string `json:"level"`
}

// ProgressEvent reports per-file completion during an individual-mode run.
// FileName is the display name, not the path.
type ProgressEvent struct {
	FileName  string `json:"file_name"`
	Completed bool   `json:"completed"`
	Success   bool   `json:"success"`
}

// DetectedEvent announces a new PDF found by the folder watcher.
type DetectedEvent struct {
	Path string `json:"path"`
	Name string `json:"name"`
}
