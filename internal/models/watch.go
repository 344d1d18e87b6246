package models

// Worker statuses as reported by the watch API.
const (
	StatusNotRunning = "not_running"
	StatusRunning    = "running"
	StatusStopped    = "stopped"
)

// WatchStatus is the payload of GET /api/watch/status.
type WatchStatus struct {
	Status     string `json:"status"`
	Pid        int    `json:"pid,omitempty"`
	ReturnCode *int   `json:"return_code,omitempty"`
	Started    string `json:"started,omitempty"`
	Error      string `json:"error,omitempty"`
}

// LogEntry is one line retained by the in-memory log buffer. Stream is
// "stdout" or "stderr" for relayed worker output and empty for
// supervisor events.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Stream    string `json:"stream,omitempty"`
}
