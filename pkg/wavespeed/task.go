package wavespeed

// Status is the lifecycle state of a task as reported by the service.
type Status string

const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusQueued     Status = "queued"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether the status is one the service will never leave.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// InProgress reports whether the status is a known non-terminal state.
func (s Status) InProgress() bool {
	switch s {
	case StatusCreated, StatusProcessing, StatusPending, StatusRunning, StatusQueued:
		return true
	}
	return false
}

// Task identifies one generation job submitted to the service.
type Task struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Timings holds per-task timing metadata in milliseconds.
type Timings struct {
	Inference int64 `json:"inference"`
}

// TaskResult is the state of a task as observed by a single poll. It is not
// updated in place; every poll produces a fresh value.
type TaskResult struct {
	ID              string   `json:"id"`
	Model           string   `json:"model,omitempty"`
	Status          Status   `json:"status"`
	Outputs         []string `json:"outputs"`
	Error           string   `json:"error,omitempty"`
	CreatedAt       string   `json:"created_at,omitempty"`
	Timings         *Timings `json:"timings,omitempty"`
	HasNSFWContents []bool   `json:"has_nsfw_contents,omitempty"`
}
