package cron

// Schedule describes when a job fires. Kind selects the interpretation:
// "at" fires once at AtMs, "every" fires on a fixed interval, "cron"
// follows a five-field cron expression.
type Schedule struct {
	Kind    string `json:"kind"`
	AtMs    int64  `json:"atMs,omitempty"`
	EveryMs int64  `json:"everyMs,omitempty"`
	Expr    string `json:"expr,omitempty"`
}

// Payload is the generation command a job replays when it fires. It is
// published on the bus as if the chat had typed it, so results are
// delivered to the same chat.
type Payload struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Command string `json:"command"`
}

// JobState is the runtime bookkeeping of one job.
type JobState struct {
	NextRunAtMs int64  `json:"nextRunAtMs,omitempty"`
	LastRunAtMs int64  `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

// Job is one scheduled generation.
type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	UpdatedAtMs    int64    `json:"updatedAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun"`
}

// fileStore is the on-disk layout of the job list.
type fileStore struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}
