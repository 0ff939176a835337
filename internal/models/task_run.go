package models

import "time"

type TaskRun struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Report     string    `json:"report"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded is false when the run returned an error or its report carries a
// query failure.
func (r *TaskRun) Succeeded() bool {
	return r.Error == ""
}
