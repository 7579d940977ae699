package service

import (
	"strconv"
	"time"
)

// RetrievalCompleted is published after every retrieval attempt.
type RetrievalCompleted struct {
	EventID    string    `json:"event_id,omitempty"`
	JobID      string    `json:"job_id"`
	TaskType   string    `json:"task_type"`
	TaskID     string    `json:"task_id"`
	Method     string    `json:"method,omitempty"`
	SavePath   string    `json:"save_path"`
	FileCount  int       `json:"file_count"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Attributes returns the Pub/Sub attributes subscribers filter on.
func (e RetrievalCompleted) Attributes() map[string]string {
	return map[string]string{
		"event_type": "retrieval.completed",
		"task_type":  e.TaskType,
		"method":     e.Method,
		"success":    strconv.FormatBool(e.Success),
	}
}
