// Copyright (c) 2026 Shuhai. All rights reserved.

/*
Package task implements the download orchestration engine.

A Task is a bounded, cancellable batch download of chapters belonging to
one book. The engine executes tasks on a fixed-size worker pool, enforces
the daily word quota, persists bodies through the blob store, and fans out
progress snapshots to WebSocket subscribers via the in-process bus.

Architecture:

  - Task: the persisted batch record with live counters.
  - Engine: worker pool, cancellation set, single-execution-per-book map.
  - Bus: per-task subscriber fan-out for progress events.
  - Handler: the HTTP/WebSocket facade.
*/
package task

import (
	"math"
	"time"
)

// # Domain Enums

// Type distinguishes the two batch policies.
type Type string

const (
	// TypeFullDownload processes every chapter in range, optionally
	// skipping completed ones.
	TypeFullDownload Type = "full_download"

	// TypeUpdate first materializes newly published chapters, then
	// processes only pending ones.
	TypeUpdate Type = "update"
)

// IsValid reports whether t is a recognised [Type] value.
func (t Type) IsValid() bool {
	return t == TypeFullDownload || t == TypeUpdate
}

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is absorbing. Terminal tasks never change
// status again.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// # Core Entity

// Task is one batch download bound to a single book.
type Task struct {
	ID     string `json:"id"`
	BookID string `json:"book_id"`
	Type   Type   `json:"type"`
	Status Status `json:"status"`

	// Range bounds the batch by 0-based chapter index; EndChapter is
	// inclusive and negative when open-ended.
	StartChapter  int  `json:"start_chapter"`
	EndChapter    int  `json:"end_chapter"`
	SkipCompleted bool `json:"skip_completed"`

	// # Live Counters
	Total      int `json:"total"`
	Downloaded int `json:"downloaded"`
	Failed     int `json:"failed"`

	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Progress returns the completion percentage, rounded to two decimals.
// A task with no chapters reports zero.
func (t *Task) Progress() float64 {
	if t.Total <= 0 {
		return 0
	}
	ratio := float64(t.Downloaded+t.Failed) / float64(t.Total)
	return math.Round(ratio*10000) / 100
}

// # Progress Events

// Event names delivered to bus subscribers.
const (
	// EventProgress is a counter snapshot emitted while the task runs.
	EventProgress = "progress"
	// EventCompleted is the single terminal event of a task.
	EventCompleted = "completed"
	// EventError is synthesized by the facade for connection problems.
	EventError = "error"
)

// Snapshot is one progress event as delivered to subscribers.
type Snapshot struct {
	Event     string `json:"event"`
	TaskID    string `json:"task_id"`
	BookID    string `json:"book_id"`
	BookTitle string `json:"book_title"`
	Status    Status `json:"status"`

	Total      int     `json:"total"`
	Downloaded int     `json:"downloaded"`
	Failed     int     `json:"failed"`
	Progress   float64 `json:"progress"`

	// Success and Message are set on EventCompleted only.
	Success      bool   `json:"success,omitempty"`
	Message      string `json:"message,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	Timestamp int64 `json:"timestamp"`
}

// snapshotOf assembles a progress event from live task state.
func snapshotOf(event string, task *Task, bookTitle string) Snapshot {
	return Snapshot{
		Event:        event,
		TaskID:       task.ID,
		BookID:       task.BookID,
		BookTitle:    bookTitle,
		Status:       task.Status,
		Total:        task.Total,
		Downloaded:   task.Downloaded,
		Failed:       task.Failed,
		Progress:     task.Progress(),
		ErrorMessage: task.ErrorMessage,
		Timestamp:    time.Now().Unix(),
	}
}
