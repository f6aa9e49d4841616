// Package types holds the data model shared by every component of the
// video pipeline: jobs, scripts, scenes and the assets attached to them.
package types

import (
	"strings"
	"time"
)

// Status is the terminal/non-terminal state of a Job.
type Status string

const (
	StatusPending             Status = "pending"
	StatusProcessing          Status = "processing"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
	StatusFailed              Status = "failed"
	StatusCancelled           Status = "cancelled"
)

// IsTerminal reports whether no further transition is permitted from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Phase marks where in the state machine a processing Job currently sits.
type Phase string

const (
	PhaseUpload  Phase = "upload"
	PhaseScript  Phase = "script"
	PhaseAudio   Phase = "audio"
	PhaseVisual  Phase = "visual"
	PhaseCompose Phase = "compose"
	PhaseDone    Phase = "done"
)

// Priority is the queueing priority of a submitted Job.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// ParsePriority maps a case-insensitive priority name to a Priority,
// defaulting to PriorityNormal for anything unrecognized.
func ParsePriority(s string) Priority {
	switch strings.ToLower(s) {
	case "urgent":
		return PriorityUrgent
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// LogEntry is one ring-buffered line of a Job's processing history.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// SourceRef identifies the uploaded document a Job was created from.
type SourceRef struct {
	Path         string `json:"path"`
	DetectedType string `json:"detected_type"` // txt | md | pdf
}

// Job is one user submission as it travels through the pipeline.
type Job struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	Phase       Phase      `json:"phase"`
	Priority    Priority   `json:"priority"`
	Progress    int        `json:"progress"` // 0-100
	Message     string     `json:"message"`
	Source      SourceRef  `json:"source"`
	Script      *Script    `json:"script,omitempty"`
	Video       *Video     `json:"video,omitempty"`
	Errors      []string   `json:"errors,omitempty"`
	Logs        []LogEntry `json:"logs,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	cancelled bool
}

// Cancelled reports whether cancel() has been called for this job.
func (j *Job) Cancelled() bool { return j.cancelled }

// MarkCancelled flips the cancellation flag. Callers must hold the owning
// lock (jobstore serializes per-id writes).
func (j *Job) MarkCancelled() { j.cancelled = true }

// Clone returns a deep-enough copy safe for handing to a read-only caller
// while the orchestrator continues mutating the original.
func (j *Job) Clone() *Job {
	c := *j
	if j.Script != nil {
		sc := *j.Script
		sc.Scenes = append([]Scene(nil), j.Script.Scenes...)
		c.Script = &sc
	}
	if j.Video != nil {
		v := *j.Video
		c.Video = &v
	}
	c.Errors = append([]string(nil), j.Errors...)
	c.Logs = append([]LogEntry(nil), j.Logs...)
	return &c
}
