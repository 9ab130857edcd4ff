package database

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled" // superseded by a newer pass
)

// ActiveStatuses are the statuses of passes that have not finished
var ActiveStatuses = []JobStatus{JobStatusPending, JobStatusRunning}

// ParseJobStatus checks s against the known statuses
func ParseJobStatus(s string) (JobStatus, error) {
	switch st := JobStatus(s); st {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// JobType represents the type of job
type JobType string

const (
	JobTypeRender JobType = "render"
	JobTypePrint  JobType = "print"
	JobTypeSweep  JobType = "sweep"
)

// ParseJobType checks s against the known pass types
func ParseJobType(s string) (JobType, error) {
	switch jt := JobType(s); jt {
	case JobTypeRender, JobTypePrint, JobTypeSweep:
		return jt, nil
	}
	return "", fmt.Errorf("unknown job type %q", s)
}

// Job records one render, print or sweep pass. Session is empty for
// sweeps, which do not belong to a viewer. Result holds the JSON summary
// written when the pass completes.
type Job struct {
	ID          ulid.ULID  `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Session     string     `json:"session,omitempty"`
	Progress    int        `json:"progress"` // 0-100
	CurrentStep string     `json:"currentStep"`
	Message     string     `json:"message"`
	Error       string     `json:"error,omitempty"`
	Result      string     `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Finished reports whether the job reached a terminal status
func (j *Job) Finished() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Duration is the time between starting and finishing the pass, zero
// until both are known.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// JobFilter narrows ListJobs. Zero fields match every job.
type JobFilter struct {
	Type    JobType
	Status  []JobStatus
	Session string
	Limit   int // zero means no limit
	Offset  int
}
