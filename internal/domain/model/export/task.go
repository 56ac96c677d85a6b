package export

import (
	"time"
)

// TaskStatus is the lifecycle state of an export job.
// A failed job is Completed with Success set to false.
type TaskStatus string

const (
	TaskStatusClaimed   TaskStatus = "CLAIMED"
	TaskStatusExecuting TaskStatus = "EXECUTING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
)

func (s TaskStatus) String() string { return string(s) }

func (s TaskStatus) IsTerminal() bool { return s == TaskStatusCompleted }

func ParseTaskStatus(v string) TaskStatus {
	switch TaskStatus(v) {
	case TaskStatusClaimed, TaskStatusExecuting, TaskStatusCompleted:
		return TaskStatus(v)
	default:
		return ""
	}
}

// SecurityPolicy restricts the datum a requester may read. Empty sets mean unrestricted.
type SecurityPolicy struct {
	NodeIDs   []int64  `json:"nodeIds,omitempty"`
	SourceIDs []string `json:"sourceIds,omitempty"`
}

// ExportRequest is the caller input of a single export submission.
type ExportRequest struct {
	ID          string          `json:"id,omitempty"`
	Config      *Configuration  `json:"config"`
	RequesterID int64           `json:"requesterId"`
	ExportDate  time.Time       `json:"exportDate"`
	Policy      *SecurityPolicy `json:"policy,omitempty"`
}

// TaskInfo is the durable record of an export job.
type TaskInfo struct {
	ID          string
	Config      *Configuration
	ExportDate  time.Time
	RequesterID int64
	Status      TaskStatus
	Success     *bool
	Message     string
	Created     time.Time
	Completed   *time.Time
}

// Clone returns a copy safe to hand to other goroutines.
func (t *TaskInfo) Clone() *TaskInfo {
	if t == nil {
		return nil
	}
	c := *t
	c.Config = t.Config.Clone()
	if t.Success != nil {
		s := *t.Success
		c.Success = &s
	}
	if t.Completed != nil {
		d := *t.Completed
		c.Completed = &d
	}
	return &c
}

// ExportResult is the terminal value of a job.
type ExportResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Completed time.Time `json:"completed"`
	Processed int64     `json:"processed"`
}

// JobStatusChanged is posted whenever a job changes state or makes progress.
type JobStatusChanged struct {
	JobID           string     `json:"jobId"`
	State           TaskStatus `json:"state"`
	Success         *bool      `json:"success,omitempty"`
	Message         string     `json:"message,omitempty"`
	PercentComplete float64    `json:"percentComplete"`
	Completed       *time.Time `json:"completed,omitempty"`
}
