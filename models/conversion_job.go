package models

import (
	"errors"
	"fmt"
	"time"
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

var ErrJobTerminal = errors.New("job already reached a terminal status")

// InputFile describes one user-selected file. The content at Path is never
// inspected; it is only streamed to the conversion service.
type InputFile struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType"`
	Path     string `json:"path"`
}

// Job is one user-initiated conversion request.
type Job struct {
	Files        []InputFile
	SourceFormat Format
	TargetFormat Format
	Category     Category
	CreatedAt    time.Time
	Status       JobStatus
}

func NewJob(files []InputFile, source, target Format, category Category) *Job {
	return &Job{
		Files:        files,
		SourceFormat: source,
		TargetFormat: target,
		Category:     category,
		CreatedAt:    time.Now(),
		Status:       JobPending,
	}
}

// Transition moves the job to next. Terminal states are immutable and a job
// never moves backwards to pending.
func (j *Job) Transition(next JobStatus) error {
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrJobTerminal, j.Status, next)
	}
	if next == JobPending && j.Status != JobPending {
		return fmt.Errorf("invalid job transition: %s -> %s", j.Status, next)
	}
	j.Status = next
	return nil
}

// ConversionRequest is the queue message consumed by the worker pool. Input
// keys point at objects in the storage bucket.
type ConversionRequest struct {
	RequestID    string    `json:"requestId"`
	UserID       string    `json:"userId"`
	SourceFormat string    `json:"sourceFormat"`
	TargetFormat string    `json:"targetFormat"`
	InputKeys    []string  `json:"inputKeys"`
	OutputPrefix string    `json:"outputPrefix"`
	RetryCount   int       `json:"retryCount"`
	MaxRetries   int       `json:"maxRetries"`
	CreatedAt    time.Time `json:"createdAt"`
	Timeout      int       `json:"timeout"`
}
