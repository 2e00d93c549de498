package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionPath tells history consumers which path produced an outcome.
type ExecutionPath string

const (
	ExecutionPathBackend ExecutionPath = "backend"
	ExecutionPathMock    ExecutionPath = "mock"
)

// Result is the per-file outcome of a Job. Build it with Succeeded or Failed.
type Result struct {
	OriginalFile      InputFile `json:"originalFile"`
	ConvertedFileName string    `json:"convertedFileName"`
	DownloadURL       string    `json:"downloadUrl,omitempty"`
	Size              int64     `json:"size"`
	Success           bool      `json:"success"`
	Error             string    `json:"error,omitempty"`
}

func Succeeded(original InputFile, convertedName, downloadURL string, size int64) Result {
	return Result{
		OriginalFile:      original,
		ConvertedFileName: convertedName,
		DownloadURL:       downloadURL,
		Size:              size,
		Success:           true,
	}
}

func Failed(original InputFile, convertedName, errMsg string) Result {
	if errMsg == "" {
		errMsg = fmt.Sprintf("Failed to convert %s", original.Name)
	}
	return Result{
		OriginalFile:      original,
		ConvertedFileName: convertedName,
		Success:           false,
		Error:             errMsg,
	}
}

// ConversionRecord is the append-only history unit for one finished Job.
type ConversionRecord struct {
	ID              string        `json:"id"`
	UserID          string        `json:"userId,omitempty"`
	SourceFormat    Format        `json:"sourceFormat"`
	TargetFormat    Format        `json:"targetFormat"`
	Category        Category      `json:"category"`
	FileCount       int           `json:"fileCount"`
	TotalInputSize  int64         `json:"totalInputSize"`
	TotalOutputSize int64         `json:"totalOutputSize"`
	SuccessCount    int           `json:"successCount"`
	FailureCount    int           `json:"failureCount"`
	Success         bool          `json:"success"`
	StartedAt       time.Time     `json:"startedAt"`
	CompletedAt     time.Time     `json:"completedAt"`
	DurationMs      int64         `json:"durationMs"`
	Path            ExecutionPath `json:"executionPath"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
}

// WithUser returns a copy of the record attributed to userID.
func (r ConversionRecord) WithUser(userID string) ConversionRecord {
	r.UserID = userID
	return r
}

type OutcomeState string

const (
	OutcomeComplete OutcomeState = "complete"
	OutcomePartial  OutcomeState = "partial"
	OutcomeFailed   OutcomeState = "failed"
)

// ConversionOutcome is what both the backend and the mock path hand back:
// one Result per input file plus the record draft describing the run.
type ConversionOutcome struct {
	Status       JobStatus        `json:"status"`
	Results      []Result         `json:"results"`
	Record       ConversionRecord `json:"record"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
}

// NewOutcome shapes results into an outcome and its record. It runs on the
// success and the failure path alike; err marks a batch-level failure. The
// outcome carries the job's status at the time of the call.
func NewOutcome(path ExecutionPath, job *Job, results []Result, startedAt time.Time, err error) ConversionOutcome {
	completedAt := time.Now()
	rec := ConversionRecord{
		ID:           uuid.NewString(),
		SourceFormat: job.SourceFormat,
		TargetFormat: job.TargetFormat,
		Category:     job.Category,
		FileCount:    len(job.Files),
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		DurationMs:   completedAt.Sub(startedAt).Milliseconds(),
		Path:         path,
	}
	for _, f := range job.Files {
		rec.TotalInputSize += f.Size
	}
	for _, r := range results {
		if r.Success {
			rec.SuccessCount++
			rec.TotalOutputSize += r.Size
		} else {
			rec.FailureCount++
		}
	}
	rec.Success = rec.SuccessCount > 0

	out := ConversionOutcome{Status: job.Status, Results: results, Record: rec}
	if err != nil {
		out.ErrorMessage = err.Error()
		out.Record.ErrorMessage = err.Error()
	}
	return out
}

// Success reports whether at least one file converted.
func (o ConversionOutcome) Success() bool {
	return o.Record.Success
}

func (o ConversionOutcome) State() OutcomeState {
	switch {
	case o.Record.SuccessCount == 0:
		return OutcomeFailed
	case o.Record.FailureCount > 0:
		return OutcomePartial
	default:
		return OutcomeComplete
	}
}

// Summary renders the outcome as "N of M succeeded".
func (o ConversionOutcome) Summary() string {
	return fmt.Sprintf("%d of %d succeeded", o.Record.SuccessCount, len(o.Results))
}
