package models

import (
	"errors"
	"testing"
	"time"
)

func testJob() *Job {
	return NewJob([]InputFile{
		{Name: "a.jpg", Size: 100},
		{Name: "b.jpg", Size: 200},
		{Name: "c.jpg", Size: 300},
	}, "JPEG", "PNG", CategoryImages)
}

func TestNewOutcome_PartialSuccess(t *testing.T) {
	job := testJob()
	results := []Result{
		Succeeded(job.Files[0], "a.png", "/download/a.png", 90),
		Failed(job.Files[1], "b.png", ""),
		Succeeded(job.Files[2], "c.png", "/download/c.png", 310),
	}

	out := NewOutcome(ExecutionPathBackend, job, results, time.Now().Add(-time.Second), nil)

	if out.Record.SuccessCount != 2 || out.Record.FailureCount != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", out.Record.SuccessCount, out.Record.FailureCount)
	}
	if !out.Success() {
		t.Fatal("expected overall success with at least one converted file")
	}
	if out.State() != OutcomePartial {
		t.Fatalf("state = %s, want partial", out.State())
	}
	if out.Summary() != "2 of 3 succeeded" {
		t.Fatalf("summary = %q", out.Summary())
	}
	if out.Record.TotalInputSize != 600 || out.Record.TotalOutputSize != 400 {
		t.Fatalf("sizes = %d/%d", out.Record.TotalInputSize, out.Record.TotalOutputSize)
	}
	if out.Record.DurationMs < 1000 {
		t.Fatalf("duration = %dms, want >= 1000", out.Record.DurationMs)
	}
	if results[1].Error != "Failed to convert b.jpg" {
		t.Fatalf("default error = %q", results[1].Error)
	}
}

func TestNewOutcome_FailurePathStillBuildsRecord(t *testing.T) {
	job := testJob()
	results := make([]Result, len(job.Files))
	for i, f := range job.Files {
		results[i] = Failed(f, "", "upload rejected")
	}
	if err := job.Transition(JobFailed); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	out := NewOutcome(ExecutionPathBackend, job, results, time.Now(), errors.New("upload rejected"))

	if out.Success() || out.State() != OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", out.State())
	}
	if out.Record.ErrorMessage != "upload rejected" || out.ErrorMessage != "upload rejected" {
		t.Fatalf("error message not propagated: %+v", out.Record)
	}
	if out.Record.FileCount != 3 {
		t.Fatalf("file count = %d", out.Record.FileCount)
	}
	if out.Status != JobFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
}

func TestJobTransition_TerminalIsImmutable(t *testing.T) {
	job := testJob()
	if err := job.Transition(JobProcessing); err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	if err := job.Transition(JobCompleted); err != nil {
		t.Fatalf("processing -> completed: %v", err)
	}
	if err := job.Transition(JobFailed); !errors.Is(err, ErrJobTerminal) {
		t.Fatalf("expected ErrJobTerminal, got %v", err)
	}
	if job.Status != JobCompleted {
		t.Fatalf("status changed to %s", job.Status)
	}
}
