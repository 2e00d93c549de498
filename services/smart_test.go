package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"filealchemy/models"

	"github.com/rs/zerolog"
)

type stubBackend struct {
	healthErr   error
	convertErr  error
	formatsErr  error
	healthCalls int
	convertCall int
	singleCall  int
}

func (s *stubBackend) CheckHealth(ctx context.Context) error {
	s.healthCalls++
	return s.healthErr
}

func (s *stubBackend) ListSupportedFormats(ctx context.Context) (map[models.Format][]models.Format, error) {
	if s.formatsErr != nil {
		return nil, s.formatsErr
	}
	return map[models.Format][]models.Format{"PNG": {"JPEG"}}, nil
}

func (s *stubBackend) Convert(ctx context.Context, files []models.InputFile, source, target string, onProgress ProgressFunc) (models.ConversionOutcome, error) {
	s.convertCall++
	return s.outcome(files, source, target)
}

func (s *stubBackend) ConvertSingle(ctx context.Context, file models.InputFile, source, target string) (models.ConversionOutcome, error) {
	s.singleCall++
	return s.outcome([]models.InputFile{file}, source, target)
}

func (s *stubBackend) outcome(files []models.InputFile, source, target string) (models.ConversionOutcome, error) {
	job := newJob(files, source, target)
	if s.convertErr != nil {
		return failedOutcome(models.ExecutionPathBackend, job, time.Now(), s.convertErr), s.convertErr
	}
	results := make([]models.Result, len(files))
	for i, f := range files {
		results[i] = models.Succeeded(f, "out", "/download/out", f.Size)
	}
	return models.NewOutcome(models.ExecutionPathBackend, job, results, time.Now(), nil), nil
}

func newSmart(b *stubBackend) *SmartConverter {
	return NewSmartConverter(b, NewMockConverter(0, zerolog.Nop()), zerolog.Nop())
}

var oneFile = []models.InputFile{{Name: "a.jpg", Size: 100}}

func TestSmartConverter_ProbesHealthOnce(t *testing.T) {
	b := &stubBackend{}
	s := newSmart(b)

	for i := 0; i < 3; i++ {
		out, err := s.Convert(context.Background(), oneFile, "JPEG", "PNG", nil)
		if err != nil {
			t.Fatalf("Convert failed: %v", err)
		}
		if out.Record.Path != models.ExecutionPathBackend {
			t.Fatalf("path = %s, want backend", out.Record.Path)
		}
	}
	if b.healthCalls != 1 {
		t.Fatalf("health checked %d times, want 1", b.healthCalls)
	}
	if s.Availability() != AvailabilityAvailable {
		t.Fatalf("availability = %s", s.Availability())
	}
}

func TestSmartConverter_UnreachableGoesStraightToMock(t *testing.T) {
	b := &stubBackend{healthErr: &APIError{Kind: KindUnreachable, Message: "down"}}
	s := newSmart(b)

	out, err := s.Convert(context.Background(), oneFile, "JPEG", "PNG", nil)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if out.Record.Path != models.ExecutionPathMock {
		t.Fatalf("path = %s, want mock", out.Record.Path)
	}
	if b.convertCall != 0 {
		t.Fatalf("backend convert called %d times", b.convertCall)
	}
}

func TestSmartConverter_DowngradesAndRemembers(t *testing.T) {
	b := &stubBackend{convertErr: &APIError{Kind: KindConversionFailed, Message: "boom"}}
	s := newSmart(b)

	out, err := s.Convert(context.Background(), oneFile, "JPEG", "PNG", nil)
	if err != nil {
		t.Fatalf("first Convert should fall back silently, got %v", err)
	}
	if out.Record.Path != models.ExecutionPathMock {
		t.Fatalf("first call path = %s, want mock", out.Record.Path)
	}
	if b.convertCall != 1 {
		t.Fatalf("backend convert called %d times, want 1", b.convertCall)
	}

	b.convertErr = nil
	out, err = s.Convert(context.Background(), oneFile, "JPEG", "PNG", nil)
	if err != nil {
		t.Fatalf("second Convert failed: %v", err)
	}
	if out.Record.Path != models.ExecutionPathMock {
		t.Fatalf("second call path = %s, want mock", out.Record.Path)
	}
	if b.convertCall != 1 {
		t.Fatalf("backend retried after downgrade: %d calls", b.convertCall)
	}
	if s.Availability() != AvailabilityUnavailable {
		t.Fatalf("availability = %s", s.Availability())
	}
}

func TestSmartConverter_ConvertSingleDowngradesAndRemembers(t *testing.T) {
	b := &stubBackend{convertErr: &APIError{Kind: KindSubmit, Message: "backend exploded", StatusCode: 500}}
	s := newSmart(b)

	out, err := s.ConvertSingle(context.Background(), oneFile[0], "JPEG", "PNG")
	if err != nil {
		t.Fatalf("ConvertSingle should fall back silently, got %v", err)
	}
	if out.Record.Path != models.ExecutionPathMock || len(out.Results) != 1 {
		t.Fatalf("path = %s results = %d, want one mock result", out.Record.Path, len(out.Results))
	}
	if b.singleCall != 1 {
		t.Fatalf("backend single convert called %d times, want 1", b.singleCall)
	}
	if s.Availability() != AvailabilityUnavailable {
		t.Fatalf("availability = %s, want unavailable", s.Availability())
	}

	b.convertErr = nil
	out, err = s.Convert(context.Background(), oneFile, "JPEG", "PNG", nil)
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if out.Record.Path != models.ExecutionPathMock {
		t.Fatalf("path = %s, want mock", out.Record.Path)
	}
	if b.convertCall != 0 || b.singleCall != 1 {
		t.Fatalf("backend reached after downgrade: convert=%d single=%d", b.convertCall, b.singleCall)
	}
}

func TestSmartConverter_LocalRejectionKeepsBackend(t *testing.T) {
	b := &stubBackend{convertErr: rejectLocally(nil, "file big.jpg is too large")}
	s := newSmart(b)

	out, err := s.Convert(context.Background(), oneFile, "JPEG", "PNG", nil)
	if !RejectedLocally(err) {
		t.Fatalf("expected the local rejection back, got %v", err)
	}
	if out.Record.Path != models.ExecutionPathBackend || out.Success() {
		t.Fatalf("outcome = %+v", out.Record)
	}
	if s.Availability() != AvailabilityAvailable {
		t.Fatalf("availability = %s, want available", s.Availability())
	}

	if _, err := s.ConvertSingle(context.Background(), oneFile[0], "JPEG", "PNG"); !RejectedLocally(err) {
		t.Fatalf("ConvertSingle: expected the local rejection back, got %v", err)
	}
	if s.Availability() != AvailabilityAvailable {
		t.Fatalf("availability after ConvertSingle = %s", s.Availability())
	}
}

func TestSmartConverter_CancellationDoesNotDowngrade(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &stubBackend{}
	s := newSmart(b)
	s.EnsureAvailabilityKnown(ctx)

	cancel()
	b.convertErr = context.Canceled
	if _, err := s.Convert(ctx, oneFile, "JPEG", "PNG", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.Availability() != AvailabilityAvailable {
		t.Fatalf("availability = %s, want available", s.Availability())
	}
}

func TestSmartConverter_ListSupportedFormats(t *testing.T) {
	s := newSmart(&stubBackend{})
	table, ok := s.ListSupportedFormats(context.Background())
	if !ok || len(table["PNG"]) != 1 {
		t.Fatalf("expected backend table, got %v ok=%v", table, ok)
	}

	s = newSmart(&stubBackend{formatsErr: &APIError{Kind: KindFetch, Message: "nope"}})
	if _, ok := s.ListSupportedFormats(context.Background()); ok {
		t.Fatal("expected local table sentinel on fetch failure")
	}

	s = newSmart(&stubBackend{})
	s.ForceMock()
	if _, ok := s.ListSupportedFormats(context.Background()); ok {
		t.Fatal("expected local table sentinel when backend unavailable")
	}
}
