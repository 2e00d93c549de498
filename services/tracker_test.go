package services

import (
	"context"
	"errors"
	"testing"

	"filealchemy/models"

	"github.com/rs/zerolog"
)

type memorySink struct {
	name    string
	err     error
	records []models.ConversionRecord
}

func (m *memorySink) Record(ctx context.Context, rec models.ConversionRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySink) Name() string { return m.name }

func TestTracker_SkipsAnonymousUsers(t *testing.T) {
	sink := &memorySink{name: "mem"}
	tr := NewTracker(zerolog.Nop(), sink)

	submitted, err := tr.Track(context.Background(), StaticIdentity(""), models.ConversionRecord{ID: "r1"})
	if submitted || err != nil {
		t.Fatalf("submitted=%v err=%v", submitted, err)
	}
	if submitted, _ := tr.Track(context.Background(), nil, models.ConversionRecord{ID: "r1"}); submitted {
		t.Fatal("nil identity submitted")
	}
	if len(sink.records) != 0 {
		t.Fatalf("records = %v", sink.records)
	}
}

func TestTracker_FansOutWithUser(t *testing.T) {
	good := &memorySink{name: "good"}
	bad := &memorySink{name: "bad", err: errors.New("down")}
	other := &memorySink{name: "other"}
	tr := NewTracker(zerolog.Nop(), good, bad, other)

	rec := models.ConversionRecord{ID: "r1", Path: models.ExecutionPathMock}
	submitted, err := tr.Track(context.Background(), StaticIdentity("user-7"), rec)
	if !submitted {
		t.Fatal("record not submitted")
	}
	if err == nil || err.Error() != "down" {
		t.Fatalf("err = %v", err)
	}
	if len(good.records) != 1 || len(other.records) != 1 {
		t.Fatalf("sinks after failure were skipped: %d %d", len(good.records), len(other.records))
	}
	if good.records[0].UserID != "user-7" {
		t.Fatalf("user id = %q", good.records[0].UserID)
	}
	if rec.UserID != "" {
		t.Fatal("caller's record was mutated")
	}
}
