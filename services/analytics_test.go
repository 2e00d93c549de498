package services

import (
	"context"
	"testing"
	"time"

	"filealchemy/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAnalyticsService_RecordsHistoryAndDailyCounters(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	a := NewAnalyticsService(rdb, "history", 2)
	ctx := context.Background()
	day := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"r1", "r2", "r3"} {
		rec := models.ConversionRecord{
			ID:             id,
			SourceFormat:   "JPEG",
			TargetFormat:   "PNG",
			Category:       models.CategoryImages,
			FileCount:      2,
			SuccessCount:   1,
			FailureCount:   1,
			TotalInputSize: 300,
			CompletedAt:    day,
			Path:           models.ExecutionPathMock,
		}
		if err := a.Record(ctx, rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	recent, err := a.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "r3" || recent[1].ID != "r2" {
		t.Fatalf("recent = %+v, want r3 then r2", recent)
	}

	counters, err := a.Daily(ctx, "2026-10-15")
	if err != nil {
		t.Fatalf("Daily failed: %v", err)
	}
	want := map[string]string{
		"conversions":     "3",
		"files":           "6",
		"files_succeeded": "3",
		"files_failed":    "3",
		"bytes_in":        "900",
		"path:mock":       "3",
		"category:images": "3",
		"pair:JPEG>PNG":   "3",
	}
	for k, v := range want {
		if counters[k] != v {
			t.Errorf("%s = %q, want %q", k, counters[k], v)
		}
	}

	if empty, err := a.Daily(ctx, "2026-10-14"); err != nil || len(empty) != 0 {
		t.Fatalf("unexpected counters for an idle day: %v (%v)", empty, err)
	}
}
