package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"filealchemy/models"

	"github.com/redis/go-redis/v9"
)

// AnalyticsService keeps daily counters and a capped list of recent records
// in Redis.
type AnalyticsService struct {
	redisClient *redis.Client
	historyKey  string
	limit       int64
}

func NewAnalyticsService(redisClient *redis.Client, historyKey string, limit int64) *AnalyticsService {
	if limit <= 0 {
		limit = 1000
	}
	return &AnalyticsService{redisClient: redisClient, historyKey: historyKey, limit: limit}
}

func (a *AnalyticsService) Record(ctx context.Context, rec models.ConversionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	day := rec.CompletedAt.UTC().Format("2006-01-02")
	countersKey := fmt.Sprintf("%s:daily:%s", a.historyKey, day)
	pair := fmt.Sprintf("pair:%s>%s", rec.SourceFormat, rec.TargetFormat)

	pipe := a.redisClient.TxPipeline()
	pipe.LPush(ctx, a.historyKey, payload)
	pipe.LTrim(ctx, a.historyKey, 0, a.limit-1)
	pipe.HIncrBy(ctx, countersKey, "conversions", 1)
	pipe.HIncrBy(ctx, countersKey, "files", int64(rec.FileCount))
	pipe.HIncrBy(ctx, countersKey, "files_succeeded", int64(rec.SuccessCount))
	pipe.HIncrBy(ctx, countersKey, "files_failed", int64(rec.FailureCount))
	pipe.HIncrBy(ctx, countersKey, "bytes_in", rec.TotalInputSize)
	pipe.HIncrBy(ctx, countersKey, "path:"+string(rec.Path), 1)
	pipe.HIncrBy(ctx, countersKey, "category:"+string(rec.Category), 1)
	pipe.HIncrBy(ctx, countersKey, pair, 1)
	pipe.Expire(ctx, countersKey, 90*24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store analytics: %w", err)
	}
	return nil
}

func (a *AnalyticsService) Name() string {
	return "redis"
}

// Recent returns up to n of the latest records, newest first.
func (a *AnalyticsService) Recent(ctx context.Context, n int64) ([]models.ConversionRecord, error) {
	raw, err := a.redisClient.LRange(ctx, a.historyKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	out := make([]models.ConversionRecord, 0, len(raw))
	for _, item := range raw {
		var rec models.ConversionRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Daily returns the counters for day (YYYY-MM-DD).
func (a *AnalyticsService) Daily(ctx context.Context, day string) (map[string]string, error) {
	return a.redisClient.HGetAll(ctx, fmt.Sprintf("%s:daily:%s", a.historyKey, day)).Result()
}
