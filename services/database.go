package services

import (
	"context"
	"database/sql"
	"fmt"

	"filealchemy/models"

	_ "github.com/lib/pq"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS conversion_records (
    id                UUID PRIMARY KEY,
    user_id           TEXT,
    source_format     TEXT NOT NULL,
    target_format     TEXT NOT NULL,
    category          TEXT NOT NULL,
    file_count        INTEGER NOT NULL,
    total_input_size  BIGINT NOT NULL,
    total_output_size BIGINT NOT NULL,
    success_count     INTEGER NOT NULL,
    failure_count     INTEGER NOT NULL,
    success           BOOLEAN NOT NULL,
    execution_path    TEXT NOT NULL,
    error_message     TEXT,
    started_at        TIMESTAMPTZ NOT NULL,
    completed_at      TIMESTAMPTZ NOT NULL,
    duration_ms       BIGINT NOT NULL
)`

// DatabaseService appends conversion records to Postgres. Records are only
// ever inserted.
type DatabaseService struct {
	db *sql.DB
}

func NewDatabaseService(databaseURL string) (*DatabaseService, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseService{db: db}, nil
}

// EnsureSchema creates the records table when it does not exist.
func (d *DatabaseService) EnsureSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, createRecordsTable); err != nil {
		return fmt.Errorf("failed to create conversion_records: %w", err)
	}
	return nil
}

func (d *DatabaseService) Record(ctx context.Context, rec models.ConversionRecord) error {
	query := `INSERT INTO conversion_records (
		id, user_id, source_format, target_format, category, file_count,
		total_input_size, total_output_size, success_count, failure_count,
		success, execution_path, error_message, started_at, completed_at, duration_ms
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (id) DO NOTHING`

	_, err := d.db.ExecContext(ctx, query,
		rec.ID,
		nullString(rec.UserID),
		string(rec.SourceFormat),
		string(rec.TargetFormat),
		string(rec.Category),
		rec.FileCount,
		rec.TotalInputSize,
		rec.TotalOutputSize,
		rec.SuccessCount,
		rec.FailureCount,
		rec.Success,
		string(rec.Path),
		nullString(rec.ErrorMessage),
		rec.StartedAt,
		rec.CompletedAt,
		rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversion record: %w", err)
	}
	return nil
}

func (d *DatabaseService) Name() string {
	return "postgres"
}

func (d *DatabaseService) Close() error {
	return d.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
