package services

import (
	"context"
	"errors"

	"filealchemy/models"

	"github.com/rs/zerolog"
)

// HistorySink accepts append-only conversion records.
type HistorySink interface {
	Record(ctx context.Context, rec models.ConversionRecord) error
	Name() string
}

// Identity is the authentication provider's view of the current user.
type Identity interface {
	CurrentUser() (userID string, ok bool)
}

// StaticIdentity is an Identity for a known user id; empty means anonymous.
type StaticIdentity string

func (s StaticIdentity) CurrentUser() (string, bool) {
	return string(s), s != ""
}

// Tracker hands finished records to every sink, but only for signed-in users.
type Tracker struct {
	sinks  []HistorySink
	logger zerolog.Logger
}

func NewTracker(logger zerolog.Logger, sinks ...HistorySink) *Tracker {
	return &Tracker{
		sinks:  sinks,
		logger: logger.With().Str("component", "tracker").Logger(),
	}
}

// Track returns whether the record was submitted, and the joined errors of
// the sinks that rejected it. One failing sink does not stop the others.
func (t *Tracker) Track(ctx context.Context, who Identity, rec models.ConversionRecord) (bool, error) {
	if who == nil {
		return false, nil
	}
	userID, ok := who.CurrentUser()
	if !ok {
		t.logger.Debug().Str("record_id", rec.ID).Msg("No user signed in, skipping history")
		return false, nil
	}

	rec = rec.WithUser(userID)
	var errs []error
	for _, sink := range t.sinks {
		if err := sink.Record(ctx, rec); err != nil {
			t.logger.Error().Err(err).Str("sink", sink.Name()).Str("record_id", rec.ID).Msg("Failed to record conversion")
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}
