package services

import (
	"context"
	"sync"
	"sync/atomic"

	"filealchemy/models"

	"github.com/rs/zerolog"
)

type Availability int32

const (
	AvailabilityUnknown Availability = iota
	AvailabilityAvailable
	AvailabilityUnavailable
)

func (a Availability) String() string {
	switch a {
	case AvailabilityAvailable:
		return "available"
	case AvailabilityUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Backend is the remote side SmartConverter dispatches to.
type Backend interface {
	CheckHealth(ctx context.Context) error
	ListSupportedFormats(ctx context.Context) (map[models.Format][]models.Format, error)
	Convert(ctx context.Context, files []models.InputFile, source, target string, onProgress ProgressFunc) (models.ConversionOutcome, error)
	ConvertSingle(ctx context.Context, file models.InputFile, source, target string) (models.ConversionOutcome, error)
}

// Fallback produces outcomes without a network dependency.
type Fallback interface {
	Convert(ctx context.Context, files []models.InputFile, source, target string, onProgress ProgressFunc) (models.ConversionOutcome, error)
	ConvertSingle(ctx context.Context, file models.InputFile, source, target string) (models.ConversionOutcome, error)
}

// SmartConverter picks the backend or the mock per call. Backend
// availability is probed once; the first runtime failure of the backend
// switches the converter to the mock for the rest of its lifetime. Input the
// client refuses to send is returned as an error without a downgrade.
type SmartConverter struct {
	backend  Backend
	fallback Fallback
	logger   zerolog.Logger

	probeMu      sync.Mutex
	availability atomic.Int32
}

func NewSmartConverter(backend Backend, fallback Fallback, logger zerolog.Logger) *SmartConverter {
	return &SmartConverter{
		backend:  backend,
		fallback: fallback,
		logger:   logger.With().Str("component", "smart_converter").Logger(),
	}
}

// ForceMock marks the backend unavailable without probing it.
func (s *SmartConverter) ForceMock() {
	s.availability.Store(int32(AvailabilityUnavailable))
}

func (s *SmartConverter) Availability() Availability {
	return Availability(s.availability.Load())
}

// EnsureAvailabilityKnown runs the health check if it has not run yet.
func (s *SmartConverter) EnsureAvailabilityKnown(ctx context.Context) Availability {
	if a := s.Availability(); a != AvailabilityUnknown {
		return a
	}

	s.probeMu.Lock()
	defer s.probeMu.Unlock()
	if a := s.Availability(); a != AvailabilityUnknown {
		return a
	}

	if err := s.backend.CheckHealth(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Conversion backend unavailable, using mock conversions")
		s.availability.Store(int32(AvailabilityUnavailable))
	} else {
		s.logger.Info().Msg("Conversion backend available")
		s.availability.Store(int32(AvailabilityAvailable))
	}
	return s.Availability()
}

func (s *SmartConverter) Convert(ctx context.Context, files []models.InputFile, source, target string, onProgress ProgressFunc) (models.ConversionOutcome, error) {
	if s.EnsureAvailabilityKnown(ctx) == AvailabilityAvailable {
		out, err := s.backend.Convert(ctx, files, source, target, onProgress)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if RejectedLocally(err) {
			return out, err
		}
		s.downgrade(err)
	}
	return s.fallback.Convert(ctx, files, source, target, onProgress)
}

func (s *SmartConverter) ConvertSingle(ctx context.Context, file models.InputFile, source, target string) (models.ConversionOutcome, error) {
	if s.EnsureAvailabilityKnown(ctx) == AvailabilityAvailable {
		out, err := s.backend.ConvertSingle(ctx, file, source, target)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if RejectedLocally(err) {
			return out, err
		}
		s.downgrade(err)
	}
	return s.fallback.ConvertSingle(ctx, file, source, target)
}

// ListSupportedFormats returns the backend's mapping. ok == false tells the
// caller to use the local static table instead.
func (s *SmartConverter) ListSupportedFormats(ctx context.Context) (map[models.Format][]models.Format, bool) {
	if s.EnsureAvailabilityKnown(ctx) != AvailabilityAvailable {
		return nil, false
	}
	table, err := s.backend.ListSupportedFormats(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list backend formats, using local table")
		return nil, false
	}
	return table, true
}

func (s *SmartConverter) downgrade(err error) {
	if s.availability.Swap(int32(AvailabilityUnavailable)) != int32(AvailabilityUnavailable) {
		s.logger.Warn().
			Err(err).
			Str("kind", string(KindOf(err))).
			Msg("Backend conversion failed, switching to mock conversions for this session")
	}
}
