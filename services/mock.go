package services

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"filealchemy/formats"
	"filealchemy/models"

	"github.com/rs/zerolog"
)

// MockSuccessRate is the probability of a simulated file conversion succeeding.
const MockSuccessRate = 0.95

const mockProgressSteps = 5

// MockConverter simulates conversions locally when the backend is down.
// Its outcomes have the same shape as ConversionClient's and are tagged
// ExecutionPathMock.
type MockConverter struct {
	stepDelay time.Duration
	logger    zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockConverter(stepDelay time.Duration, logger zerolog.Logger) *MockConverter {
	return &MockConverter{
		stepDelay: stepDelay,
		logger:    logger.With().Str("component", "mock_converter").Logger(),
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// WithRand swaps the random source, for reproducible tests.
func (m *MockConverter) WithRand(r *rand.Rand) *MockConverter {
	m.mu.Lock()
	m.rng = r
	m.mu.Unlock()
	return m
}

func (m *MockConverter) Convert(ctx context.Context, files []models.InputFile, source, target string, onProgress ProgressFunc) (models.ConversionOutcome, error) {
	job := newJob(files, source, target)
	startedAt := time.Now()
	_ = job.Transition(models.JobProcessing)

	results := make([]models.Result, 0, len(files))
	for i, f := range files {
		for step := 1; step <= mockProgressSteps; step++ {
			if err := m.sleep(ctx); err != nil {
				_ = job.Transition(models.JobFailed)
				return failedOutcome(models.ExecutionPathMock, job, startedAt, err), err
			}
			if onProgress != nil {
				fileShare := float64(step) / mockProgressSteps
				onProgress(int((float64(i)+fileShare)/float64(len(files))*100), string(models.JobProcessing))
			}
		}
		results = append(results, m.simulate(job, f))
	}
	_ = job.Transition(models.JobCompleted)
	if onProgress != nil {
		onProgress(100, string(models.JobCompleted))
	}

	out := models.NewOutcome(models.ExecutionPathMock, job, results, startedAt, nil)
	m.logger.Info().Str("summary", out.Summary()).Msg("Simulated conversion finished")
	return out, nil
}

func (m *MockConverter) ConvertSingle(ctx context.Context, file models.InputFile, source, target string) (models.ConversionOutcome, error) {
	return m.Convert(ctx, []models.InputFile{file}, source, target, nil)
}

func (m *MockConverter) simulate(job *models.Job, f models.InputFile) models.Result {
	name := formats.OutputFileName(f.Name, job.SourceFormat.String(), job.TargetFormat.String())

	m.mu.Lock()
	ok := m.rng.Float64() < MockSuccessRate
	factor := 0.7 + m.rng.Float64()*0.6
	m.mu.Unlock()

	if !ok {
		return models.Failed(f, name, "Simulated conversion failure for "+f.Name)
	}
	return models.Succeeded(f, name, "mock://"+name, mockOutputSize(f.Size, factor))
}

// mockOutputSize scales size by factor and keeps the result within
// [ceil(0.7*size), floor(1.3*size)], which is non-empty for size >= 1.
func mockOutputSize(size int64, factor float64) int64 {
	if size <= 0 {
		return 0
	}
	lo := (size*7 + 9) / 10
	hi := size * 13 / 10
	out := int64(math.Round(float64(size) * factor))
	return min(max(out, lo), hi)
}

func (m *MockConverter) sleep(ctx context.Context) error {
	if m.stepDelay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.stepDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
