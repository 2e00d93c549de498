package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"filealchemy/config"
	"filealchemy/formats"
	"filealchemy/models"
	"filealchemy/services"
	"filealchemy/session"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("permanent failure")

// Converter runs conversions; *services.SmartConverter in production.
type Converter interface {
	Convert(ctx context.Context, files []models.InputFile, source, target string, onProgress services.ProgressFunc) (models.ConversionOutcome, error)
	ConvertSingle(ctx context.Context, file models.InputFile, source, target string) (models.ConversionOutcome, error)
}

// Storage holds queued inputs and mirrored outputs.
type Storage interface {
	Fetch(ctx context.Context, key string, dir string) (models.InputFile, error)
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	Cleanup(f models.InputFile) error
}

// Downloader retrieves converted files from the conversion service.
type Downloader interface {
	Download(ctx context.Context, location string, w io.Writer) (int64, error)
}

type Pool struct {
	config      *config.Config
	redisClient *redis.Client
	converter   Converter
	downloader  Downloader
	storage     Storage
	tracker     *services.Tracker
	logger      zerolog.Logger

	// retryBase is the unit of the exponential retry delay.
	retryBase time.Duration
}

func NewPool(
	cfg *config.Config,
	redisClient *redis.Client,
	converter Converter,
	downloader Downloader,
	storage Storage,
	tracker *services.Tracker,
	logger zerolog.Logger,
) *Pool {
	return &Pool{
		config:      cfg,
		redisClient: redisClient,
		converter:   converter,
		downloader:  downloader,
		storage:     storage,
		tracker:     tracker,
		logger:      logger.With().Str("component", "worker").Logger(),
		retryBase:   time.Second,
	}
}

func (p *Pool) StartWorker(ctx context.Context, workerID int) {
	log := p.logger.With().Int("worker", workerID).Logger()
	log.Info().Msg("Starting")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down")
			return
		default:
			p.next(ctx, log, 30*time.Second)
		}
	}
}

// next moves one request from pending to processing and handles it, waiting
// up to wait for a request to arrive.
func (p *Pool) next(ctx context.Context, log zerolog.Logger, wait time.Duration) {
	// Atomic pop from pending and push to processing
	result, err := p.redisClient.BRPopLPush(
		ctx,
		p.config.PendingQueue,
		p.config.ProcessingQueue,
		wait,
	).Result()

	if err == redis.Nil {
		return
	}

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error().Err(err).Msg("Redis error")
		time.Sleep(5 * time.Second)
		return
	}

	var req models.ConversionRequest
	if err := json.Unmarshal([]byte(result), &req); err != nil {
		log.Error().Err(err).Msg("Failed to parse conversion request")
		p.redisClient.LRem(ctx, p.config.ProcessingQueue, 1, result)
		return
	}

	p.processJob(ctx, log, &req, result)
}

func (p *Pool) processJob(ctx context.Context, log zerolog.Logger, req *models.ConversionRequest, reqJSON string) {
	log = log.With().Str("request_id", req.RequestID).Logger()
	log.Info().
		Str("source", req.SourceFormat).
		Str("target", req.TargetFormat).
		Int("files", len(req.InputKeys)).
		Msg("Processing conversion request")

	if !formats.IsSupported(req.SourceFormat, req.TargetFormat) {
		p.handleJobFailure(ctx, log, req, reqJSON, fmt.Errorf("%w: conversion from %s to %s is not supported",
			errPermanent, models.NormalizeFormat(req.SourceFormat), models.NormalizeFormat(req.TargetFormat)))
		return
	}

	p.setStatus(ctx, req.RequestID, map[string]interface{}{"status": string(models.JobProcessing), "progress": 0})

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.config.ConversionTimeout
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	files, err := p.fetchInputs(timeoutCtx, req)
	defer p.cleanup(files)
	if err != nil {
		p.handleJobFailure(ctx, log, req, reqJSON, fmt.Errorf("S3 download failed: %w", err))
		return
	}

	sess := session.New(nil)
	defer sess.ResetAll()

	sess.SetConversionTarget(formats.CategoryOf(req.SourceFormat), req.SourceFormat, req.TargetFormat)
	if err := sess.AddFiles(files...); err != nil {
		p.handleJobFailure(ctx, log, req, reqJSON, err)
		return
	}

	convCtx, gen := sess.StartConversion(timeoutCtx)
	var out models.ConversionOutcome
	if inputs := sess.Files(); len(inputs) == 1 {
		out, err = p.converter.ConvertSingle(convCtx, inputs[0], req.SourceFormat, req.TargetFormat)
	} else {
		out, err = p.converter.Convert(convCtx, inputs, req.SourceFormat, req.TargetFormat, func(percent int, status string) {
			if sess.UpdateProgress(gen, percent) {
				p.setStatus(ctx, req.RequestID, map[string]interface{}{"status": status, "progress": percent})
			}
		})
	}
	if err != nil {
		if services.RejectedLocally(err) {
			err = fmt.Errorf("%w: %w", errPermanent, err)
		}
		p.handleJobFailure(ctx, log, req, reqJSON, fmt.Errorf("conversion failed: %w", err))
		return
	}
	sess.CompleteConversion(gen, out)

	if out.Record.Path == models.ExecutionPathBackend && req.OutputPrefix != "" {
		p.mirrorOutputs(timeoutCtx, log, req, out.Results)
	}

	if _, err := p.tracker.Track(ctx, services.StaticIdentity(req.UserID), out.Record); err != nil {
		log.Warn().Err(err).Msg("Conversion history incomplete")
	}

	results, _ := json.Marshal(out.Results)
	p.setStatus(ctx, req.RequestID, map[string]interface{}{
		"status":    string(out.Status),
		"progress":  sess.Snapshot().Progress,
		"outcome":   string(out.State()),
		"summary":   out.Summary(),
		"path":      string(out.Record.Path),
		"record_id": out.Record.ID,
		"results":   string(results),
	}, "error")

	p.redisClient.LRem(ctx, p.config.ProcessingQueue, 1, reqJSON)

	log.Info().
		Str("summary", out.Summary()).
		Str("path", string(out.Record.Path)).
		Float64("seconds", float64(out.Record.DurationMs)/1000).
		Msg("Conversion request completed")
}

func (p *Pool) fetchInputs(ctx context.Context, req *models.ConversionRequest) ([]models.InputFile, error) {
	files := make([]models.InputFile, 0, len(req.InputKeys))
	for _, key := range req.InputKeys {
		f, err := p.storage.Fetch(ctx, key, p.config.WorkDir)
		if err != nil {
			return files, err
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return files, fmt.Errorf("%w: request has no input files", errPermanent)
	}
	return files, nil
}

func (p *Pool) cleanup(files []models.InputFile) {
	for _, f := range files {
		if err := p.storage.Cleanup(f); err != nil {
			p.logger.Warn().Err(err).Str("path", f.Path).Msg("Failed to remove work file")
		}
	}
}

// mirrorOutputs copies converted files from the conversion service into the
// bucket. A failed copy is logged; the conversion result stands.
func (p *Pool) mirrorOutputs(ctx context.Context, log zerolog.Logger, req *models.ConversionRequest, results []models.Result) {
	for _, r := range results {
		if !r.Success || r.DownloadURL == "" {
			continue
		}
		key := req.OutputPrefix + "/" + r.ConvertedFileName
		if err := p.mirrorOne(ctx, r, key); err != nil {
			log.Warn().Err(err).Str("file", r.ConvertedFileName).Msg("Failed to mirror converted file")
		}
	}
}

func (p *Pool) mirrorOne(ctx context.Context, r models.Result, key string) error {
	tmp, err := os.CreateTemp(p.config.WorkDir, "out-*"+filepath.Ext(r.ConvertedFileName))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := p.downloader.Download(ctx, r.DownloadURL, tmp); err != nil {
		return err
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind temp file: %w", err)
	}
	return p.storage.Put(ctx, key, tmp, "")
}

// setStatus merges fields into the request's status hash and removes the
// fields named in drop.
func (p *Pool) setStatus(ctx context.Context, requestID string, fields map[string]interface{}, drop ...string) {
	fields["updated_at"] = time.Now().Format(time.RFC3339)
	key := p.config.StatusKeyPrefix + requestID
	pipe := p.redisClient.TxPipeline()
	if len(drop) > 0 {
		pipe.HDel(ctx, key, drop...)
	}
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.Warn().Err(err).Str("request_id", requestID).Msg("Failed to update status")
	}
}

func (p *Pool) handleJobFailure(ctx context.Context, log zerolog.Logger, req *models.ConversionRequest, reqJSON string, cause error) {
	log.Warn().Err(cause).Msg("Conversion request failed")

	// Remove from processing queue
	p.redisClient.LRem(ctx, p.config.ProcessingQueue, 1, reqJSON)

	if !errors.Is(cause, errPermanent) && req.RetryCount < req.MaxRetries {
		req.RetryCount++
		newReqJSON, _ := json.Marshal(req)

		// Calculate exponential backoff delay
		delay := time.Duration(math.Pow(2, float64(req.RetryCount))) * p.retryBase
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		p.setStatus(ctx, req.RequestID, map[string]interface{}{"status": string(models.JobPending), "error": cause.Error()})
		time.AfterFunc(delay, func() {
			p.redisClient.LPush(context.Background(), p.config.PendingQueue, newReqJSON)
			log.Info().
				Int("retry", req.RetryCount).
				Int("max_retries", req.MaxRetries).
				Dur("delay", delay).
				Msg("Scheduled retry")
		})
		return
	}

	// Max retries reached or permanent failure - move to failed queue
	p.redisClient.LPush(ctx, p.config.FailedQueue, reqJSON)
	p.setStatus(ctx, req.RequestID, map[string]interface{}{
		"status":  string(models.JobFailed),
		"outcome": string(models.OutcomeFailed),
		"error":   cause.Error(),
	})
	log.Warn().Int("retries", req.RetryCount).Msg("Conversion request moved to failed queue")
}

func (p *Pool) RecoveryLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	p.logger.Info().Msg("Starting stale request recovery loop")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Recovery loop shutting down")
			return
		case <-ticker.C:
			p.recoverStaleJobs(ctx)
		}
	}
}

func (p *Pool) recoverStaleJobs(ctx context.Context) {
	reqs, err := p.redisClient.LRange(ctx, p.config.ProcessingQueue, 0, -1).Result()
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to get processing queue")
		return
	}

	stale := time.Duration(p.config.ConversionTimeout)*time.Second + 5*time.Minute
	recovered := 0
	for _, reqJSON := range reqs {
		var req models.ConversionRequest
		if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
			continue
		}

		if time.Since(req.CreatedAt) <= stale {
			continue
		}
		p.redisClient.LRem(ctx, p.config.ProcessingQueue, 1, reqJSON)

		if req.RetryCount < req.MaxRetries {
			req.RetryCount++
			newReqJSON, _ := json.Marshal(req)
			p.redisClient.LPush(ctx, p.config.PendingQueue, newReqJSON)
			recovered++
		} else {
			p.redisClient.LPush(ctx, p.config.FailedQueue, reqJSON)
			p.setStatus(ctx, req.RequestID, map[string]interface{}{
				"status": string(models.JobFailed),
				"error":  "Request timeout - exceeded processing window",
			})
		}
	}

	if recovered > 0 {
		p.logger.Info().Int("recovered", recovered).Msg("Recovered stale requests")
	}
}

// Enqueue pushes a new conversion request onto the pending queue.
func (p *Pool) Enqueue(ctx context.Context, req models.ConversionRequest) error {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if req.MaxRetries == 0 {
		req.MaxRetries = p.config.MaxRetries
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	p.setStatus(ctx, req.RequestID, map[string]interface{}{"status": string(models.JobPending), "progress": 0})
	return p.redisClient.LPush(ctx, p.config.PendingQueue, payload).Err()
}

// Status returns the status hash of a request; empty when unknown.
func (p *Pool) Status(ctx context.Context, requestID string) (map[string]string, error) {
	return p.redisClient.HGetAll(ctx, p.config.StatusKeyPrefix+requestID).Result()
}
