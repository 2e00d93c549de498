package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"filealchemy/formats"
	"filealchemy/models"

	"github.com/rs/zerolog"
)

// ProgressFunc receives progress updates. It is not guaranteed to be called
// with 100; completion is signaled by the converting call returning.
type ProgressFunc func(percent int, status string)

const (
	defaultPollInterval  = time.Second
	defaultMaxUploadSize = 100 * 1024 * 1024
	maxPollFailures      = 3
)

// ConversionClient talks to the remote conversion API.
type ConversionClient struct {
	baseURL       string
	client        *http.Client
	logger        zerolog.Logger
	PollInterval  time.Duration
	MaxUploadSize int64
}

type JobHandle struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

type ResultItem struct {
	OriginalFilename  string `json:"original_filename"`
	ConvertedFilename string `json:"converted_filename"`
	DownloadURL       string `json:"download_url"`
	Size              int64  `json:"size"`
	Success           bool   `json:"success"`
	Error             string `json:"error,omitempty"`
}

type JobStatus struct {
	JobID        string       `json:"job_id"`
	Status       string       `json:"status"`
	Progress     int          `json:"progress"`
	Results      []ResultItem `json:"results"`
	ErrorMessage string       `json:"error_message"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func NewConversionClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *ConversionClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ConversionClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		logger:        logger.With().Str("component", "conversion_client").Logger(),
		PollInterval:  defaultPollInterval,
		MaxUploadSize: defaultMaxUploadSize,
	}
}

// CheckHealth probes /health. Every failure is reported as KindUnreachable.
func (c *ConversionClient) CheckHealth(ctx context.Context) error {
	resp, err := c.get(ctx, "/health")
	if err != nil {
		return newAPIError(KindUnreachable, 0, err, "conversion service unreachable: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(KindUnreachable, resp.StatusCode, nil, "conversion service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// ListSupportedFormats fetches the backend's source -> targets mapping. The
// backend may also group formats by converter as {input: [...], output: [...]};
// that shape is flattened into the same mapping.
func (c *ConversionClient) ListSupportedFormats(ctx context.Context) (map[models.Format][]models.Format, error) {
	resp, err := c.get(ctx, "/formats")
	if err != nil {
		return nil, newAPIError(KindFetch, 0, err, "failed to fetch formats: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.responseError(resp, KindFetch, "failed to fetch formats")
	}

	var body struct {
		Formats json.RawMessage `json:"formats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, newAPIError(KindFetch, resp.StatusCode, err, "failed to decode formats: %v", err)
	}

	out, err := decodeFormats(body.Formats)
	if err != nil {
		return nil, newAPIError(KindFetch, resp.StatusCode, err, "failed to decode formats: %v", err)
	}
	return out, nil
}

func decodeFormats(raw json.RawMessage) (map[models.Format][]models.Format, error) {
	out := make(map[models.Format][]models.Format)

	var flat map[string][]string
	if err := json.Unmarshal(raw, &flat); err == nil {
		for src, targets := range flat {
			key := models.NormalizeFormat(src)
			for _, t := range targets {
				out[key] = appendUnique(out[key], models.NormalizeFormat(t))
			}
		}
		return out, nil
	}

	var grouped map[string]struct {
		Input  []string `json:"input"`
		Output []string `json:"output"`
	}
	if err := json.Unmarshal(raw, &grouped); err != nil {
		return nil, err
	}
	for _, g := range grouped {
		for _, in := range g.Input {
			src := models.NormalizeFormat(in)
			for _, o := range g.Output {
				tgt := models.NormalizeFormat(o)
				if tgt == src {
					continue
				}
				out[src] = appendUnique(out[src], tgt)
			}
		}
	}
	return out, nil
}

func appendUnique(list []models.Format, f models.Format) []models.Format {
	for _, existing := range list {
		if existing == f {
			return list
		}
	}
	return append(list, f)
}

// SubmitJob uploads files for asynchronous conversion.
func (c *ConversionClient) SubmitJob(ctx context.Context, files []models.InputFile, source, target models.Format) (JobHandle, error) {
	if len(files) == 0 {
		return JobHandle{}, rejectLocally(nil, "No files provided")
	}

	body, contentType, err := c.buildForm("files", files, source, target)
	if err != nil {
		return JobHandle{}, rejectLocally(err, "%v", err)
	}

	resp, err := c.post(ctx, "/upload", body, contentType)
	if err != nil {
		return JobHandle{}, newAPIError(KindSubmit, 0, err, "upload request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return JobHandle{}, c.responseError(resp, KindSubmit, "failed to submit conversion job")
	}

	var handle JobHandle
	if err := json.NewDecoder(resp.Body).Decode(&handle); err != nil {
		return JobHandle{}, newAPIError(KindSubmit, resp.StatusCode, err, "failed to decode upload response: %v", err)
	}
	if handle.JobID == "" {
		return JobHandle{}, newAPIError(KindSubmit, resp.StatusCode, nil, "upload response carried no job id")
	}

	c.logger.Debug().
		Str("job_id", handle.JobID).
		Int("files", len(files)).
		Str("source", source.String()).
		Str("target", target.String()).
		Msg("Submitted conversion job")
	return handle, nil
}

// PollJobStatus performs a single status check. A 404 means the job expired
// or never existed.
func (c *ConversionClient) PollJobStatus(ctx context.Context, jobID string) (JobStatus, error) {
	resp, err := c.get(ctx, "/status/"+url.PathEscape(jobID))
	if err != nil {
		return JobStatus{}, newAPIError(KindPoll, 0, err, "status request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return JobStatus{}, c.responseError(resp, KindNotFound, "Job not found")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return JobStatus{}, c.responseError(resp, KindPoll, "failed to get job status")
	}

	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return JobStatus{}, newAPIError(KindPoll, resp.StatusCode, err, "failed to decode job status: %v", err)
	}
	return status, nil
}

// AwaitCompletion polls jobID every interval until it completes or fails.
// Up to maxPollFailures consecutive poll errors are tolerated; a 404, a
// failed job or an unrecognized status ends the wait. Cancelling ctx stops
// polling.
func (c *ConversionClient) AwaitCompletion(ctx context.Context, jobID string, onProgress ProgressFunc, interval time.Duration) (JobStatus, error) {
	interval = c.pollInterval(interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return JobStatus{}, ctx.Err()
		case <-timer.C:
		}

		status, err := c.PollJobStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return JobStatus{}, ctx.Err()
			}
			failures++
			if KindOf(err) == KindNotFound || failures >= maxPollFailures {
				return JobStatus{}, err
			}
			c.logger.Warn().Err(err).Str("job_id", jobID).Int("attempt", failures).Msg("Status poll failed, retrying")
			timer.Reset(interval)
			continue
		}
		failures = 0

		switch models.JobStatus(status.Status) {
		case models.JobCompleted:
			if onProgress != nil {
				onProgress(100, status.Status)
			}
			return status, nil
		case models.JobFailed:
			msg := status.ErrorMessage
			if msg == "" {
				msg = "Conversion failed"
			}
			return status, newAPIError(KindConversionFailed, 0, nil, "%s", msg)
		case models.JobPending, models.JobProcessing:
			if onProgress != nil {
				onProgress(status.Progress, status.Status)
			}
		default:
			return status, newAPIError(KindUnknownStatus, 0, nil, "unknown job status %q", status.Status)
		}
		timer.Reset(interval)
	}
}

// pollInterval picks interval, then the client's PollInterval, then the
// default. A zero interval would poll in a tight loop.
func (c *ConversionClient) pollInterval(interval time.Duration) time.Duration {
	if interval > 0 {
		return interval
	}
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// Convert submits files, waits for the job and maps the server's results
// back onto the inputs. The returned outcome is always populated, also when
// err is non-nil.
func (c *ConversionClient) Convert(ctx context.Context, files []models.InputFile, source, target string, onProgress ProgressFunc) (models.ConversionOutcome, error) {
	job := newJob(files, source, target)
	startedAt := time.Now()

	handle, err := c.SubmitJob(ctx, files, job.SourceFormat, job.TargetFormat)
	if err != nil {
		_ = job.Transition(models.JobFailed)
		return failedOutcome(models.ExecutionPathBackend, job, startedAt, err), err
	}
	_ = job.Transition(models.JobProcessing)

	status, err := c.AwaitCompletion(ctx, handle.JobID, onProgress, 0)
	if err != nil {
		_ = job.Transition(models.JobFailed)
		return failedOutcome(models.ExecutionPathBackend, job, startedAt, err), err
	}
	_ = job.Transition(models.JobCompleted)

	results := c.matchResults(job, status.Results)
	out := models.NewOutcome(models.ExecutionPathBackend, job, results, startedAt, nil)
	c.logger.Info().
		Str("job_id", handle.JobID).
		Str("summary", out.Summary()).
		Int64("duration_ms", out.Record.DurationMs).
		Msg("Conversion job finished")
	return out, nil
}

// matchResults pairs each input with the server entry carrying its file name.
// The server may sanitize names, so an unmatched input falls back to the
// entry at its own position.
func (c *ConversionClient) matchResults(job *models.Job, items []ResultItem) []models.Result {
	claimed := make([]bool, len(items))
	results := make([]models.Result, len(job.Files))

	for i, f := range job.Files {
		idx := -1
		for j, item := range items {
			if !claimed[j] && item.OriginalFilename == f.Name {
				idx = j
				break
			}
		}
		if idx < 0 && i < len(items) && !claimed[i] {
			idx = i
		}

		outName := formats.OutputFileName(f.Name, job.SourceFormat.String(), job.TargetFormat.String())
		if idx < 0 {
			results[i] = models.Failed(f, outName, fmt.Sprintf("No result returned for %s", f.Name))
			continue
		}
		claimed[idx] = true
		results[i] = c.resultFromItem(f, items[idx], outName)
	}
	return results
}

func (c *ConversionClient) resultFromItem(f models.InputFile, item ResultItem, fallbackName string) models.Result {
	name := item.ConvertedFilename
	if name == "" {
		name = fallbackName
	}
	if !item.Success {
		return models.Failed(f, name, item.Error)
	}
	return models.Succeeded(f, name, c.resolveURL(item.DownloadURL), item.Size)
}

// ConvertSingle converts one file synchronously through /convert.
func (c *ConversionClient) ConvertSingle(ctx context.Context, file models.InputFile, source, target string) (models.ConversionOutcome, error) {
	job := newJob([]models.InputFile{file}, source, target)
	startedAt := time.Now()
	_ = job.Transition(models.JobProcessing)

	fail := func(err error) (models.ConversionOutcome, error) {
		_ = job.Transition(models.JobFailed)
		return failedOutcome(models.ExecutionPathBackend, job, startedAt, err), err
	}

	body, contentType, err := c.buildForm("file", job.Files, job.SourceFormat, job.TargetFormat)
	if err != nil {
		return fail(rejectLocally(err, "%v", err))
	}

	resp, err := c.post(ctx, "/convert", body, contentType)
	if err != nil {
		return fail(newAPIError(KindSubmit, 0, err, "convert request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(c.responseError(resp, KindSubmit, "failed to convert file"))
	}

	var item ResultItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return fail(newAPIError(KindSubmit, resp.StatusCode, err, "failed to decode convert response: %v", err))
	}
	_ = job.Transition(models.JobCompleted)

	outName := formats.OutputFileName(file.Name, job.SourceFormat.String(), job.TargetFormat.String())
	results := []models.Result{c.resultFromItem(file, item, outName)}
	return models.NewOutcome(models.ExecutionPathBackend, job, results, startedAt, nil), nil
}

// Download streams a converted file into w. location may be a bare file
// name, a path returned by the service or an absolute URL.
func (c *ConversionClient) Download(ctx context.Context, location string, w io.Writer) (int64, error) {
	target := location
	if !strings.Contains(location, "/") {
		target = c.baseURL + "/download/" + url.PathEscape(location)
	} else {
		target = c.resolveURL(location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, newAPIError(KindFetch, 0, err, "failed to create request: %v", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, newAPIError(KindFetch, 0, err, "download request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, c.responseError(resp, KindNotFound, "File not found")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, c.responseError(resp, KindFetch, "download failed")
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, newAPIError(KindFetch, resp.StatusCode, err, "failed to save download: %v", err)
	}
	return n, nil
}

func (c *ConversionClient) buildForm(field string, files []models.InputFile, source, target models.Format) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, f := range files {
		if c.MaxUploadSize > 0 && f.Size > c.MaxUploadSize {
			return nil, "", fmt.Errorf("file %s is too large (max %dMB)", f.Name, c.MaxUploadSize/(1024*1024))
		}
		if err := copyFormFile(writer, field, f); err != nil {
			return nil, "", err
		}
	}

	writer.WriteField("source_format", source.String())
	writer.WriteField("target_format", target.String())

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func copyFormFile(writer *multipart.Writer, field string, f models.InputFile) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile(field, f.Name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}
	return nil
}

func (c *ConversionClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return c.client.Do(req)
}

func (c *ConversionClient) post(ctx context.Context, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	return c.client.Do(req)
}

// responseError prefers the server's JSON "error" message over fallback.
func (c *ConversionClient) responseError(resp *http.Response, kind ErrorKind, fallback string) *APIError {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var eb errorBody
	if err := json.Unmarshal(bodyBytes, &eb); err == nil && eb.Error != "" {
		return newAPIError(kind, resp.StatusCode, nil, "%s", eb.Error)
	}
	return newAPIError(kind, resp.StatusCode, nil, "%s (status %d)", fallback, resp.StatusCode)
}

func (c *ConversionClient) resolveURL(location string) string {
	if location == "" {
		return ""
	}
	ref, err := url.Parse(location)
	if err != nil || ref.IsAbs() {
		return location
	}
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return location
	}
	return base.ResolveReference(ref).String()
}

func newJob(files []models.InputFile, source, target string) *models.Job {
	src := models.NormalizeFormat(source)
	return models.NewJob(files, src, models.NormalizeFormat(target), formats.CategoryOf(src.String()))
}

// failedOutcome marks every input failed with err's message.
func failedOutcome(path models.ExecutionPath, job *models.Job, startedAt time.Time, err error) models.ConversionOutcome {
	results := make([]models.Result, len(job.Files))
	for i, f := range job.Files {
		outName := formats.OutputFileName(f.Name, job.SourceFormat.String(), job.TargetFormat.String())
		results[i] = models.Failed(f, outName, err.Error())
	}
	return models.NewOutcome(path, job, results, startedAt, err)
}
