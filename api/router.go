// Package api exposes the worker's status surface: backend availability,
// the format table, request submission and request status.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"filealchemy/formats"
	"filealchemy/models"
	"filealchemy/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type FormatSource interface {
	ListSupportedFormats(ctx context.Context) (map[models.Format][]models.Format, bool)
	Availability() services.Availability
}

type Queue interface {
	Enqueue(ctx context.Context, req models.ConversionRequest) error
	Status(ctx context.Context, requestID string) (map[string]string, error)
}

type HistoryReader interface {
	Recent(ctx context.Context, n int64) ([]models.ConversionRecord, error)
	Daily(ctx context.Context, day string) (map[string]string, error)
}

type App struct {
	Formats FormatSource
	Queue   Queue
	History HistoryReader
	Logger  zerolog.Logger
}

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, requestLogger(app.Logger))

	r.Get("/healthz", app.health)
	r.Get("/categories", app.categories)
	r.Get("/formats", app.listFormats)

	r.Route("/requests", func(r chi.Router) {
		r.Post("/", app.enqueue)
		r.Get("/{id}", app.status)
	})

	r.Get("/history", app.history)
	r.Get("/analytics/{day}", app.daily)
	return r
}

type enqueueBody struct {
	UserID       string   `json:"userId"`
	SourceFormat string   `json:"sourceFormat"`
	TargetFormat string   `json:"targetFormat"`
	InputKeys    []string `json:"inputKeys"`
	OutputPrefix string   `json:"outputPrefix"`
	Timeout      int      `json:"timeout"`
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": a.Formats.Availability().String(),
	})
}

func (a *App) categories(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"categories": formats.Categories()})
}

func (a *App) listFormats(w http.ResponseWriter, r *http.Request) {
	table, ok := a.Formats.ListSupportedFormats(r.Context())
	source := "backend"
	if !ok {
		table = formats.Table()
		source = "local"
	}
	a.json(w, http.StatusOK, map[string]any{"source": source, "formats": table})
}

func (a *App) enqueue(w http.ResponseWriter, r *http.Request) {
	var body enqueueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.SourceFormat == "" || body.TargetFormat == "" {
		a.fail(w, http.StatusBadRequest, "Source and target formats required")
		return
	}
	if len(body.InputKeys) == 0 {
		a.fail(w, http.StatusBadRequest, "No files provided")
		return
	}
	if !formats.IsSupported(body.SourceFormat, body.TargetFormat) {
		a.fail(w, http.StatusBadRequest, "Conversion not supported")
		return
	}

	req := models.ConversionRequest{
		RequestID:    uuid.NewString(),
		UserID:       body.UserID,
		SourceFormat: string(models.NormalizeFormat(body.SourceFormat)),
		TargetFormat: string(models.NormalizeFormat(body.TargetFormat)),
		InputKeys:    body.InputKeys,
		OutputPrefix: body.OutputPrefix,
		CreatedAt:    time.Now(),
		Timeout:      body.Timeout,
	}
	if err := a.Queue.Enqueue(r.Context(), req); err != nil {
		a.Logger.Error().Err(err).Msg("Failed to enqueue conversion request")
		a.fail(w, http.StatusServiceUnavailable, "failed to enqueue request")
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{"success": true, "request_id": req.RequestID})
}

func (a *App) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fields, err := a.Queue.Status(r.Context(), id)
	if err != nil {
		a.Logger.Error().Err(err).Str("request_id", id).Msg("Failed to read status")
		a.fail(w, http.StatusServiceUnavailable, "failed to read status")
		return
	}
	if len(fields) == 0 {
		a.fail(w, http.StatusNotFound, "Request not found")
		return
	}

	resp := map[string]any{"request_id": id}
	for k, v := range fields {
		resp[k] = v
	}
	if p, err := strconv.Atoi(fields["progress"]); err == nil {
		resp["progress"] = p
	}
	if raw, ok := fields["results"]; ok {
		resp["results"] = json.RawMessage(raw)
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) history(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		a.json(w, http.StatusOK, map[string]any{"records": []models.ConversionRecord{}})
		return
	}
	limit := int64(20)
	if v, err := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	records, err := a.History.Recent(r.Context(), limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("Failed to read history")
		a.fail(w, http.StatusServiceUnavailable, "failed to read history")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"records": records})
}

// daily returns the counters of one UTC day; "today" is accepted.
func (a *App) daily(w http.ResponseWriter, r *http.Request) {
	day := chi.URLParam(r, "day")
	if day == "today" {
		day = time.Now().UTC().Format(time.DateOnly)
	}
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		a.fail(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
		return
	}

	counters := map[string]int64{}
	if a.History != nil {
		fields, err := a.History.Daily(r.Context(), day)
		if err != nil {
			a.Logger.Error().Err(err).Str("day", day).Msg("Failed to read analytics")
			a.fail(w, http.StatusServiceUnavailable, "failed to read analytics")
			return
		}
		for k, v := range fields {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				counters[k] = n
			}
		}
	}
	a.json(w, http.StatusOK, map[string]any{"day": day, "counters": counters})
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) fail(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]any{"success": false, "error": msg})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func requestLogger(l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			l.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Msgf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
		})
	}
}
