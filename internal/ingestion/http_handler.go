package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rpattn/datareader/internal/domain"
	"github.com/rpattn/datareader/internal/middleware"
	"github.com/rpattn/datareader/internal/repository"
)

const (
	serviceName    = "data-reader"
	serviceVersion = "1.0.0"
	maxRequestBody = 1 << 20
)

// Processor runs one ingestion. *Service implements it.
type Processor interface {
	Process(ctx context.Context, fileLocation string) (Result, error)
}

// Handler exposes ingestion and its job history over HTTP.
type Handler struct {
	processor Processor
	jobs      repository.ProcessingJobRepository
	logs      repository.IngestionLogRepository
	logger    zerolog.Logger
	mux       *http.ServeMux
}

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithJobHistory enables the /jobs endpoints.
func WithJobHistory(jobs repository.ProcessingJobRepository, logs repository.IngestionLogRepository) HandlerOption {
	return func(h *Handler) {
		h.jobs = jobs
		h.logs = logs
	}
}

func WithHandlerLogger(logger zerolog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// NewHTTPHandler wraps the processor with the service's REST routes.
func NewHTTPHandler(processor Processor, opts ...HandlerOption) http.Handler {
	h := &Handler{processor: processor, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}

	h.mux = http.NewServeMux()
	h.mux.HandleFunc("POST /process", h.handleProcess)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /{$}", h.handleRoot)
	h.mux.HandleFunc("GET /jobs", h.handleListJobs)
	h.mux.HandleFunc("GET /jobs/{id}", h.handleGetJob)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type processRequest struct {
	FileLocation string `json:"fileLocation"`
}

type processFailure struct {
	Error        string `json:"error"`
	TotalRecords int    `json:"totalRecords"`
	SavedRecords int    `json:"savedRecords"`
	ErrorLogPath string `json:"errorLogPath,omitempty"`
}

type memoryReport struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Peak  string `json:"peak"`
}

type processSuccess struct {
	Message        string       `json:"message"`
	JobID          uuid.UUID    `json:"jobId"`
	TotalRecords   int          `json:"totalRecords"`
	SavedRecords   int          `json:"savedRecords"`
	ProcessingTime int64        `json:"processingTime"`
	CPUUsage       CPUUsage     `json:"cpuUsage"`
	MemoryUsage    memoryReport `json:"memoryUsage"`
	ErrorLogPath   string       `json:"errorLogPath,omitempty"`
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if r.Body != nil {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
			return
		}
	}

	if strings.TrimSpace(req.FileLocation) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ErrFileLocationRequired.Error()})
		return
	}

	result, err := h.processor.Process(r.Context(), req.FileLocation)
	if err != nil {
		if errors.Is(err, ErrFileLocationRequired) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		logger := middleware.FromRequest(r, h.logger)
		logger.Error().Err(err).Str("file", req.FileLocation).Msg("error processing file")
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Internal server error",
			"message": err.Error(),
		})
		return
	}

	if !result.Success {
		writeJSON(w, http.StatusBadRequest, processFailure{
			Error:        "File processing failed",
			TotalRecords: result.TotalRecords,
			SavedRecords: result.SavedRecords,
			ErrorLogPath: result.ErrorLogPath,
		})
		return
	}

	writeJSON(w, http.StatusOK, processSuccess{
		Message:        "File processed successfully",
		JobID:          result.JobID,
		TotalRecords:   result.TotalRecords,
		SavedRecords:   result.SavedRecords,
		ProcessingTime: result.ProcessingTimeMillis(),
		CPUUsage:       result.CPUUsage,
		MemoryUsage: memoryReport{
			Start: formatMB(result.MemoryUsage.Start),
			End:   formatMB(result.MemoryUsage.End),
			Peak:  formatMB(result.MemoryUsage.Peak),
		},
		ErrorLogPath: result.ErrorLogPath,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"service":   serviceName,
	})
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Data Reader API",
		"version": serviceVersion,
	})
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job history not enabled", http.StatusNotFound)
		return
	}

	limit := parseIntParam(r, "limit", 50)
	offset := parseIntParam(r, "offset", 0)

	jobs, err := h.jobs.List(r.Context(), limit, offset)
	if err != nil {
		logger := middleware.FromRequest(r, h.logger)
		logger.Error().Err(err).Msg("failed to list processing jobs")
		http.Error(w, fmt.Sprintf("failed to list jobs: %v", err), http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []domain.ProcessingJob{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"limit":  limit,
		"offset": offset,
	})
}

type jobDetail struct {
	domain.ProcessingJob
	Errors []domain.IngestionLogEntry `json:"errors"`
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "job history not enabled", http.StatusNotFound)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid job id: %v", err), http.StatusBadRequest)
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		logger := middleware.FromRequest(r, h.logger)
		logger.Error().Err(err).Str("jobId", id.String()).Msg("failed to load processing job")
		http.Error(w, fmt.Sprintf("failed to load job: %v", err), http.StatusInternalServerError)
		return
	}

	detail := jobDetail{ProcessingJob: job, Errors: []domain.IngestionLogEntry{}}
	if h.logs != nil {
		entries, err := h.logs.ListByJob(r.Context(), id, parseIntParam(r, "limit", 500), parseIntParam(r, "offset", 0))
		if err != nil {
			logger := middleware.FromRequest(r, h.logger)
			logger.Error().Err(err).Str("jobId", id.String()).Msg("failed to load ingestion logs")
			http.Error(w, fmt.Sprintf("failed to load job errors: %v", err), http.StatusInternalServerError)
			return
		}
		if entries != nil {
			detail.Errors = entries
		}
	}

	writeJSON(w, http.StatusOK, detail)
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
