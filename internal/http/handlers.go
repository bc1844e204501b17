package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/climate-api/internal/dataset"
	"github.com/kjstillabower/climate-api/internal/lifecycle"
	"github.com/kjstillabower/climate-api/internal/models"
	"github.com/kjstillabower/climate-api/internal/observability"
	"github.com/kjstillabower/climate-api/internal/traffic"
	"github.com/kjstillabower/climate-api/internal/validation"
)

// Querier answers the climate queries. Implemented by *query.Engine.
type Querier interface {
	PrecipitationSeries(ctx context.Context) ([]models.PrecipitationReading, error)
	StationList(ctx context.Context) ([]string, error)
	TrailingYearTemperatures(ctx context.Context) ([]models.TemperatureObservation, error)
	TemperatureSummary(ctx context.Context, start string, end *string) (models.TemperatureSummary, error)
}

// Pinger reports dataset reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int // 0 when rate limiter disabled
	DegradedWindow       time.Duration
	DegradedErrorPct     int
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	queries          Querier
	dataset          Pinger
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. dataset may be nil, in which case the
// health check skips the ping.
func NewHandler(queries Querier, dataset Pinger, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		queries:      queries,
		dataset:      dataset,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// Home handles GET /. Lists the query endpoints as plain text.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	var b strings.Builder
	b.WriteString("available endpoints:\n")
	for _, rt := range h.Routes() {
		if rt.Query {
			b.WriteString(rt.Path)
			b.WriteByte('\n')
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.String()))
}

// GetPrecipitation handles GET /api/v1.0/precipitation.
func (h *Handler) GetPrecipitation(w http.ResponseWriter, r *http.Request) {
	readings, err := h.queries.PrecipitationSeries(r.Context())
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, readings)
}

// GetStations handles GET /api/v1.0/stations.
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	ids, err := h.queries.StationList(r.Context())
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, ids)
}

// GetTemperatureObservations handles GET /api/v1.0/tobs.
func (h *Handler) GetTemperatureObservations(w http.ResponseWriter, r *http.Request) {
	obs, err := h.queries.TrailingYearTemperatures(r.Context())
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, obs)
}

// GetStartSummary handles GET /api/v1.0/{start}.
func (h *Handler) GetStartSummary(w http.ResponseWriter, r *http.Request) {
	start := mux.Vars(r)["start"]
	summary, err := h.queries.TemperatureSummary(r.Context(), start, nil)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, models.StartSummaryResponse{
		Date: summary.Start,
		TMin: summary.TMin,
		TAvg: summary.TAvg,
		TMax: summary.TMax,
	})
}

// GetRangeSummary handles GET /api/v1.0/{start}/{end}.
func (h *Handler) GetRangeSummary(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	end := vars["end"]
	summary, err := h.queries.TemperatureSummary(r.Context(), vars["start"], &end)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, models.RangeSummaryResponse{
		DateRange: summary.Start + " - " + summary.End,
		TMin:      summary.TMin,
		TAvg:      summary.TAvg,
		TMax:      summary.TMax,
	})
}

// NotFound is the router's fallback for unknown paths.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no route for "+r.URL.Path)
}

// MethodNotAllowed is the router's fallback for known paths with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodGet)
	writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" is not allowed")
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result, datasetErr := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"dataset": "healthy"}
	if datasetErr != nil {
		checks["dataset"] = "unhealthy"
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "climate-api",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > dataset unreachable > overloaded > degraded > healthy.
// The dataset ping error is returned for the checks map.
func (h *Handler) computeHealthStatus(ctx context.Context) (healthResult, error) {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}, nil
	}
	if h.dataset != nil {
		if err := h.dataset.Ping(ctx); err != nil {
			return healthResult{"degraded", http.StatusServiceUnavailable, "dataset_unreachable"}, err
		}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}, nil
	}
	// Overload: requests in window exceed pct of what the limiter admits.
	if h.healthConfig.RateLimitRPS > 0 && h.healthConfig.OverloadWindow > 0 {
		threshold := float64(h.healthConfig.RateLimitRPS) * h.healthConfig.OverloadWindow.Seconds() * float64(h.healthConfig.OverloadThresholdPct) / 100
		if float64(traffic.RequestCount(h.healthConfig.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}, nil
		}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}, nil
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}, nil
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationIDFromContext(r.Context()),
		},
	})
}

// writeQueryError maps a query engine error to a status and error code, and
// records the outcome for health. Client errors are logged at debug level;
// the engine has already logged storage failures.
func writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	switch {
	case errors.Is(err, validation.ErrInvalidRange):
		traffic.RecordSuccess()
		logger.Debug("invalid range", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, "INVALID_RANGE", clientMessage(err, validation.ErrInvalidRange))
	case errors.Is(err, validation.ErrInvalidDate):
		traffic.RecordSuccess()
		logger.Debug("invalid date", zap.Error(err))
		writeError(w, r, http.StatusBadRequest, "INVALID_DATE", clientMessage(err, validation.ErrInvalidDate))
	case errors.Is(err, dataset.ErrEmptyDataset):
		traffic.RecordSuccess()
		writeError(w, r, http.StatusNotFound, "NO_DATA", "the dataset has no measurements")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the body.
		logger.Debug("request canceled", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "request canceled")
	default:
		traffic.RecordError()
		writeError(w, r, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Unable to read climate data")
	}
}

// clientMessage trims err's text to start at sentinel, dropping operation prefixes.
func clientMessage(err, sentinel error) string {
	msg := err.Error()
	if _, after, ok := strings.Cut(msg, sentinel.Error()); ok {
		return sentinel.Error() + after
	}
	return msg
}
