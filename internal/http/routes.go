package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/climate-api/internal/observability"
)

// Route is one entry of the route table. Query routes read the dataset and
// are wrapped with the rate limiter and request timeout.
type Route struct {
	Name    string
	Method  string
	Path    string
	Handler http.HandlerFunc
	Query   bool
}

// Routes returns the route table in registration order. Fixed API paths come
// before the {start} patterns, which would otherwise match them.
func (h *Handler) Routes() []Route {
	return []Route{
		{Name: "home", Method: http.MethodGet, Path: "/", Handler: h.Home},
		{Name: "precipitation", Method: http.MethodGet, Path: "/api/v1.0/precipitation", Handler: h.GetPrecipitation, Query: true},
		{Name: "stations", Method: http.MethodGet, Path: "/api/v1.0/stations", Handler: h.GetStations, Query: true},
		{Name: "tobs", Method: http.MethodGet, Path: "/api/v1.0/tobs", Handler: h.GetTemperatureObservations, Query: true},
		{Name: "start_summary", Method: http.MethodGet, Path: "/api/v1.0/{start}", Handler: h.GetStartSummary, Query: true},
		{Name: "range_summary", Method: http.MethodGet, Path: "/api/v1.0/{start}/{end}", Handler: h.GetRangeSummary, Query: true},
		{Name: "health", Method: http.MethodGet, Path: "/health", Handler: h.GetHealth},
	}
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// Limiter guards query routes; nil disables rate limiting.
	Limiter *rate.Limiter
	// RequestTimeout bounds query routes; zero disables the deadline.
	RequestTimeout time.Duration
}

// NewRouter registers the route table plus /metrics. Correlation IDs and
// request metrics apply to every response, including 404 and 405.
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	correlation := CorrelationIDMiddleware(h.logger)
	router.Use(correlation)
	router.Use(MetricsMiddleware)

	rateLimit := RateLimitMiddleware(opts.Limiter)
	for _, rt := range h.Routes() {
		var handler http.Handler = rt.Handler
		if rt.Query {
			if opts.RequestTimeout > 0 {
				handler = TimeoutMiddleware(opts.RequestTimeout)(handler)
			}
			handler = rateLimit(handler)
		}
		router.Handle(rt.Path, handler).Methods(rt.Method).Name(rt.Name)
	}
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet).Name("metrics")

	router.NotFoundHandler = correlation(MetricsMiddleware(http.HandlerFunc(h.NotFound)))
	router.MethodNotAllowedHandler = correlation(MetricsMiddleware(http.HandlerFunc(h.MethodNotAllowed)))
	return router
}
