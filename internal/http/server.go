// Package http exposes the list views, the limit refresh jobs and the
// Sheets export over a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bilancio/internal/filter"
	applog "bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/poller"
)

// RefreshPublisher mirrors a refresh request onto the event bus. Optional.
type RefreshPublisher interface {
	PublishRefreshRequested(ctx context.Context, budgetID, requestedBy string) error
}

// Deps carries the collaborators the server routes requests to.
type Deps struct {
	Views    map[string]*filter.Controller
	Poller   *poller.Poller
	PollOpts poller.Options
	Exporter Exporter
	Bus      RefreshPublisher
	Logger   *applog.Logger
}

type Server struct {
	http.Server

	views    map[string]*filter.Controller
	poller   *poller.Poller
	pollOpts poller.Options
	exporter Exporter
	bus      RefreshPublisher
	logger   *applog.Logger

	detector    *security.Detector
	rateLimiter *ratelimit.Limiter
	headers     *security.HeadersMiddleware
	tracer      *trace.Middleware

	// jobCtx outlives individual requests so background refresh jobs are
	// not torn down when the triggering request completes.
	jobCtx    context.Context
	jobCancel context.CancelFunc

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	mux := http.NewServeMux()

	detector := security.NewDetector()

	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		views:       deps.Views,
		poller:      deps.Poller,
		pollOpts:    deps.PollOpts,
		exporter:    deps.Exporter,
		bus:         deps.Bus,
		logger:      logger.WithComponent(applog.ComponentHTTP),
		detector:    detector,
		rateLimiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		headers:     security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		tracer:      trace.NewMiddleware(detector.ExtractClientIP),
	}
	s.jobCtx, s.jobCancel = context.WithCancel(context.Background())

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.Handle("GET /views/{view}", s.chain(http.HandlerFunc(s.handleViewState), false))
	mux.Handle("POST /views/{view}/filter", s.chain(http.HandlerFunc(s.handleFilter), true))
	mux.Handle("POST /views/{view}/more", s.chain(http.HandlerFunc(s.handleLoadMore), true))
	mux.Handle("POST /views/{view}/export", s.chain(http.HandlerFunc(s.handleExport), true))

	mux.Handle("POST /budgets/{id}/limits/refresh", s.chain(http.HandlerFunc(s.handleRefresh), true))

	return s
}

// chain applies the shared middleware stack. Rate limiting only guards the
// mutating routes, matching the 60 req/min per client policy.
func (s *Server) chain(h http.Handler, limited bool) http.Handler {
	if limited {
		h = s.rateLimiter.Middleware(s.detector.ExtractClientIP, nil)(h)
	}
	h = s.suspicionLog(h)
	h = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(h)
	h = applog.Middleware(s.logger)(h)
	h = s.tracer.Middleware(h)
	h = s.headers.Middleware(h)
	return h
}

// suspicionLog records requests matching known probe patterns. It never
// blocks: detection feeds metrics and logs only.
func (s *Server) suspicionLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request detected",
				applog.FieldPath, r.URL.Path,
				applog.FieldClientIP, s.detector.ExtractClientIP(r))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown tears down background refresh jobs and cleanup goroutines, then
// stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.jobCancel()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
