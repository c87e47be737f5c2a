package http

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"struk/internal/auth"
	"struk/internal/core"
	"struk/internal/export"
	"struk/internal/ingest"
	"struk/internal/log"
	"struk/internal/middleware/ratelimit"
	"struk/internal/middleware/security"
	"struk/internal/middleware/trace"
	"struk/internal/services"
)

// DraftIngester turns an uploaded image into an unsaved draft.
type DraftIngester interface {
	Ingest(ctx context.Context, image io.Reader) (*ingest.Draft, error)
}

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// Deps holds everything the handlers call into.
type Deps struct {
	Receipts  *services.ReceiptStore
	Profiles  *services.ProfileService
	Dashboard *services.DashboardService
	Insights  *services.InsightService
	Drafts    DraftIngester
	Export    *export.Service

	Verifier       *auth.Verifier
	LoginLimiter   *ratelimit.Limiter
	RequestLimiter *ratelimit.Limiter // nil disables request limiting
	Detector       *security.Detector
	Headers        security.HeadersConfig

	Checks []ReadinessCheck
	Logger *log.Logger

	// MaxUploadBytes caps multipart draft uploads (default: 10 MiB)
	MaxUploadBytes int64
	Now            func() time.Time
}

type Server struct {
	http.Server
	deps   Deps
	logger *log.Logger
	tracer *trace.Middleware

	shutdownOnce sync.Once
	onShutdown   []func()
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Detector == nil {
		deps.Detector = security.NewDetector()
	}
	if deps.Headers == (security.HeadersConfig{}) {
		deps.Headers = security.DefaultHeadersConfig()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 10 << 20
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Server{
		deps:   deps,
		logger: deps.Logger.WithComponent(log.ComponentHTTP),
	}
	s.tracer = trace.NewMiddleware(s.logger, deps.Detector.ExtractClientIP)
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.tracer.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(s.deps.Headers).Middleware)
	r.Use(s.deps.Detector.Middleware(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, core.NotFoundf("route %s", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{
			Kind:    "method_not_allowed",
			Message: r.Method + " is not allowed on " + r.URL.Path,
		}})
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login-attempt", s.handleLoginAttempt)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.deps.Verifier, writeError))

			r.Get("/receipts", s.handleListReceipts)
			r.Get("/receipts/export", s.handleExportReceipts)
			r.Get("/receipts/{id}", s.handleGetReceipt)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/profile", s.handleGetProfile)

			r.Group(func(r chi.Router) {
				if s.deps.RequestLimiter != nil {
					r.Use(s.deps.RequestLimiter.Middleware(s.deps.Detector.ExtractClientIP, writeRateLimited))
				}
				r.Post("/receipt-drafts", s.handleCreateDraft)
				r.Post("/receipts", s.handleCreateReceipt)
				r.Put("/receipts/{id}", s.handleUpdateReceipt)
				r.Delete("/receipts/{id}", s.handleDeleteReceipt)
				r.Post("/insights", s.handleInsights)
				r.Put("/profile", s.handleSaveProfile)
			})
		})
	})
	return r
}

// OnShutdown registers fn to run once when the server shuts down.
func (s *Server) OnShutdown(fn func()) {
	s.onShutdown = append(s.onShutdown, fn)
}

// Stats are the request counters kept since the server started.
type Stats struct {
	Requests           trace.Metrics
	SuspiciousRequests int64
	LoginLimiter       ratelimit.Metrics
	RequestLimiter     ratelimit.Metrics
}

func (s *Server) Stats() Stats {
	st := Stats{
		Requests:           s.tracer.GetMetrics(),
		SuspiciousRequests: s.deps.Detector.GetMetrics().SuspiciousRequests,
	}
	if s.deps.LoginLimiter != nil {
		st.LoginLimiter = s.deps.LoginLimiter.GetMetrics()
	}
	if s.deps.RequestLimiter != nil {
		st.RequestLimiter = s.deps.RequestLimiter.GetMetrics()
	}
	return st
}

// Shutdown gracefully shuts down the server, logs its stats and runs the
// shutdown hooks.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
		st := s.Stats()
		s.logger.InfoContext(ctx, "HTTP server stats",
			log.FieldOperation, log.OpShutdown,
			"total_requests", st.Requests.TotalRequests,
			"server_errors", st.Requests.ServerErrors,
			"suspicious_requests", st.SuspiciousRequests,
			"login_throttled", st.LoginLimiter.TotalHits,
			"login_fail_open", st.LoginLimiter.FailOpenCount,
			"requests_throttled", st.RequestLimiter.TotalHits,
			"requests_fail_open", st.RequestLimiter.FailOpenCount)
		for _, fn := range s.onShutdown {
			fn()
		}
	})
	return shutdownErr
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, d ratelimit.Decision) {
	writeError(w, r, &core.ThrottledError{RetryAfter: d.RetryAfter})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, c := range s.deps.Checks {
		if err := c.Ping(ctx); err != nil {
			failed[c.Name] = err.Error()
			s.logger.WarnContext(ctx, "Readiness check failed", "check", c.Name, log.FieldError, err)
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
