/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table. This
  is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontends
  5. Tenant:     Per route group; resolves tenant.Context (auth.go)

ROUTE GROUPS:
  /healthz              Liveness, unauthenticated
  /api/v1/tenants/*     Tenant provisioning (admin token)
  /api/v1/*             Tenant-scoped operations

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type RouterOptions struct {
	JWTSecret      string
	AdminToken     string
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderTenantID, HeaderActorID},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(AdminMiddleware(opts.AdminToken))
			r.Post("/tenants", h.CreateTenant)
			r.Put("/tenants/{id}/status", h.SetTenantStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(TenantMiddleware(h.Gate, opts.JWTSecret, logger))

			r.Route("/employees/{employeeID}", func(r chi.Router) {
				r.Get("/job", h.ResolveJob)
				r.Post("/job", h.RecordJobChange)
				r.Get("/job/current", h.CurrentJob)
				r.Get("/job/history", h.JobHistory)

				r.Get("/balances", h.ListBalances)
				r.Get("/balances/{leaveTypeID}", h.GetBalance)
				r.Get("/balances/{leaveTypeID}/journal", h.BalanceJournal)

				r.Get("/leave-requests", h.ListLeaveRequests)
				r.Post("/leave-requests", h.SubmitLeaveRequest)
			})

			r.Route("/jobs/{id}", func(r chi.Router) {
				r.Post("/void", h.VoidJob)
				r.Post("/correct", h.CorrectJob)
			})

			r.Route("/leave-types", func(r chi.Router) {
				r.Get("/", h.ListLeaveTypes)
				r.Post("/", h.CreateLeaveType)
			})

			r.Route("/leave-requests/{id}", func(r chi.Router) {
				r.Get("/", h.GetLeaveRequest)
				r.Post("/approve", h.ApproveLeaveRequest)
				r.Post("/reject", h.RejectLeaveRequest)
				r.Post("/cancel", h.CancelLeaveRequest)
			})

			r.Post("/admin/rollover", h.TriggerRollover)
		})
	})

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
