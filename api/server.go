/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind the load balancer
  3. Logger:     zerolog request logging (method, path, status, duration)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /health, /metrics        Unauthenticated
  /api/*                   Authenticated (auth.go)
  /api/admin/*             Admin only, rate-limited uploads
  /api/feed                Websocket change feed
  /api/scenarios/*         Demo data (dev auth only)

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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", DevUserHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Get("/me", h.Me)

		r.Route("/weeks", func(r chi.Router) {
			r.Get("/", h.ListWeeks)
			r.Get("/current", h.CurrentWeek)
			r.Get("/{week}/dataset", h.WeekDataset)
			r.With(requireAdmin).Post("/{week}/status", h.SetWeekStatus)
		})

		r.Route("/submissions", func(r chi.Router) {
			r.Get("/", h.ListSubmissions)
			r.Get("/export", h.ExportSubmissions)
			r.Post("/", h.SubmitWeek)
		})

		r.Route("/amendments", func(r chi.Router) {
			r.Get("/", h.ListAmendments)
			r.Post("/", h.SaveAmendment)
			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/{id}/approve", h.ApproveAmendment)
				r.Post("/{id}/reject", h.RejectAmendment)
				r.Post("/{id}/modify", h.ModifyAmendment)
			})
		})

		r.Get("/stores", h.ListStores)
		r.Get("/hierarchy", h.ListHierarchy)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/stores-upload", h.UploadStores)
			r.Post("/categories-upload", h.UploadCategories)
			r.Post("/allocations-upload", h.UploadAllocations)
			r.Post("/hierarchy-upload", h.UploadHierarchy)
		})

		if h.scenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/", h.ListScenarios)
				r.Post("/load", h.LoadScenario)
			})
		}

		if h.Feed != nil {
			r.Get("/feed", h.Feed.ServeWS)
		}
	})

	return r
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				ev := log.Info()
				if status >= http.StatusInternalServerError {
					ev = log.Error()
				}
				ev.Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
