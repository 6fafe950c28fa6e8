package app

import (
	"database/sql"
	"net/http"
	"time"

	"testprep/internal/app/observability"
	"testprep/internal/auth"
	"testprep/internal/question"
	"testprep/internal/report"
	"testprep/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the HTTP surface. The session service is built by the
// caller so the sweeper and the handlers share one instance and one
// retention/expiry configuration.
func NewRouter(cfg Config, conn *sql.DB, sessionSvc *session.Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(conn)
	r.Use(collector.Middleware)
	r.Use(RateLimitMiddleware(NewIPRateLimiter(cfg.RateLimitPerMin, time.Minute)))
	r.Use(CSRFMiddleware(cfg.CSRFEnforced))

	verifier := auth.NewVerifier(cfg.AuthSecret, time.Duration(cfg.AuthTokenTTLHours)*time.Hour)

	questionSvc := question.NewService(conn)
	questionHandler := question.NewHandler(questionSvc)

	sessionHandler := session.NewHandler(sessionSvc)

	reportSvc := report.NewService(conn)
	reportHandler := report.NewHandler(reportSvc)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(secure chi.Router) {
			secure.Use(verifier.RequireAuth)

			secure.Get("/tests/topics", questionHandler.Topics)
			secure.Post("/tests/configure", sessionHandler.ValidateConfig)
			secure.Post("/tests/start", sessionHandler.Start)

			secure.Get("/tests/session", sessionHandler.GetActive)
			secure.Delete("/tests/session", sessionHandler.Abandon)
			secure.Put("/tests/session/{id}/answer", sessionHandler.SaveAnswer)
			secure.Post("/tests/session/{id}/mark-review", sessionHandler.ToggleMark)
			secure.Post("/tests/session/{id}/extend", sessionHandler.ExtendTime)
			secure.Post("/tests/session/{id}/submit", sessionHandler.Submit)

			secure.Get("/tests/history", reportHandler.History)
			secure.Get("/tests/history/export", reportHandler.ExportHistory)
			secure.Get("/tests/summary", reportHandler.Summary)
			secure.Get("/tests/{id}", reportHandler.GetTest)

			secure.Group(func(admin chi.Router) {
				admin.Use(auth.RequireRoles("admin"))
				admin.Get("/admin/questions", questionHandler.List)
				admin.Post("/admin/questions", questionHandler.Create)
				admin.Get("/admin/questions/export", questionHandler.ExportExcel)
				admin.Post("/admin/questions/import", questionHandler.BulkImport)
				admin.Post("/admin/questions/import-excel", questionHandler.ImportExcel)
				admin.Get("/admin/questions/{id}", questionHandler.Get)
				admin.Put("/admin/questions/{id}", questionHandler.Update)
				admin.Delete("/admin/questions/{id}", questionHandler.Delete)
			})
		})
	})

	return r
}
