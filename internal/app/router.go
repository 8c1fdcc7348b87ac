package app

import (
	"database/sql"
	"net/http"
	"time"

	"aulalms/internal/app/observability"
	"aulalms/internal/auth"
	"aulalms/internal/course"
	"aulalms/internal/grading"
	"aulalms/internal/question"
	"aulalms/internal/quiz"
	"aulalms/internal/report"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg Config, db *sql.DB) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(db)
	r.Use(collector.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authSvc := auth.NewService(db, auth.ServiceConfig{
		SessionTTL: time.Duration(cfg.SessionTTLHours) * time.Hour,
	})
	authHandler := auth.NewHandler(authSvc)

	courseSvc := course.NewService(db)

	quizSvc := quiz.NewService(db, courseSvc)
	quizHandler := quiz.NewHandler(quizSvc)

	gradingSvc := grading.NewService(db)
	gradingHandler := grading.NewHandler(gradingSvc)

	questionSvc := question.NewService(db, courseSvc)
	questionHandler := question.NewHandler(questionSvc)

	reportSvc := report.NewService(db)
	reportHandler := report.NewHandler(reportSvc)

	authLimiter := NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Group(func(public chi.Router) {
			public.Use(RateLimitMiddleware(authLimiter))
			public.Post("/auth/login", authHandler.Login)
		})

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)
			secure.Post("/auth/logout", authHandler.Logout)

			secure.Get("/quizzes/{id}", quizHandler.GetQuiz)
			secure.Post("/quizzes/{id}/submit", quizHandler.Submit)
			secure.Post("/quizzes/{id}/expire", quizHandler.Expire)
			secure.Get("/results/{id}", quizHandler.GetResult)

			secure.Group(func(grader chi.Router) {
				grader.Use(authHandler.RequireRoles(auth.RoleProfessor, auth.RoleAdmin))

				grader.Get("/quizzes/{id}/results", quizHandler.ListResults)
				grader.Post("/results/{id}/grade", gradingHandler.Grade)

				grader.Post("/quizzes", questionHandler.CreateQuiz)
				grader.Put("/quizzes/{id}", questionHandler.UpdateQuiz)
				grader.Delete("/quizzes/{id}", questionHandler.DeleteQuiz)
				grader.Get("/quizzes/{id}/questions", questionHandler.ListQuestions)
				grader.Post("/quizzes/{id}/questions", questionHandler.AddQuestion)
				grader.Put("/questions/{questionID}", questionHandler.UpdateQuestion)
				grader.Delete("/questions/{questionID}", questionHandler.DeleteQuestion)

				grader.Get("/quizzes/{id}/report", reportHandler.Summary)
				grader.Get("/quizzes/{id}/report/export", reportHandler.ExportResults)
			})
		})
	})

	return r
}
