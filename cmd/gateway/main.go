package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/bebras-platform/bebras-lms/internal/api/http"
	"github.com/bebras-platform/bebras-lms/internal/assign"
	auth "github.com/bebras-platform/bebras-lms/internal/auth/middleware"
	"github.com/bebras-platform/bebras-lms/internal/config"
	"github.com/bebras-platform/bebras-lms/internal/db"
	"github.com/bebras-platform/bebras-lms/internal/notify"
	"github.com/bebras-platform/bebras-lms/internal/quiz"
	"github.com/bebras-platform/bebras-lms/internal/rbac"
	"github.com/bebras-platform/bebras-lms/internal/storage"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := quiz.NewSQLStore(dbh, cfg.DBDriver)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.JWTSecret)
	bootstrap := auth.BootstrapAdmin{Username: cfg.AdminUser, PassHash: cfg.AdminPassHash}

	// --- Mail ---
	var notifier notify.Notifier = notify.Nop{}
	if cfg.MailEnabled() {
		notifier = notify.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	}
	assigner := assign.NewService(store, assign.NewSQLDirectory(dbh), notifier)

	// --- Blobs ---
	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh, bootstrap))

	// Protected API (JWT → DB role → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))
		pr.Use(auth.AttachRoleFromDB(dbh, true))

		pr.Route("/assets", func(ar chi.Router) {
			api.MountAssets(ar, bs)
		})

		// Question bank (authoring roles)
		pr.With(rbac.Require("question:create")).
			Post("/questions", api.CreateQuestionHandler(store))
		pr.With(rbac.Require("question:view")).
			Get("/questions", api.ListQuestionsHandler(store))
		pr.With(rbac.Require("question:view")).
			Get("/questions/{questionID}", api.GetQuestionHandler(store))
		pr.With(rbac.Require("question:create")).
			Post("/questions/{questionID}/image", api.UploadQuestionImageHandler(store, dbh, bs))

		// Tests
		pr.With(rbac.Require("test:create")).
			Post("/tests", api.CreateTestHandler(store))
		pr.With(rbac.Require("test:create")).
			Post("/tests/auto", api.AutoCreateTestHandler(store))
		pr.With(rbac.Require("test:view")).
			Get("/tests", api.ListTestsHandler(store))
		pr.With(rbac.Require("test:view")).
			Get("/tests/{testID}", api.GetTestHandler(store))
		pr.With(rbac.Require("test:assign")).
			Post("/tests/{testID}/assign", api.AssignTestHandler(assigner))
		pr.With(rbac.Require("attempt:view-all")).
			Get("/tests/{testID}/stats", api.TestStatsHandler(store))

		// Test taking
		pr.With(rbac.Require("attempt:create")).
			Post("/attempts", api.BeginAttemptHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}/state", api.AttemptStateHandler(store))
		pr.With(rbac.Require("attempt:answer")).
			Post("/attempts/{attemptID}/answer", api.SubmitAnswerHandler(store))
		pr.With(rbac.Require("attempt:answer")).
			Post("/attempts/{attemptID}/previous", api.PreviousQuestionHandler(store))
		pr.With(rbac.RequireAny("attempt:answer", "attempt:finish-any")).
			Post("/attempts/{attemptID}/finish", api.FinishAttemptHandler(store))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts/{attemptID}/review", api.ReviewHandler(store))

		// Manual grading
		pr.With(rbac.Require("attempt:grade")).
			Get("/attempts/{attemptID}/grading", api.AttemptGradingHandler(store))
		pr.With(rbac.Require("attempt:grade")).
			Post("/attempts/{attemptID}/grading", api.ApplyGradesHandler(store))
		pr.With(rbac.Require("attempt:grade")).
			Delete("/answers/{answerID}/grade", api.ClearManualGradeHandler(store))

		// Groups and roster
		pr.With(rbac.Require("groups:view")).
			Get("/groups", api.ListGroupsHandler(dbh))
		pr.With(rbac.Require("groups:view")).
			Get("/groups/{groupID}", api.GroupDetailHandler(dbh))
		pr.With(rbac.Require("users:bulk_upsert")).
			Post("/users/import", api.ImportUsersHandler(dbh))
		pr.With(rbac.Require("users:list")).
			Get("/users", api.ListUsersHandler(dbh))
		pr.With(rbac.Require("user:change_password")).
			Post("/users/me/password", api.ChangePasswordHandler(dbh))

		// Reports
		pr.With(rbac.Require("export:attempts")).
			Get("/export/attempts.xlsx", api.ExportAttemptsHandler(dbh))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	log.Printf("listening on %s (db=%s, mail=%v)", cfg.HTTPAddr, cfg.DBDriver, cfg.MailEnabled())
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
