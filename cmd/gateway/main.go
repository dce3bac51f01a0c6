package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	api "github.com/campuscore/campuscore-sis/internal/api/http"
	"github.com/campuscore/campuscore-sis/internal/assessment"
	auth "github.com/campuscore/campuscore-sis/internal/auth/middleware"
	"github.com/campuscore/campuscore-sis/internal/config"
	"github.com/campuscore/campuscore-sis/internal/db"
	"github.com/campuscore/campuscore-sis/internal/grading"
	"github.com/campuscore/campuscore-sis/internal/notify"
	"github.com/campuscore/campuscore-sis/internal/rbac"
	"github.com/campuscore/campuscore-sis/internal/storage"
)

func main() {
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}

	opts := []assessment.StoreOption{
		assessment.WithSink(notify.NewEventLog(dbh)),
	}
	if cfg.GradeScaleJSON != "" {
		var scale grading.Scale
		if err := json.Unmarshal([]byte(cfg.GradeScaleJSON), &scale); err != nil {
			log.Fatalf("bad GRADE_SCALE_JSON: %v", err)
		}
		opts = append(opts, assessment.WithScale(scale))
	}
	store := assessment.NewSQLStore(dbh, cfg.DBDriver, opts...)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthSecret)

	// --- Abandonment sweep ---
	go assessment.RunSweeper(context.Background(), store, cfg.SweepInterval)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, dbh))

	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		log.Fatalf("blob store: %v", err)
	}

	// Protected API (JWT → subject+role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.Route("/api/v1", func(vr chi.Router) {
			// Test catalog
			vr.With(rbac.Require("test:create")).Post("/tests", api.CreateTestHandler(store))
			vr.With(rbac.Require("test:view")).Get("/tests", api.ListTestsHandler(store))
			vr.With(rbac.Require("test:view")).Get("/tests/{testID}", api.GetTestHandler(store))
			vr.With(rbac.Require("test:edit")).Patch("/tests/{testID}", api.UpdateTestHandler(store))
			vr.With(rbac.Require("test:delete")).Delete("/tests/{testID}", api.DeleteTestHandler(store))
			vr.With(rbac.Require("test:create")).Post("/tests/{testID}/duplicate", api.DuplicateTestHandler(store))
			vr.With(rbac.Require("test:publish")).Post("/tests/{testID}/publish", api.PublishTestHandler(store))
			vr.With(rbac.Require("test:publish")).Post("/tests/{testID}/unpublish", api.UnpublishTestHandler(store))

			// Question bank
			vr.With(rbac.Require("question:edit")).Post("/tests/{testID}/questions", api.AddQuestionHandler(store))
			vr.With(rbac.Require("question:edit")).Put("/tests/{testID}/questions/order", api.ReorderQuestionsHandler(store))
			vr.With(rbac.Require("question:edit")).Patch("/tests/{testID}/questions/{questionID}", api.UpdateQuestionHandler(store))
			vr.With(rbac.Require("question:edit")).Delete("/tests/{testID}/questions/{questionID}", api.RemoveQuestionHandler(store))
			vr.With(rbac.Require("question:edit")).Post("/tests/{testID}/questions/{questionID}/duplicate", api.DuplicateQuestionHandler(store))
			vr.With(rbac.Require("question:edit")).Post("/tests/{testID}/questions/{questionID}/options", api.AddOptionHandler(store))
			vr.With(rbac.Require("question:edit")).Patch("/tests/{testID}/options/{optionID}", api.UpdateOptionHandler(store))
			vr.With(rbac.Require("question:edit")).Delete("/tests/{testID}/options/{optionID}", api.RemoveOptionHandler(store))

			// Attempt lifecycle
			vr.With(rbac.Require("attempt:create")).Post("/attempts", api.StartAttemptHandler(store))
			vr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/attempts", api.ListAttemptsHandler(store))
			vr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).Get("/attempts/{attemptID}", api.GetAttemptHandler(store))
			vr.With(rbac.Require("attempt:save")).Put("/attempts/{attemptID}/answers/{questionID}", api.RecordAnswerHandler(store))
			vr.With(rbac.Require("attempt:submit")).Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(store))

			// Grading reconciler
			vr.With(rbac.Require("attempt:grade")).Post("/attempts/{attemptID}/grades", api.ApplyManualGradesHandler(store))
			vr.With(rbac.Require("attempt:grade")).Get("/grading/pending", api.PendingGradingHandler(store))

			// Users
			vr.With(rbac.Require("users:bulk_upsert")).Post("/users/bulk", api.BulkUpsertUsersHandler(dbh))
			vr.With(rbac.Require("users:list")).Get("/users", api.ListUsersHandler(dbh))
			vr.With(rbac.Require("user:change_password")).Post("/users/change-password", api.ChangePasswordHandler(dbh))
		})

		pr.Route("/assets", func(ar chi.Router) {
			api.MountAssets(ar, bs)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbh.PingContext(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	})

	log.Printf("listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
