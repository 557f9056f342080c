package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/reado/reado-server/config"
	"github.com/reado/reado-server/handlers"
	"github.com/reado/reado-server/middleware"
	"github.com/reado/reado-server/service"
	"github.com/reado/reado-server/store"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := store.NewMongoDB(ctx, cfg.MongoURI, cfg.DBName)
	if err != nil {
		logger.Error("mongodb", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Disconnect(context.Background()); err != nil {
			logger.Warn("mongodb disconnect", "error", err)
		}
	}()

	perspective := service.NewPerspectiveClient(cfg.PerspectiveAPIKey, logger)
	if cfg.PerspectiveAPIKey == "" {
		logger.Warn("PERSPECTIVE_API_KEY not set; comments will not be screened for toxicity")
	}
	spoiler := service.NewSpoilerClient(cfg.OpenRouterAPIKey, logger)
	if cfg.OpenRouterAPIKey == "" {
		logger.Warn("OPENROUTER_API_KEY not set; spoiler classification disabled")
	}

	commentsHandler := &handlers.CommentsHandler{
		Comments:    db,
		Users:       db,
		Perspective: perspective,
		Spoiler:     spoiler,
		Logger:      logger,
	}
	usersHandler := &handlers.UsersHandler{Users: db}
	authHandler := &handlers.AuthHandler{
		Users: db,
		OAuth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     google.Endpoint,
		},
		JWTSecret:   cfg.JWTSecret,
		FrontendURL: cfg.FrontendURL,
		EncKey:      cfg.TokenEncryptionKey,
		Logger:      logger,
	}
	booksHandler := &handlers.BooksHandler{Logger: logger}
	healthHandler := &handlers.HealthHandler{DB: db}

	metrics := middleware.NewMetricsCollector(logger)
	admission := middleware.NewAdmissionGate(cfg.MaxConcurrent)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.CORSOrigin},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	// Pipeline order is fixed: metrics wraps admission wraps timeout wraps
	// dispatch, so rejected and timed-out requests are still counted and
	// every admitted request releases its slot exactly once.
	r.Use(metrics.Middleware)
	r.Use(admission.Middleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(chimw.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"reado api"}`))
	})
	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/comments", func(r chi.Router) {
		r.Post("/", commentsHandler.Create)
		r.Get("/", commentsHandler.List)
		r.Patch("/{id}/like", commentsHandler.Like)
		r.Patch("/{id}/dislike", commentsHandler.Dislike)
		r.Get("/{id}/vote-status", commentsHandler.VoteStatus)
		r.Delete("/{id}", commentsHandler.Delete)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/auth/google", authHandler.Login)
		r.Get("/auth/google/callback", authHandler.Callback)
		r.Post("/auth/google", usersHandler.GoogleUpsert)
		r.Get("/{userId}", usersHandler.Get)
		r.Post("/batch", usersHandler.Batch)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Post("/{userId}/bookmarks", usersHandler.AddBookmark)
			r.Get("/{userId}/bookmarks", usersHandler.GetBookmarks)
		})
	})

	r.Get("/books/search", booksHandler.Search)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		logger.Info("server listening", "port", cfg.Port,
			"max_concurrent", cfg.MaxConcurrent, "request_timeout", cfg.RequestTimeout.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
	// Let in-flight spoiler classifications land before the process exits.
	classifierDone := make(chan struct{})
	go func() {
		commentsHandler.WaitBackground()
		close(classifierDone)
	}()
	select {
	case <-classifierDone:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown with classification tasks still pending")
	}
}
