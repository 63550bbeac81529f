package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/crossorg/migrator/internal/api"
	"github.com/crossorg/migrator/internal/config"
	"github.com/crossorg/migrator/internal/db"
	"github.com/crossorg/migrator/internal/domain"
	"github.com/crossorg/migrator/internal/export"
	"github.com/crossorg/migrator/internal/middleware"
	"github.com/crossorg/migrator/internal/migration"
	"github.com/crossorg/migrator/internal/remote"
	"github.com/crossorg/migrator/internal/repository"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(conn.Pool, "./migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	projectRepo := repository.NewProjectRepository(conn)
	sessionRepo := repository.NewSessionRepository(conn)

	tracker := migration.NewTracker(sessionRepo)
	registry := migration.NewTemplateRegistryWithPolicy(domain.RetryPolicy{
		MaxRetries:     cfg.Engine.MaxRetries,
		Wait:           cfg.Engine.RetryWait,
		RetryableCodes: migration.DefaultRetryableCodes,
	})

	// Each org gets its own rate-limited data API client. Tokens come from
	// MIGRATOR_TOKEN_<ORG_NAME>, falling back to MIGRATOR_ACCESS_TOKEN.
	clientFactory := func(org domain.OrgConnection) remote.Client {
		rest := remote.NewRESTClient(remote.RESTConfig{
			InstanceURL: org.InstanceURL,
			AccessToken: orgToken(org.Name),
		})
		return remote.NewLimitedClient(rest, cfg.Engine.RequestsPerSecond, cfg.Engine.RateBurst)
	}

	engine := migration.NewEngine(registry, tracker, clientFactory, migration.Defaults{
		BatchSize:     cfg.Engine.BatchSize,
		BulkThreshold: cfg.Engine.BulkThreshold,
	})

	reportService := export.NewService(projectRepo, sessionRepo)
	migrationHandler := api.NewHTTPHandler(projectRepo, sessionRepo, engine, reportService)

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	mux := http.NewServeMux()
	mux.Handle("/api/migrations", corsHandler.Handler(middleware.LoggingMiddleware(migrationHandler)))
	mux.Handle("/api/migrations/", corsHandler.Handler(middleware.LoggingMiddleware(migrationHandler)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting migration server on %s", cfg.Server.Addr)
		log.Printf("Migration endpoint available at http://localhost%s/api/migrations", cfg.Server.Addr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

func orgToken(orgName string) string {
	key := strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimSpace(orgName)))
	if key != "" {
		if token := os.Getenv("MIGRATOR_TOKEN_" + key); token != "" {
			return token
		}
	}
	return os.Getenv("MIGRATOR_ACCESS_TOKEN")
}
