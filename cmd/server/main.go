package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bananalabs-oss/lobby/internal/config"
	"github.com/bananalabs-oss/lobby/internal/database"
	"github.com/bananalabs-oss/lobby/internal/games"
	"github.com/bananalabs-oss/lobby/internal/metrics"
	"github.com/bananalabs-oss/lobby/internal/router"
)

func main() {
	log.Printf("Starting Lobby")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Lobby Configuration:")
	log.Printf("  Host:     %s", cfg.Host)
	log.Printf("  Port:     %s", cfg.Port)
	log.Printf("  Database: %s", cfg.DatabaseURL)
	log.Printf("  Metrics:  %t", cfg.MetricsEnabled)

	ctx := context.Background()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.NewRecorder()
	}

	svc := games.NewService(db)
	r := router.Setup(svc, rec, cfg.JWTSecret, cfg.ServiceToken)

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Printf("Lobby listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutting down Lobby...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Printf("Lobby stopped")
}
