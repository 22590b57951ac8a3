package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/webtermd/webterm/internal/auth"
	"github.com/webtermd/webterm/internal/config"
	"github.com/webtermd/webterm/internal/handlers"
	"github.com/webtermd/webterm/internal/logging"
	"github.com/webtermd/webterm/internal/pty"
)

func main() {
	config.Load()
	logging.Init()

	lockoutWindow, err := time.ParseDuration(config.Cfg.LockoutWindow)
	if err != nil {
		lockoutWindow = 15 * time.Minute
	}
	credentialMaxAge, err := time.ParseDuration(config.Cfg.CredentialMaxAge)
	if err != nil {
		credentialMaxAge = auth.DefaultCredentialMaxAge
	}

	gate := auth.NewGate(config.Cfg.AccessCode, lockoutWindow)
	handlers.Gate = gate
	if gate.Enabled() {
		log.Printf("PIN gate enabled (lockout after %d failures within %s)",
			config.MaxLoginAttempts, lockoutWindow)
	} else {
		log.Printf("WARNING: no access code configured, terminal is open")
	}

	credentials, err := auth.NewCredentialStore(config.Cfg.DataPath, credentialMaxAge)
	if err != nil {
		log.Fatalf("Credential store init: %v", err)
	}
	handlers.Credentials = credentials

	shell := config.Cfg.ShellCommand()
	handlers.PTYManager = pty.NewManager(config.Cfg.PTYBackend, shell)
	log.Printf("PTY backend=%s shell=%s", config.Cfg.PTYBackend, shell)

	// Background sweeps: stale lockout records every minute, expired
	// credentials every ten minutes.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 60s", func() {
		if n := gate.SweepStale(); n > 0 {
			log.Printf("Swept %d stale lockout records", n)
		}
	}); err != nil {
		log.Fatalf("Lockout sweep schedule: %v", err)
	}
	if _, err := sweeper.AddFunc("@every 10m", func() {
		if n := credentials.Sweep(); n > 0 {
			log.Printf("Swept %d expired credentials", n)
		}
	}); err != nil {
		log.Fatalf("Credential sweep schedule: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", handlers.HealthCheck)
	r.Get("/pin-length", handlers.PinLength)
	r.Post("/verify-pin", handlers.VerifyPin)
	r.Get("/api/require-pin", handlers.RequirePin)
	r.Get("/api/logs", handlers.Logs)
	r.Delete("/api/logs", handlers.ClearLogs)
	r.Post("/logout", handlers.Logout)
	r.Get("/terminal", handlers.Terminal)

	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
