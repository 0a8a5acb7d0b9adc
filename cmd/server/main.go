package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Exerbud/exerbud-backend/internal/api"
	"github.com/Exerbud/exerbud-backend/internal/config"
	"github.com/Exerbud/exerbud-backend/internal/core"
	"github.com/Exerbud/exerbud-backend/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize database store. A missing or broken database is not
	// fatal: the ledger runs in degraded mode and the chat flow keeps
	// working without history.
	var dbStore *store.SQLiteStore
	if config.AppConfig.DatabaseURL != "" {
		var err error
		dbStore, err = store.NewSQLiteStore(config.AppConfig.DatabaseURL)
		if err != nil {
			log.Printf("Failed to initialize database, running without persistence: %v", err)
			dbStore = nil
		} else {
			defer dbStore.Close()
		}
	}

	// Initialize the ledger service
	ledger := core.NewLedgerService(dbStore, config.AppConfig.ReuseWindow)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(ledger)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish before forcing the exit.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
