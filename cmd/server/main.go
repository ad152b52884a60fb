package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exchange-core/internal/db"
	"exchange-core/internal/engine"
	"exchange-core/internal/httpapi"
	"exchange-core/internal/userstore"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg(".env not loaded, continuing with process environment")
	}

	setupLogger()

	log.Info().Msg("starting exchange-core server")

	database, err := db.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		log.Info().Msg("closing database connection")
		database.Close()
	}()
	log.Info().Msg("database connection established")

	if err := db.Bootstrap(database); err != nil {
		log.Fatal().Err(err).Msg("failed to bootstrap schema")
	}

	admin, err := userstore.New().EnsureAdmin(context.Background(), database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to ensure admin user")
	}
	log.Info().Str("admin_id", admin.ID.String()).Str("admin_api_key", admin.APIKey).Msg("admin account ready")

	eng := engine.New(database, log.Logger)
	log.Info().Msg("loading open orders from database")
	if err := eng.LoadOpenOrders(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to load open orders")
	}

	srv := httpapi.New(database, eng, log.Logger)

	httpServer := &http.Server{
		Addr:    ":8080",
		Handler: srv.Routes(),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-stop
	log.Info().Msg("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	} else {
		log.Info().Msg("server gracefully stopped")
	}
}

// setupLogger configures zerolog's global logger: human-readable console
// output by default, switching to structured JSON when LOG_FORMAT=json is
// set (typical for production deployment behind a log aggregator).
func setupLogger() {
	if os.Getenv("LOG_FORMAT") == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}
