package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gcslaoli/pdf-watermark-remover-go/api"
)

const (
	// ServerReadTimeout is the HTTP server read timeout
	ServerReadTimeout = 60 * time.Second

	// ServerWriteTimeout is the HTTP server write timeout; large scans take a
	// while to process.
	ServerWriteTimeout = 5 * time.Minute

	// ServerIdleTimeout is the HTTP server idle timeout
	ServerIdleTimeout = 60 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful shutdown
	GracefulShutdownTimeout = 10 * time.Second
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	config, err := api.ConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	config.Logger = log

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", config.Port),
		Handler:      api.NewRouter(config),
		ReadTimeout:  ServerReadTimeout,
		WriteTimeout: ServerWriteTimeout,
		IdleTimeout:  ServerIdleTimeout,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Int64("max_file_size", config.MaxFileSize).
			Str("temp_dir", config.TempDir).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited")
}
