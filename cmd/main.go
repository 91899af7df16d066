package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"testing"
	"time"

	"github.com/cdcgov/blob-relay/cmd/cli"
	"github.com/cdcgov/blob-relay/internal/appconfig"
	"github.com/cdcgov/blob-relay/internal/server"
	"github.com/cdcgov/blob-relay/pkg/sloger"
	"github.com/joho/godotenv"
) // .import

const (
	appMainExitCode = 1
	shutdownTimeout = 30 * time.Second
)

var (
	appConfig appconfig.AppConfig
	logger    *slog.Logger
)

// NOTE: this large init file may be an antipattern.
// A main reason for it is to enable to cross cutting logging aspect.
// If another way is found to manage that this should be moved to main.
func init() {
	ctx := context.Background()

	logInfo := []any{}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		logInfo = append(logInfo, "buildInfo.Main.Path", buildInfo.Main.Path)
	}
	// ------------------------------------------------------------------
	// parse and load cli flags
	// ------------------------------------------------------------------
	if !testing.Testing() {
		if err := cli.ParseFlags(); err != nil {
			slog.Error("error starting app, error parsing cli flags", "error", err)
			os.Exit(appMainExitCode)
		} // .if
	}

	if cli.Flags.AppConfigPath != "" {
		slog.Info("Loading environment from", "file", cli.Flags.AppConfigPath)
		if err := godotenv.Load(cli.Flags.AppConfigPath); err != nil {
			slog.Error("error loading local configuration", "error", err)
			os.Exit(appMainExitCode)
		} // .if
	}

	if cli.Flags.RunMode != "" {
		os.Setenv("RUN_MODE", cli.Flags.RunMode)
	}

	// ------------------------------------------------------------------
	// parse and load config from os exported
	// ------------------------------------------------------------------
	var err error
	appConfig, err = appconfig.ParseConfig(ctx)
	if err != nil {
		slog.Error("error starting app, error parsing app config", "error", err)
		os.Exit(appMainExitCode)
	} // .if

	// ------------------------------------------------------------------
	// configure app custom logging
	// ------------------------------------------------------------------
	appLogger := cli.AppLogger(appConfig).With(logInfo...)
	slog.SetDefault(appLogger)
	sloger.SetDefaultLogger(appLogger)
	cli.SetLogger(appLogger)
	logger = appLogger.With("pkg", "main")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting app", "run_mode", appConfig.RunMode, "fetch_strategy", appConfig.FetchStrategy)

	if appConfig.TracingEnabled {
		shutdownTracing, err := cli.InitTracerProvider(ctx)
		if err != nil {
			logger.Error("error starting app, error configuring tracing", "error", err)
			os.Exit(appMainExitCode)
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Warn("failed to flush traces", "error", err)
			}
		}()
	}

	// start serving the app
	handler, err := cli.Serve(ctx, appConfig)
	if err != nil {
		logger.Error("error starting app, error initialize relay handlers", "error", err)
		os.Exit(appMainExitCode)
	}

	logger.Info("http handlers ready")
	// ------------------------------------------------------------------
	// create relay server
	// ------------------------------------------------------------------
	relayServer, err := server.New(appConfig)
	if err != nil {
		logger.Error("error starting app, error initialize relay server", "error", err)
		os.Exit(appMainExitCode)
	} // .if

	httpServer := relayServer.HttpServer(handler)

	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("error starting app, error starting http server", "error", err, "port", appConfig.Port())
			os.Exit(appMainExitCode)
		} // .if
	}() // .go

	logger.Info("started http server", "port", appConfig.Port())

	// ------------------------------------------------------------------
	// 	Block for Exit, server above is on goroutine
	// ------------------------------------------------------------------
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	logger.Info("closing server by os signal", "port", appConfig.Port())
} // .main
