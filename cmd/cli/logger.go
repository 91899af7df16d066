package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/cdcgov/blob-relay/internal/appconfig"
)

var (
	logger *slog.Logger = slog.Default()
)

// AppLogger, this is the custom application logger for uniformity
func AppLogger(appConfig appconfig.AppConfig) *slog.Logger {
	return newAppLogger(os.Stdout, appConfig)
} // .AppLogger

func newAppLogger(w io.Writer, appConfig appconfig.AppConfig) *slog.Logger {

	// Configure debug on if needed, otherwise should be off
	opts := &slog.HandlerOptions{
		AddSource: true,
	} // .opts

	if appConfig.LoggerDebugOn {
		opts.Level = slog.LevelDebug
	} // .if

	appLogger := slog.New(slog.NewJSONHandler(w, opts)).With(
		slog.Group("app_info",
			slog.String("System", "DEX"),
			slog.String("Product", "BLOB RELAY"),
			slog.String("App", "RELAY SERVER"),
			slog.String("Env", appConfig.Environment),
			slog.String("RunMode", appConfig.RunMode),
		)) // .appLogger

	return appLogger
} // .newAppLogger

// SetLogger replaces the package logger once the app logger is configured.
func SetLogger(l *slog.Logger) {
	logger = l.With("pkg", "cli")
}
