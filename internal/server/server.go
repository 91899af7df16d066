package server

import (
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/cdcgov/blob-relay/internal/appconfig"
	"github.com/cdcgov/blob-relay/pkg/sloger"
) // .import

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 2 * time.Minute
)

// Server, relay api server, serves the trigger and operational endpoints
type Server struct {
	AppConfig appconfig.AppConfig

	logger *slog.Logger
} // .Server

// New returns a relay server ready to serve
func New(appConfig appconfig.AppConfig) (Server, error) {

	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger := sloger.With("pkg", pkgParts[len(pkgParts)-1])

	return Server{
		AppConfig: appConfig,
		logger:    logger,
	}, nil // .return

} // New

// HttpServer, wraps the handler in a server listening on the functions host port when set
func (s *Server) HttpServer(handler http.Handler) *http.Server {
	s.logger.Info("configuring http server", "port", s.AppConfig.Port())

	return &http.Server{
		Addr:              ":" + s.AppConfig.Port(),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	} // .httpServer
} // .HttpServer
