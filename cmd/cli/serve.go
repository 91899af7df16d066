package cli

import (
	"context"
	"net/http"

	"github.com/cdcgov/blob-relay/internal/appconfig"
	"github.com/cdcgov/blob-relay/internal/bulkcopy"
	"github.com/cdcgov/blob-relay/internal/event"
	"github.com/cdcgov/blob-relay/internal/health"
	"github.com/cdcgov/blob-relay/internal/metrics"
	"github.com/cdcgov/blob-relay/internal/middleware"
	"github.com/cdcgov/blob-relay/internal/triggers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
) // .import

const (
	webhookBusSize = 100

	sourceWebhook    = "webhook"
	sourceServiceBus = "servicebus"
	sourceFunction   = "function"
)

// Serve builds the relay and returns the router for every endpoint the hosting platform calls.
// Event listeners run until ctx is done.
func Serve(ctx context.Context, appConfig appconfig.AppConfig) (http.Handler, error) {

	relay, err := NewRelay(ctx, appConfig)
	if err != nil {
		return nil, err
	}

	authMiddleware, err := middleware.NewAuthMiddleware(oauthConfig(appConfig))
	if err != nil {
		logger.Error("error configuring auth middleware", "error", err)
		return nil, err
	}

	eventProcessor := func(source string) func(context.Context, *event.BlobEvent) error {
		t := &triggers.EventTrigger{
			Relay:         relay,
			UploadEnabled: appConfig.EventUploadEnabled,
			Source:        source,
		}
		if appConfig.TracingEnabled {
			return TracingProcessor(t.Process)
		}
		return t.Process
	}

	// --------------------------------------------------------------
	// 	event listeners
	// --------------------------------------------------------------
	webhookBus := event.NewMemoryBus[*event.BlobEvent](webhookBusSize)
	health.Register(webhookBus)
	metrics.RegisterQueue(sourceWebhook, webhookBus)
	startListening[*event.BlobEvent](ctx, sourceWebhook, webhookBus, eventProcessor(sourceWebhook))
	go func() {
		<-ctx.Done()
		webhookBus.Close()
	}()

	sub, err := NewEventSubscriber[*event.BlobEvent](ctx, appConfig)
	if err != nil {
		logger.Error("error configuring event subscriber", "error", err)
		return nil, err
	}
	if sub != nil {
		startListening(ctx, sourceServiceBus, sub, eventProcessor(sourceServiceBus))
		go func() {
			<-ctx.Done()
			if err := sub.Close(); err != nil {
				logger.Warn("failed to close event subscriber", "error", err)
			}
		}()
	}

	// --------------------------------------------------------------
	// 	routes
	// --------------------------------------------------------------
	router := mux.NewRouter()
	router.Use(middleware.AddRequestIDContext)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware.VerifyOAuthTokenMiddleware)
	api.Handle("/test", &triggers.HTTPTrigger{
		Relay:               relay,
		DefaultFileURL:      appConfig.DefaultFileURL,
		ErrorMarkerSniffing: appConfig.ErrorMarkerSniffing,
		UploadEnabled:       appConfig.HTTPUploadEnabled,
	}).Methods(http.MethodGet, http.MethodPost)
	api.Handle("/events", &triggers.WebhookHandler{
		Events: webhookBus,
	}).Methods(http.MethodPost)
	api.Handle("/copy", &triggers.CopyHandler{
		Runner: &bulkcopy.Runner{
			ScriptPath: appConfig.CopyScriptPath,
			Timeout:    appConfig.CopyScriptTimeout,
		},
	}).Methods(http.MethodPost)

	router.Handle("/ProcessBlobEvents", &triggers.InvocationHandler{
		Trigger: &triggers.EventTrigger{
			Relay:         relay,
			UploadEnabled: appConfig.EventUploadEnabled,
			Source:        sourceFunction,
		},
		Binding: triggers.DefaultEventBinding,
	}).Methods(http.MethodPost)

	// --------------------------------------------------------------
	// 	operational endpoints
	// --------------------------------------------------------------
	router.Handle("/health", health.Handler()).Methods(http.MethodGet)
	router.Handle("/version", &VersionHandler{}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.Handle("/", appconfig.Handler()).Methods(http.MethodGet)

	setupMetrics(ctx, queuePollInterval)

	var handler http.Handler = router
	if appConfig.TracingEnabled {
		handler = middleware.TracingMiddleware(handler)
	}
	return metrics.TrackHTTP(handler), nil
} // .Serve

func oauthConfig(appConfig appconfig.AppConfig) appconfig.OauthConfig {
	if appConfig.OauthConfig == nil {
		return appconfig.OauthConfig{}
	}
	return *appConfig.OauthConfig
}
