package cli

import (
	"context"

	"github.com/cdcgov/blob-relay/internal/appconfig"
	"github.com/cdcgov/blob-relay/internal/event"
	"github.com/cdcgov/blob-relay/internal/health"
	"github.com/cdcgov/blob-relay/internal/metrics"
)

// NewEventSubscriber returns the service bus subscriber when one is configured, nil otherwise.
func NewEventSubscriber[T event.Identifiable](ctx context.Context, appConfig appconfig.AppConfig) (event.Subscribable[T], error) {
	if appConfig.SubscriberConnection == nil {
		return nil, nil
	}

	sub, err := event.NewAzureSubscriber[T](ctx, *appConfig.SubscriberConnection)
	if err != nil {
		return nil, err
	}
	if err := health.Register(sub); err != nil {
		logger.Error("failed to register subscriber health check", "error", err)
	}

	name := appConfig.SubscriberConnection.Queue
	if name == "" {
		name = appConfig.SubscriberConnection.Topic + "/" + appConfig.SubscriberConnection.Subscription
	}
	metrics.RegisterQueue(name, sub)
	return sub, nil
}

// startListening runs the subscriber until ctx is done or it fails.
func startListening[T event.Identifiable](ctx context.Context, name string, sub event.Subscribable[T], process func(context.Context, T) error) {
	go func() {
		if err := sub.Listen(ctx, process); err != nil {
			logger.Error("event listener stopped", "listener", name, "error", err)
		}
	}()
}
