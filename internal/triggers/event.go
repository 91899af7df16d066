package triggers

import (
	"context"

	"github.com/cdcgov/blob-relay/internal/delivery"
	"github.com/cdcgov/blob-relay/internal/event"
	"github.com/cdcgov/blob-relay/internal/metrics"
	"github.com/cdcgov/blob-relay/internal/storeaz"
	"github.com/cdcgov/blob-relay/pkg/sloger"
	"github.com/prometheus/client_golang/prometheus"
)

// EventTrigger handles storage change notifications. Failures are logged and counted, never returned.
type EventTrigger struct {
	Relay         *delivery.Relay
	UploadEnabled bool
	// Source labels the event metrics with the entry point that delivered the event.
	Source string
}

func (t *EventTrigger) Process(ctx context.Context, e *event.BlobEvent) error {
	return event.EventIDLoggerProcessor(t.handle)(ctx, e)
}

func (t *EventTrigger) handle(ctx context.Context, e *event.BlobEvent) error {
	logger := sloger.FromContext(ctx)
	logger.Info("blob event received",
		"id", e.ID,
		"topic", e.Topic,
		"subject", e.Subject,
		"event_type", e.EventType,
		"data", e.Data,
	)

	// payloads without a type carry only the blob url and are relayed
	if e.EventType != "" && e.EventType != event.BlobCreatedEventType {
		logger.Info("ignoring blob event", "event_type", e.EventType)
		t.count("ignored")
		return nil
	}

	if err := t.process(ctx, e); err != nil {
		logger.Error("blob event failed",
			"url", e.Data.URL,
			"error_class", delivery.ErrorClass(err),
			"error", err.Error(),
		)
		t.count("failed")
		return nil
	}

	t.count("success")
	return nil
}

func (t *EventTrigger) process(ctx context.Context, e *event.BlobEvent) error {
	logger := sloger.FromContext(ctx)

	loc, err := storeaz.ParseBlobURL(e.Data.URL)
	if err != nil {
		return err
	}
	logger.Info("blob event target", "account", loc.Account, "container", loc.Container, "object", loc.Object)

	if t.UploadEnabled {
		_, err = t.Relay.Transfer(ctx, e.Data.URL)
		return err
	}

	obj, err := t.Relay.Fetch(ctx, e.Data.URL)
	if err != nil {
		return err
	}
	logger.Info("fetched blob for event", "content_type", obj.ContentType, "length", len(obj.Content))
	return nil
}

func (t *EventTrigger) count(result string) {
	metrics.EventsCounter.With(prometheus.Labels{"source": t.Source, "result": result}).Inc()
}
