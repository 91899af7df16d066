package triggers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cdcgov/blob-relay/internal/event"
	"github.com/cdcgov/blob-relay/internal/models"
	"github.com/cdcgov/blob-relay/pkg/sloger"
)

const (
	EventGridEventTypeHeader = "aeg-event-type"
	// DefaultEventBinding is the trigger binding name the function host uses for the event payload.
	DefaultEventBinding = "event"

	maxEventPayload = 1 << 20
)

type Publisher interface {
	Publish(ctx context.Context, e *event.BlobEvent) error
}

// WebhookHandler accepts Event Grid deliveries and queues blob events for the event trigger.
type WebhookHandler struct {
	Events Publisher
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := sloger.FromContext(r.Context())

	b, err := io.ReadAll(io.LimitReader(r.Body, maxEventPayload))
	if err != nil {
		respondText(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := event.ParseEvents(b)
	if err != nil {
		logger.Warn("rejected event grid delivery", "error", err)
		respondText(w, http.StatusBadRequest, err.Error())
		return
	}

	for _, e := range events {
		if e.EventType == event.SubscriptionValidationEventType {
			logger.Info("answering event grid subscription validation", "id", e.ID, "topic", e.Topic)
			writeJSON(w, event.ValidationResponse{ValidationResponse: e.Data.ValidationCode})
			return
		}
	}

	for _, e := range events {
		if err := h.Events.Publish(r.Context(), e); err != nil {
			logger.Error("failed to queue blob event", "id", e.ID, "error", err)
			respondText(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// InvocationHandler serves the functions custom handler protocol for the event grid trigger.
type InvocationHandler struct {
	Trigger *EventTrigger
	Binding string
}

func (h *InvocationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := sloger.FromContext(r.Context())

	var req event.InvocationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEventPayload)).Decode(&req); err != nil {
		logger.Warn("rejected invocation request", "error", err)
		respondText(w, http.StatusBadRequest, err.Error())
		return
	}

	binding := h.Binding
	if binding == "" {
		binding = DefaultEventBinding
	}
	events, err := event.EventsFromInvocation(req, binding)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, event.ErrNoEvents) {
			status = http.StatusUnprocessableEntity
		}
		logger.Warn("invocation carried no usable events", "error", err)
		respondText(w, status, err.Error())
		return
	}

	logs := []string{}
	for _, e := range events {
		h.Trigger.Process(r.Context(), e)
		logs = append(logs, "processed event "+e.ID)
	}
	writeJSON(w, event.NewInvocationResponse(logs...))
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("error marshal json response", "error", err.Error())
		respondText(w, http.StatusInternalServerError, err.Error())
		return
	}
	respond(w, http.StatusOK, models.CONTENT_TYPE_JSON, b)
}
