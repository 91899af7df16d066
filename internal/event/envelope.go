package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNoEvents   = errors.New("payload contains no events")
	ErrEmptyEvent = fmt.Errorf("%w: event is null", ErrNoEvents)
)

// InvocationRequest is what the functions host posts to a custom handler for a trigger.
type InvocationRequest struct {
	Data     map[string]json.RawMessage `json:"Data"`
	Metadata map[string]json.RawMessage `json:"Metadata"`
}

// InvocationResponse is the reply the functions host expects from a custom handler.
type InvocationResponse struct {
	Outputs     map[string]any `json:"Outputs"`
	Logs        []string       `json:"Logs"`
	ReturnValue any            `json:"ReturnValue"`
}

func NewInvocationResponse(logs ...string) InvocationResponse {
	if logs == nil {
		logs = []string{}
	}
	return InvocationResponse{
		Outputs: map[string]any{},
		Logs:    logs,
	}
}

// ValidationResponse answers the Event Grid subscription handshake.
type ValidationResponse struct {
	ValidationResponse string `json:"validationResponse"`
}

// ParseEvents decodes an Event Grid payload, either a single event or an array of events.
func ParseEvents(b []byte) ([]*BlobEvent, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, ErrNoEvents
	}

	// the functions host may deliver the event as a json encoded string
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, fmt.Errorf("failed to decode event string: %w", err)
		}
		return ParseEvents([]byte(s))
	}

	if b[0] == '[' {
		var events []*BlobEvent
		if err := json.Unmarshal(b, &events); err != nil {
			return nil, fmt.Errorf("failed to decode events: %w", err)
		}
		if len(events) == 0 {
			return nil, ErrNoEvents
		}
		for i, e := range events {
			if e == nil {
				return nil, fmt.Errorf("failed to decode events: %w at index %d", ErrEmptyEvent, i)
			}
		}
		return events, nil
	}

	if bytes.Equal(b, []byte("null")) {
		return nil, ErrNoEvents
	}

	var e BlobEvent
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return []*BlobEvent{&e}, nil
}

// EventsFromInvocation pulls the events bound under name out of a custom handler request.
func EventsFromInvocation(req InvocationRequest, name string) ([]*BlobEvent, error) {
	raw, ok := req.Data[name]
	if !ok {
		return nil, fmt.Errorf("%w: no %q binding in invocation data", ErrNoEvents, name)
	}
	return ParseEvents(raw)
}
