package event

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/cdcgov/blob-relay/pkg/sloger"
)

const (
	BlobCreatedEventType            = "Microsoft.Storage.BlobCreated"
	SubscriptionValidationEventType = "Microsoft.EventGrid.SubscriptionValidationEvent"
)

var MaxMessages = 5

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

type Identifiable interface {
	Identifier() string
	Type() string
	SetIdentifier(id string)
}

// BlobEvent is a storage change notification in the Event Grid event schema.
type BlobEvent struct {
	ID              string        `json:"id"`
	Topic           string        `json:"topic"`
	Subject         string        `json:"subject"`
	EventType       string        `json:"eventType"`
	EventTime       time.Time     `json:"eventTime"`
	DataVersion     string        `json:"dataVersion"`
	MetadataVersion string        `json:"metadataVersion"`
	Data            BlobEventData `json:"data"`
}

type BlobEventData struct {
	API             string `json:"api,omitempty"`
	ClientRequestID string `json:"clientRequestId,omitempty"`
	RequestID       string `json:"requestId,omitempty"`
	ETag            string `json:"eTag,omitempty"`
	ContentType     string `json:"contentType,omitempty"`
	ContentLength   int64  `json:"contentLength,omitempty"`
	BlobType        string `json:"blobType,omitempty"`
	URL             string `json:"url,omitempty"`
	Sequencer       string `json:"sequencer,omitempty"`

	// set only on subscription validation events
	ValidationCode string `json:"validationCode,omitempty"`
	ValidationURL  string `json:"validationUrl,omitempty"`
}

func (e *BlobEvent) Identifier() string {
	return e.ID
}

func (e *BlobEvent) Type() string {
	return e.EventType
}

func (e *BlobEvent) SetIdentifier(id string) {
	if e.ID == "" {
		e.ID = id
	}
}

func (e *BlobEvent) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", e.ID),
		slog.String("topic", e.Topic),
		slog.String("subject", e.Subject),
		slog.String("event_type", e.EventType),
		slog.String("url", e.Data.URL),
	)
}

func NewBlobCreatedEvent(id string, blobURL string) *BlobEvent {
	return &BlobEvent{
		ID:          id,
		EventType:   BlobCreatedEventType,
		EventTime:   time.Now().UTC(),
		DataVersion: "1.0",
		Data: BlobEventData{
			API: "PutBlob",
			URL: blobURL,
		},
	}
}

// EventIDLoggerProcessor puts a logger carrying the event id into the context handed to next.
func EventIDLoggerProcessor[T Identifiable](next func(context.Context, T) error) func(context.Context, T) error {
	return func(ctx context.Context, e T) error {
		ctx = sloger.SetEventID(ctx, e.Identifier())
		return next(ctx, e)
	}
}
