package triggers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cdcgov/blob-relay/internal/aadtoken"
	"github.com/cdcgov/blob-relay/internal/appconfig"
	"github.com/cdcgov/blob-relay/internal/bulkcopy"
	"github.com/cdcgov/blob-relay/internal/delivery"
	"github.com/cdcgov/blob-relay/internal/event"
	"github.com/cdcgov/blob-relay/internal/metrics"
	"github.com/cdcgov/blob-relay/internal/models"
	"github.com/cdcgov/blob-relay/pkg/sloger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu   sync.Mutex
	urls []string
	obj  *delivery.Object
	err  error
}

func (s *fakeSource) Fetch(_ context.Context, fileURL string) (*delivery.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, fileURL)
	return s.obj, s.err
}

type fakeDestination struct {
	mu      sync.Mutex
	objects map[string]string
	err     error
}

func (d *fakeDestination) Upload(_ context.Context, localPath string, objectName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	b, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	if d.objects == nil {
		d.objects = map[string]string{}
	}
	d.objects[objectName] = string(b)
	return nil
}

func newRelay(t *testing.T, src delivery.Source, dest delivery.Destination) *delivery.Relay {
	return &delivery.Relay{
		Source:      src,
		Destination: dest,
		Target:      "test",
		StagingDir:  t.TempDir(),
	}
}

func newHTTPTrigger(t *testing.T, src delivery.Source, dest delivery.Destination) *HTTPTrigger {
	return &HTTPTrigger{
		Relay:               newRelay(t, src, dest),
		DefaultFileURL:      appconfig.DefaultFileURL,
		ErrorMarkerSniffing: true,
		UploadEnabled:       true,
	}
}

func get(h http.Handler, fileURL string) *httptest.ResponseRecorder {
	target := "/api/test"
	if fileURL != "" {
		target += "?file_url=" + url.QueryEscape(fileURL)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestHTTPTriggerDefaultURL(t *testing.T) {
	src := &fakeSource{obj: &delivery.Object{Content: []byte("sample")}}
	dest := &fakeDestination{}

	rr := get(newHTTPTrigger(t, src, dest), "")

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, src.urls, 1)
	assert.Equal(t, "https://ste2isaic2do5jq.blob.core.windows.net/stc-sample/test34.txt", src.urls[0])
	assert.Equal(t, "sample", dest.objects["test34.txt"])
}

func TestHTTPTriggerSuccessEchoesContent(t *testing.T) {
	src := &fakeSource{obj: &delivery.Object{Content: []byte("hello,world\n1,2\n")}}
	dest := &fakeDestination{}
	trigger := newHTTPTrigger(t, src, dest)

	rr := get(trigger, "https://acct1.blob.core.windows.net/mycontainer/folder/file.txt")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "hello,world\n1,2\n", rr.Body.String())
	assert.Equal(t, models.CONTENT_TYPE_TEXT, rr.Header().Get("Content-Type"))
	assert.Equal(t, "hello,world\n1,2\n", dest.objects["file.txt"])

	entries, err := os.ReadDir(trigger.Relay.StagingDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHTTPTriggerStatusMapping(t *testing.T) {
	azureErr := `<?xml version="1.0" encoding="utf-8"?><Error><Code>AuthorizationPermissionMismatch</Code></Error>`

	type testCase struct {
		src         *fakeSource
		dest        *fakeDestination
		url         string
		status      int
		body        string
		contentType string
	}
	cases := map[string]testCase{
		"error marker in content": {
			src:         &fakeSource{obj: &delivery.Object{Content: []byte("<Error>Access denied</Error>")}},
			status:      http.StatusInternalServerError,
			body:        "<Error>Access denied</Error>",
			contentType: models.CONTENT_TYPE_XML,
		},
		"provider status error": {
			src: &fakeSource{err: &delivery.StatusError{
				StatusCode: http.StatusForbidden,
				Body:       []byte(azureErr),
			}},
			status:      http.StatusInternalServerError,
			body:        azureErr,
			contentType: models.CONTENT_TYPE_XML,
		},
		"provider status without body": {
			src: &fakeSource{err: &delivery.StatusError{
				StatusCode: http.StatusUnauthorized,
			}},
			status:      http.StatusInternalServerError,
			body:        MsgFetchFailed,
			contentType: models.CONTENT_TYPE_TEXT,
		},
		"transport failure": {
			src:         &fakeSource{err: errors.New("dial tcp: i/o timeout")},
			status:      http.StatusInternalServerError,
			body:        MsgFetchFailed,
			contentType: models.CONTENT_TYPE_TEXT,
		},
		"empty content": {
			src:         &fakeSource{obj: &delivery.Object{}},
			status:      http.StatusInternalServerError,
			body:        MsgFetchFailed,
			contentType: models.CONTENT_TYPE_TEXT,
		},
		"upload failure": {
			src:         &fakeSource{obj: &delivery.Object{Content: []byte("data")}},
			dest:        &fakeDestination{err: fmt.Errorf("%w: permission denied", delivery.ErrUploadFailure)},
			status:      http.StatusInternalServerError,
			body:        MsgCopyFailed,
			contentType: models.CONTENT_TYPE_TEXT,
		},
		"not a blob url": {
			src:         &fakeSource{obj: &delivery.Object{Content: []byte("data")}},
			url:         "https://example.com/c/o.txt",
			status:      http.StatusBadRequest,
			contentType: models.CONTENT_TYPE_TEXT,
		},
		"no blob name": {
			src:         &fakeSource{obj: &delivery.Object{Content: []byte("data")}},
			url:         "https://acct1.blob.core.windows.net/mycontainer",
			status:      http.StatusBadRequest,
			contentType: models.CONTENT_TYPE_TEXT,
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			dest := c.dest
			if dest == nil {
				dest = &fakeDestination{}
			}
			u := c.url
			if u == "" {
				u = "https://acct1.blob.core.windows.net/mycontainer/file.txt"
			}

			rr := get(newHTTPTrigger(t, c.src, dest), u)

			assert.Equal(t, c.status, rr.Code)
			assert.Equal(t, c.contentType, rr.Header().Get("Content-Type"))
			if c.body != "" {
				assert.Equal(t, c.body, rr.Body.String())
			}
			if c.status == http.StatusBadRequest {
				assert.Empty(t, c.src.urls)
			}
		})
	}
}

type fixedTokens struct{}

func (fixedTokens) Acquire(_ context.Context) (aadtoken.AccessToken, error) {
	return aadtoken.AccessToken{Value: "test-token", Scope: aadtoken.StorageScope}, nil
}

// redirectTransport sends every request to the test server regardless of the blob host.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(r)
}

func TestHTTPTriggerBareAuthStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()
	target, err := url.Parse(ts.URL)
	require.NoError(t, err)

	src := delivery.NewAzureHTTPSource(fixedTokens{}, "2020-04-08", 5*time.Second)
	src.Client.Transport = redirectTransport{target: target}
	dest := &fakeDestination{}

	rr := get(newHTTPTrigger(t, src, dest), "https://acct1.blob.core.windows.net/mycontainer/file.txt")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, models.CONTENT_TYPE_TEXT, rr.Header().Get("Content-Type"))
	assert.Equal(t, MsgFetchFailed, rr.Body.String())
	assert.Empty(t, dest.objects)
}

func TestHTTPTriggerSniffingDisabled(t *testing.T) {
	src := &fakeSource{obj: &delivery.Object{Content: []byte("ErrorCount,Total\n0,10\n")}}
	trigger := newHTTPTrigger(t, src, &fakeDestination{})
	trigger.ErrorMarkerSniffing = false

	rr := get(trigger, "https://acct1.blob.core.windows.net/reports/summary.csv")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHTTPTriggerUploadDisabled(t *testing.T) {
	src := &fakeSource{obj: &delivery.Object{Content: []byte("data")}}
	dest := &fakeDestination{err: errors.New("must not be called")}
	trigger := newHTTPTrigger(t, src, dest)
	trigger.UploadEnabled = false

	rr := get(trigger, "https://acct1.blob.core.windows.net/c/o.txt")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "data", rr.Body.String())
}

func captureLogs(t *testing.T) (context.Context, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&out, nil))
	return context.WithValue(context.Background(), sloger.LoggerKey, l), &out
}

func TestEventTriggerLogsFailureClass(t *testing.T) {
	type testCase struct {
		url   string
		src   *fakeSource
		class string
	}
	cases := map[string]testCase{
		"invalid url": {
			url:   "http://acct1.blob.core.windows.net/c/o.txt",
			src:   &fakeSource{},
			class: delivery.ClassInvalidURL,
		},
		"invalid path": {
			url:   "https://acct1.blob.core.windows.net/c",
			src:   &fakeSource{},
			class: delivery.ClassInvalidPath,
		},
		"fetch failure": {
			url:   "https://acct1.blob.core.windows.net/c/o.txt",
			src:   &fakeSource{err: &delivery.StatusError{StatusCode: http.StatusNotFound}},
			class: delivery.ClassFetchFailure,
		},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			ctx, logs := captureLogs(t)
			trigger := &EventTrigger{Relay: newRelay(t, c.src, &fakeDestination{}), Source: "test"}

			err := trigger.Process(ctx, event.NewBlobCreatedEvent("evt-1", c.url))
			assert.NoError(t, err)

			var failure map[string]any
			for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
				var rec map[string]any
				require.NoError(t, json.Unmarshal([]byte(line), &rec))
				if rec["msg"] == "blob event failed" {
					failure = rec
				}
			}
			require.NotNil(t, failure, logs.String())
			assert.Equal(t, c.class, failure["error_class"])
			assert.Equal(t, "evt-1", failure["event_id"])
		})
	}
}

func TestEventTriggerUploadsWhenEnabled(t *testing.T) {
	src := &fakeSource{obj: &delivery.Object{Content: []byte("event data")}}
	dest := &fakeDestination{}
	trigger := &EventTrigger{Relay: newRelay(t, src, dest), Source: "test"}

	e := event.NewBlobCreatedEvent("evt-2", "https://acct1.blob.core.windows.net/c/folder/new.csv")
	require.NoError(t, trigger.Process(context.Background(), e))
	assert.Empty(t, dest.objects)

	trigger.UploadEnabled = true
	require.NoError(t, trigger.Process(context.Background(), e))
	assert.Equal(t, "event data", dest.objects["new.csv"])
}

func TestEventTriggerIgnoresOtherEventTypes(t *testing.T) {
	src := &fakeSource{obj: &delivery.Object{Content: []byte("data")}}
	trigger := &EventTrigger{Relay: newRelay(t, src, &fakeDestination{}), UploadEnabled: true, Source: "ignore-test"}

	for _, eventType := range []string{"Microsoft.Storage.BlobDeleted", event.SubscriptionValidationEventType} {
		e := event.NewBlobCreatedEvent("evt-3", "https://acct1.blob.core.windows.net/c/gone.txt")
		e.EventType = eventType
		require.NoError(t, trigger.Process(context.Background(), e))
	}

	assert.Empty(t, src.urls)
	ignored := metrics.EventsCounter.With(prometheus.Labels{"source": "ignore-test", "result": "ignored"})
	assert.Equal(t, float64(2), testutil.ToFloat64(ignored))
}

func TestWebhookValidationHandshake(t *testing.T) {
	body := `[{
		"id": "2d1781af-3a4c-4d7c-bd0c-e34b19da4e66",
		"topic": "/subscriptions/sub-id",
		"subject": "",
		"data": {"validationCode": "512d38b6-c7b8-40c8-89fe-f46f9e9622b6", "validationUrl": "https://rp-eastus2.eventgrid.azure.net/api/subscriptions/x/validate?id=y"},
		"eventType": "Microsoft.EventGrid.SubscriptionValidationEvent",
		"eventTime": "2018-01-25T22:12:19.4556811Z",
		"metadataVersion": "1",
		"dataVersion": "1"
	}]`
	bus := event.NewMemoryBus[*event.BlobEvent](1)
	h := &WebhookHandler{Events: bus}

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	req.Header.Set(EventGridEventTypeHeader, "SubscriptionValidation")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"validationResponse":"512d38b6-c7b8-40c8-89fe-f46f9e9622b6"}`, rr.Body.String())
	assert.Equal(t, 0, len(bus.Chan))
}

func TestWebhookQueuesBlobEvents(t *testing.T) {
	e := event.NewBlobCreatedEvent("evt-3", "https://acct1.blob.core.windows.net/c/o.txt")
	b, err := json.Marshal([]*event.BlobEvent{e})
	require.NoError(t, err)

	bus := event.NewMemoryBus[*event.BlobEvent](1)
	rr := httptest.NewRecorder()
	(&WebhookHandler{Events: bus}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(b)))

	assert.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, len(bus.Chan))
	queued := <-bus.Chan
	assert.Equal(t, "evt-3", queued.ID)
}

func TestWebhookRejectsGarbage(t *testing.T) {
	rr := httptest.NewRecorder()
	h := &WebhookHandler{Events: event.NewMemoryBus[*event.BlobEvent](1)}
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader("not json")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWebhookRejectsNullEvents(t *testing.T) {
	bus := event.NewMemoryBus[*event.BlobEvent](2)
	h := &WebhookHandler{Events: bus}
	for _, body := range []string{"[null]", "null"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	assert.Empty(t, bus.Chan)
}

func TestInvocationHandler(t *testing.T) {
	src := &fakeSource{obj: &delivery.Object{Content: []byte("data")}}
	h := &InvocationHandler{Trigger: &EventTrigger{Relay: newRelay(t, src, &fakeDestination{}), Source: "test"}}

	e := event.NewBlobCreatedEvent("evt-4", "https://acct1.blob.core.windows.net/c/o.txt")
	raw, err := json.Marshal(e)
	require.NoError(t, err)
	body, err := json.Marshal(event.InvocationRequest{
		Data:     map[string]json.RawMessage{"event": raw},
		Metadata: map[string]json.RawMessage{},
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ProcessBlobEvents", bytes.NewReader(body)))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"Outputs":{},"Logs":["processed event evt-4"],"ReturnValue":null}`, rr.Body.String())
	assert.Equal(t, []string{"https://acct1.blob.core.windows.net/c/o.txt"}, src.urls)
}

func TestInvocationHandlerMissingBinding(t *testing.T) {
	h := &InvocationHandler{Trigger: &EventTrigger{}}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ProcessBlobEvents", strings.NewReader(`{"Data":{},"Metadata":{}}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInvocationHandlerNullEvent(t *testing.T) {
	src := &fakeSource{obj: &delivery.Object{Content: []byte("data")}}
	h := &InvocationHandler{Trigger: &EventTrigger{Relay: newRelay(t, src, &fakeDestination{}), Source: "function"}}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ProcessBlobEvents", strings.NewReader(`{"Data":{"event":[null]},"Metadata":{}}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, src.urls)
}

type fakeRunner struct {
	err error
}

func (f *fakeRunner) Run(_ context.Context) (*bulkcopy.Result, error) {
	return &bulkcopy.Result{}, f.err
}

func TestCopyHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	(&CopyHandler{Runner: &fakeRunner{}}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/copy", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Shell script executed successfully.", rr.Body.String())

	rr = httptest.NewRecorder()
	failing := &fakeRunner{err: fmt.Errorf("%w: exit status 1", bulkcopy.ErrScriptFailed)}
	(&CopyHandler{Runner: failing}).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/copy", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Body.String(), "Error executing the shell script: "))
	assert.Contains(t, rr.Body.String(), "exit status 1")
}
