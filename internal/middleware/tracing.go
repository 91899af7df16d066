package middleware

import (
	"fmt"
	"net/http"

	"github.com/cdcgov/blob-relay/pkg/sloger"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

type key int

// EventTraceID holds a trace id derived from an event so every span for that event shares one trace.
var EventTraceID key

// ClientRequestIDHeader is honored when callers supply their own request id.
const ClientRequestIDHeader = "x-ms-client-request-id"

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		otelhttp.NewMiddleware(fmt.Sprintf("%s %s", r.Method, r.URL.Path))(next).ServeHTTP(rw, r)
	})
}

// AddRequestIDContext puts a logger carrying the request id, and the trace id when one is active, into the request context.
func AddRequestIDContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(ClientRequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := sloger.SetRequestID(r.Context(), id)
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			ctx = sloger.WithContext(ctx, "trace_id", sc.TraceID().String())
		}
		rw.Header().Set(ClientRequestIDHeader, id)
		next.ServeHTTP(rw, r.WithContext(ctx))
	})
}
