package triggers

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/cdcgov/blob-relay/internal/delivery"
	"github.com/cdcgov/blob-relay/internal/models"
	"github.com/cdcgov/blob-relay/internal/storeaz"
	"github.com/cdcgov/blob-relay/pkg/sloger"
)

// ErrorMarker is the substring treated as a storage error body when marker sniffing is on.
var ErrorMarker = []byte("Error")

// HTTPTrigger fetches the blob named by the file_url query parameter, copies it to the bucket and echoes it back.
type HTTPTrigger struct {
	Relay          *delivery.Relay
	DefaultFileURL string
	// ErrorMarkerSniffing answers 500 for successful fetches whose content contains ErrorMarker.
	ErrorMarkerSniffing bool
	UploadEnabled       bool
}

func (h *HTTPTrigger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := sloger.FromContext(ctx)

	fileURL := r.URL.Query().Get("file_url")
	if fileURL == "" {
		fileURL = h.DefaultFileURL
	}
	logger.Info("http trigger processing request", "file_url", fileURL)

	loc, err := storeaz.ParseBlobURL(fileURL)
	if err != nil {
		logger.Warn("rejected file url", "file_url", fileURL, "error", err)
		respondText(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.Debug("parsed file url", "account", loc.Account, "container", loc.Container, "object", loc.Object)

	obj, err := h.Relay.Fetch(ctx, fileURL)
	var statusErr *delivery.StatusError
	if errors.As(err, &statusErr) && len(statusErr.Body) > 0 {
		respond(w, http.StatusInternalServerError, models.CONTENT_TYPE_XML, statusErr.Body)
		return
	}
	if err != nil {
		logger.Error("failed to fetch blob", "file_url", fileURL, "error_class", delivery.ErrorClass(err), "error", err)
		respondText(w, http.StatusInternalServerError, MsgFetchFailed)
		return
	}

	if h.ErrorMarkerSniffing && bytes.Contains(obj.Content, ErrorMarker) {
		logger.Error("blob content carries an error marker", "file_url", fileURL)
		respond(w, http.StatusInternalServerError, models.CONTENT_TYPE_XML, obj.Content)
		return
	}

	if h.UploadEnabled {
		if _, err := h.Relay.Deliver(ctx, fileURL, obj.Content); err != nil {
			respondText(w, http.StatusInternalServerError, MsgCopyFailed)
			return
		}
	}

	respond(w, http.StatusOK, models.CONTENT_TYPE_TEXT, obj.Content)
}
