package triggers

import (
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/cdcgov/blob-relay/internal/models"
	"github.com/cdcgov/blob-relay/pkg/sloger"
) // .import

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

const (
	MsgFetchFailed  = "Failed to fetch data"
	MsgCopyFailed   = "Failed to copy data to bucket"
	MsgScriptOK     = "Shell script executed successfully."
	MsgScriptFailed = "Error executing the shell script: "
)

func respond(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	w.Write(body)
}

func respondText(w http.ResponseWriter, status int, msg string) {
	respond(w, status, models.CONTENT_TYPE_TEXT, []byte(msg))
}
