package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"reflect"
	"strings"

	"github.com/cdcgov/blob-relay/internal/aadtoken"
	"github.com/cdcgov/blob-relay/internal/storeaz"
	"github.com/cdcgov/blob-relay/pkg/sloger"
)

var (
	ErrFetchFailure  = errors.New("failed to fetch blob")
	ErrEmptyContent  = fmt.Errorf("%w: blob content is empty", ErrFetchFailure)
	ErrUploadFailure = errors.New("failed to copy data to bucket")
)

var logger *slog.Logger

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

// Object is a fetched blob held in memory.
type Object struct {
	Content     []byte
	ContentType string
}

type Source interface {
	Fetch(ctx context.Context, fileURL string) (*Object, error)
}

type Destination interface {
	Upload(ctx context.Context, localPath string, objectName string) error
}

// StatusError is a non-success answer from blob storage. Body is the raw provider payload.
type StatusError struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("blob request to %s returned status %d", e.URL, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrFetchFailure
}

// Job tracks one transfer from a blob url to a bucket object.
type Job struct {
	SourceURL   string
	StagingPath string
	ObjectName  string
}

// ObjectName is the base name of the url path, used as the destination object name.
func ObjectName(fileURL string) string {
	p := fileURL
	if u, err := url.Parse(fileURL); err == nil && u.Path != "" {
		p = u.Path
	}
	return path.Base(p)
}

const (
	ClassInvalidURL       = "InvalidUrl"
	ClassInvalidPath      = "InvalidPath"
	ClassAuthFailure      = "AuthFailure"
	ClassFetchFailure     = "FetchFailure"
	ClassUploadFailure    = "UploadFailure"
	ClassTransportFailure = "TransportFailure"
)

// ErrorClass maps an error from any stage of a transfer to a stable label for logs and metrics.
func ErrorClass(err error) string {
	switch {
	case errors.Is(err, storeaz.ErrInvalidPath):
		return ClassInvalidPath
	case errors.Is(err, storeaz.ErrInvalidURL):
		return ClassInvalidURL
	case errors.Is(err, aadtoken.ErrAuthFailure):
		return ClassAuthFailure
	case errors.Is(err, ErrUploadFailure):
		return ClassUploadFailure
	case errors.Is(err, ErrFetchFailure):
		return ClassFetchFailure
	default:
		return ClassTransportFailure
	}
}
