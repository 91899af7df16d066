package storegcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/cdcgov/blob-relay/internal/models"
	"github.com/cdcgov/blob-relay/pkg/sloger"
	"google.golang.org/api/option"
) // .import

var logger *slog.Logger

var errKeyFileEmpty = errors.New("error google service account key file from app config is empty")

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

// NewClient returns a storage client authenticated with a service account key file.
func NewClient(ctx context.Context, keyFile string, opts ...option.ClientOption) (*storage.Client, error) {
	if strings.TrimSpace(keyFile) == "" {
		return nil, errKeyFileEmpty
	}
	opts = append([]option.ClientOption{option.WithCredentialsFile(keyFile)}, opts...)

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google storage client: %w", err)
	}
	logger.Info("created google storage client", "key_file", keyFile)
	return client, nil
} // .NewClient

// Bucket writes objects into one bucket.
type Bucket struct {
	Name   string
	handle *storage.BucketHandle
}

func NewBucket(client *storage.Client, name string) *Bucket {
	return &Bucket{
		Name:   name,
		handle: client.Bucket(name),
	}
}

func (b *Bucket) NewWriter(ctx context.Context, object string) io.WriteCloser {
	return b.handle.Object(object).NewWriter(ctx)
}

func (b *Bucket) Health(ctx context.Context) models.ServiceHealthResp {
	var shr models.ServiceHealthResp
	shr.Service = models.GCS_HEALTH_PREFIX + " " + b.Name

	if b.handle == nil {
		shr.Status = models.STATUS_DOWN
		shr.HealthIssue = "google storage bucket handle not available"
		return shr
	} // .if

	_, err := b.handle.Attrs(ctx)
	if errors.Is(err, storage.ErrBucketNotExist) {
		return shr.BuildErrorResponse(fmt.Errorf("bucket %s not found", b.Name))
	} // .if
	if err != nil {
		return shr.BuildErrorResponse(err)
	} // .if

	shr.Status = models.STATUS_UP
	shr.HealthIssue = models.HEALTH_ISSUE_NONE
	return shr
}
