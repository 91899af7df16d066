package delivery

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cdcgov/blob-relay/pkg/sloger"
)

type BucketWriter interface {
	NewWriter(ctx context.Context, object string) io.WriteCloser
}

// GCSDestination uploads staged files to a google cloud storage bucket.
type GCSDestination struct {
	Bucket     BucketWriter
	BucketName string
}

func (d *GCSDestination) Upload(ctx context.Context, localPath string, objectName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailure, err)
	}
	defer f.Close()

	w := d.Bucket.NewWriter(ctx, objectName)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("%w: writing gs://%s/%s: %w", ErrUploadFailure, d.BucketName, objectName, err)
	}
	// the object is only committed on close
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: finalizing gs://%s/%s: %w", ErrUploadFailure, d.BucketName, objectName, err)
	}

	sloger.FromContext(ctx).Info("uploaded object to bucket", "bucket", d.BucketName, "object", objectName)
	return nil
}
