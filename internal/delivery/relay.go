package delivery

import (
	"context"
	"time"

	"github.com/cdcgov/blob-relay/internal/metrics"
	"github.com/cdcgov/blob-relay/pkg/sloger"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
)

// Relay moves a blob to a bucket: fetch, stage, upload, cleanup.
type Relay struct {
	Source      Source
	Destination Destination
	// Target labels delivery metrics.
	Target        string
	StagingDir    string
	FetchTimeout  time.Duration
	UploadTimeout time.Duration
}

// Fetch reads the blob into memory. An empty blob is reported as ErrEmptyContent.
func (r *Relay) Fetch(ctx context.Context, fileURL string) (obj *Object, err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = ErrorClass(err)
		}
		metrics.FetchTotals.With(prometheus.Labels{"result": result}).Inc()
	}()

	if r.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.FetchTimeout)
		defer cancel()
	}

	obj, err = r.Source.Fetch(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	if len(obj.Content) == 0 {
		return nil, ErrEmptyContent
	}
	return obj, nil
}

// Deliver stages content and uploads it under the base name of fileURL. The staged file is gone when Deliver returns.
func (r *Relay) Deliver(ctx context.Context, fileURL string, content []byte) (job *Job, err error) {
	logger := sloger.FromContext(ctx)
	job = &Job{
		SourceURL:  fileURL,
		ObjectName: ObjectName(fileURL),
	}

	labels := prometheus.Labels{"target": r.Target}
	metrics.ActiveDeliveries.With(labels).Inc()
	defer metrics.ActiveDeliveries.With(labels).Dec()

	start := time.Now()
	err = WithStagedFile(r.StagingDir, content, func(p string) error {
		job.StagingPath = p
		logger.Debug("staged blob content", "path", p, "size", humanize.Bytes(uint64(len(content))))

		uploadCtx := ctx
		if r.UploadTimeout > 0 {
			var cancel context.CancelFunc
			uploadCtx, cancel = context.WithTimeout(ctx, r.UploadTimeout)
			defer cancel()
		}
		return r.Destination.Upload(uploadCtx, p, job.ObjectName)
	})
	dur := time.Since(start)

	if err != nil {
		metrics.DeliveryTotals.With(prometheus.Labels{"target": r.Target, "result": "failed"}).Inc()
		logger.Error("failed to deliver blob", "url", fileURL, "object", job.ObjectName, "error", err)
		return job, err
	}

	metrics.DeliveryTotals.With(prometheus.Labels{"target": r.Target, "result": "success"}).Inc()
	observeSpeed(r.Target, len(content), dur)
	logger.Info("delivered blob",
		"url", fileURL,
		"target", r.Target,
		"object", job.ObjectName,
		"size", humanize.Bytes(uint64(len(content))),
		"duration", dur.String(),
	)
	return job, nil
}

// Transfer runs Fetch and Deliver back to back.
func (r *Relay) Transfer(ctx context.Context, fileURL string) (*Object, error) {
	obj, err := r.Fetch(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	if _, err := r.Deliver(ctx, fileURL, obj.Content); err != nil {
		return obj, err
	}
	return obj, nil
}
