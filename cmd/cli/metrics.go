package cli

import (
	"context"
	"time"

	"github.com/cdcgov/blob-relay/internal/delivery"
	"github.com/cdcgov/blob-relay/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
) // .import

const queuePollInterval = 30 * time.Second

func setupMetrics(ctx context.Context, pollInterval time.Duration, m ...prometheus.Collector) {
	if err := metrics.RegisterMetrics(append(metrics.DefaultMetrics, delivery.SpeedHistograms)...); err != nil {
		logger.Warn("metrics already registered", "error", err)
	}
	if len(m) > 0 {
		if err := metrics.RegisterMetrics(m...); err != nil {
			logger.Warn("failed to register extra metrics", "error", err)
		}
	}

	metrics.DefaultPoller.Start(ctx, pollInterval)
} // setupMetrics
