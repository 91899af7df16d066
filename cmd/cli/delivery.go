package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/cdcgov/blob-relay/internal/aadtoken"
	"github.com/cdcgov/blob-relay/internal/appconfig"
	"github.com/cdcgov/blob-relay/internal/delivery"
	"github.com/cdcgov/blob-relay/internal/health"
	"github.com/cdcgov/blob-relay/internal/metrics"
	"github.com/cdcgov/blob-relay/internal/storeaz"
	"github.com/cdcgov/blob-relay/internal/storegcs"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// azureTransport carries the outbound azure sdk traffic so it shows up in traces.
func azureTransport() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// NewSource builds the blob fetcher selected by FETCH_STRATEGY.
func NewSource(appConfig appconfig.AppConfig) (delivery.Source, error) {
	switch appConfig.FetchStrategy {
	case appconfig.FETCH_STRATEGY_SDK:
		client, err := storeaz.NewBlobClientFromConnectionString(appConfig.BlobStorage.ConnectionString, azureTransport())
		if err != nil {
			return nil, err
		}
		return &delivery.AzureSDKSource{
			Client:           client,
			DefaultContainer: appConfig.BlobStorage.ContainerName,
		}, nil
	case appconfig.FETCH_STRATEGY_HTTP:
		acquirer, err := aadtoken.NewClientCredentialAcquirer(appConfig.AzureApp, azureTransport())
		if err != nil {
			return nil, err
		}
		var tokens aadtoken.Acquirer = acquirer
		if appConfig.TokenCacheEnabled {
			tokens = aadtoken.NewCachingAcquirer(tokens)
		}
		return delivery.NewAzureHTTPSource(tokens, appConfig.BlobAPIVersion, appConfig.FetchTimeout), nil
	}
	return nil, fmt.Errorf("unsupported fetch strategy %q", appConfig.FetchStrategy)
}

// NewDestination builds the upload target selected by RUN_MODE and returns it with its target name.
func NewDestination(ctx context.Context, appConfig appconfig.AppConfig) (delivery.Destination, string, error) {
	switch appConfig.RunMode {
	case appconfig.RUN_MODE_CLOUD:
		client, err := storegcs.NewClient(ctx, appConfig.GoogleBucket.KeyFile)
		if err != nil {
			return nil, "", err
		}
		bucket := storegcs.NewBucket(client, appConfig.GoogleBucket.BucketName)
		if err := health.Register(bucket); err != nil {
			logger.Error("failed to register bucket health check", "error", err)
		}
		return &delivery.GCSDestination{
			Bucket:     bucket,
			BucketName: appConfig.GoogleBucket.BucketName,
		}, appConfig.GoogleBucket.BucketName, nil
	case appconfig.RUN_MODE_LOCAL:
		if err := os.MkdirAll(appConfig.LocalDeliveryFolder, 0755); err != nil {
			return nil, "", err
		}
		return &delivery.FileDestination{
			ToPath: appConfig.LocalDeliveryFolder,
			Name:   "local",
		}, "local", nil
	}
	return nil, "", fmt.Errorf("unsupported run mode %q", appConfig.RunMode)
}

// NewRelay wires the configured source and destination into a relay and registers their health checks.
func NewRelay(ctx context.Context, appConfig appconfig.AppConfig) (*delivery.Relay, error) {
	src, err := NewSource(appConfig)
	if err != nil {
		logger.Error("error configuring blob source", "strategy", appConfig.FetchStrategy, "error", err)
		return nil, err
	}
	if err := health.Register(src); err != nil {
		logger.Debug("blob source has no health check", "strategy", appConfig.FetchStrategy)
	}

	dest, target, err := NewDestination(ctx, appConfig)
	if err != nil {
		logger.Error("error configuring destination", "run_mode", appConfig.RunMode, "error", err)
		return nil, err
	}
	// the gcs bucket registers its own check
	if err := health.Register(dest); err != nil {
		logger.Debug("destination has no health check", "target", target)
	}
	metrics.ActiveDeliveries.With(prometheus.Labels{"target": target}).Set(0)
	logger.Info("registered relay", "strategy", appConfig.FetchStrategy, "target", target)

	return &delivery.Relay{
		Source:        src,
		Destination:   dest,
		Target:        target,
		StagingDir:    appConfig.StagingDir,
		FetchTimeout:  appConfig.FetchTimeout,
		UploadTimeout: appConfig.UploadTimeout,
	}, nil
}
