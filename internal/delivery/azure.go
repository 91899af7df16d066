package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/cdcgov/blob-relay/internal/aadtoken"
	"github.com/cdcgov/blob-relay/internal/models"
	"github.com/cdcgov/blob-relay/internal/storeaz"
	"github.com/cdcgov/blob-relay/pkg/sloger"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const BlobAPIVersionHeader = "x-ms-version"

// AzureHTTPSource reads blobs with a plain authenticated GET against the blob REST endpoint.
type AzureHTTPSource struct {
	Client     *http.Client
	Tokens     aadtoken.Acquirer
	APIVersion string
}

func NewAzureHTTPSource(tokens aadtoken.Acquirer, apiVersion string, timeout time.Duration) *AzureHTTPSource {
	return &AzureHTTPSource{
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Tokens:     tokens,
		APIVersion: apiVersion,
	}
}

func (s *AzureHTTPSource) Fetch(ctx context.Context, fileURL string) (*Object, error) {
	logger := sloger.FromContext(ctx)

	token, err := s.Tokens.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build blob request for %s: %w", fileURL, err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	req.Header.Set(BlobAPIVersionHeader, s.APIVersion)

	resp, err := s.Client.Do(req)
	if err != nil {
		logger.Error("blob request failed", "url", fileURL, "error", err)
		return nil, fmt.Errorf("blob request to %s failed: %w", fileURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading blob response from %s: %w", fileURL, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		logger.Error("blob request returned non success status",
			"url", fileURL,
			"status", resp.StatusCode,
			"headers", resp.Header,
		)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			if c, ok := s.Tokens.(*aadtoken.CachingAcquirer); ok {
				c.Invalidate()
			}
		}
		return nil, &StatusError{
			URL:        fileURL,
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
		}
	}

	logger.Info("fetched blob", "url", fileURL, "size", humanize.Bytes(uint64(len(body))))
	return &Object{
		Content:     body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// AzureSDKSource reads blobs through an azblob client built from a connection string.
type AzureSDKSource struct {
	Client *azblob.Client
	// DefaultContainer is probed by the health check; without it only the account is probed.
	DefaultContainer string
}

// locate resolves a blob url to its container and blob name. The url must name the account the client was built for.
func (s *AzureSDKSource) locate(fileURL string) (string, string, error) {
	loc, err := storeaz.ParseBlobURL(fileURL)
	if err != nil {
		return "", "", err
	}
	account, err := clientAccount(s.Client.URL())
	if err != nil {
		return "", "", err
	}
	if !strings.EqualFold(loc.Account, account) {
		return "", "", fmt.Errorf("%w: account %q does not match the connection string account %q", storeaz.ErrInvalidURL, loc.Account, account)
	}
	return loc.Container, loc.Object, nil
}

// clientAccount reads the account name from a service url, host style or ip style (emulators).
func clientAccount(serviceURL string) (string, error) {
	parts, err := azblob.ParseURL(serviceURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse blob service url %s: %w", serviceURL, err)
	}
	if parts.IPEndpointStyleInfo.AccountName != "" {
		return parts.IPEndpointStyleInfo.AccountName, nil
	}
	host, _, _ := strings.Cut(parts.Host, ".")
	return host, nil
}

func (s *AzureSDKSource) Fetch(ctx context.Context, fileURL string) (*Object, error) {
	logger := sloger.FromContext(ctx)

	container, blobName, err := s.locate(fileURL)
	if err != nil {
		return nil, err
	}

	resp, err := s.Client.DownloadStream(ctx, container, blobName, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			logger.Error("blob download returned non success status",
				"container", container,
				"blob", blobName,
				"status", respErr.StatusCode,
				"error_code", respErr.ErrorCode,
			)
			return nil, statusErrorFromResponse(fileURL, respErr)
		}
		return nil, fmt.Errorf("blob download of %s/%s failed: %w", container, blobName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading blob %s/%s: %w", container, blobName, err)
	}

	obj := &Object{Content: body}
	if resp.ContentType != nil {
		obj.ContentType = *resp.ContentType
	}
	logger.Info("downloaded blob", "container", container, "blob", blobName, "size", humanize.Bytes(uint64(len(body))))
	return obj, nil
}

func statusErrorFromResponse(fileURL string, respErr *azcore.ResponseError) *StatusError {
	se := &StatusError{
		URL:        fileURL,
		StatusCode: respErr.StatusCode,
	}
	if respErr.RawResponse != nil {
		se.Header = respErr.RawResponse.Header
		if respErr.RawResponse.Body != nil {
			// azcore buffers the payload so it can be read again here
			se.Body, _ = io.ReadAll(respErr.RawResponse.Body)
		}
	}
	return se
}

func (s *AzureSDKSource) Health(ctx context.Context) models.ServiceHealthResp {
	return storeaz.NewAzureHealthCheck(s.Client, s.DefaultContainer).Health(ctx)
}
