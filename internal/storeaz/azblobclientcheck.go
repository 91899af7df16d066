package storeaz

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/cdcgov/blob-relay/internal/models"
) // .import

type AzureBlobHealthCheck struct {
	client    *azblob.Client
	container string
}

func NewAzureHealthCheck(client *azblob.Client, container string) *AzureBlobHealthCheck {
	return &AzureBlobHealthCheck{
		client:    client,
		container: container,
	}
}

func (c *AzureBlobHealthCheck) Health(ctx context.Context) models.ServiceHealthResp {
	return checkAzBlobClient(ctx, models.AZ_SOURCE_HEALTH_PREFIX, c.client, c.container)
}

// checkAzBlobClient, method for checking still valid and working the azure blob client for a storage
func checkAzBlobClient(ctx context.Context, prefix string, client *azblob.Client, container string) models.ServiceHealthResp {

	var shr models.ServiceHealthResp
	shr.Service = prefix

	// guard client is null
	if client == nil {
		shr.Status = models.STATUS_DOWN
		shr.HealthIssue = models.AZ_BLOB_CLIENT_NA
		return shr
	} // .if

	if container == "" {
		// no default container, only the account can be probed
		_, err := client.ServiceClient().GetProperties(ctx, nil)
		if err != nil {
			return shr.BuildErrorResponse(err)
		}
		shr.Status = models.STATUS_UP
		shr.HealthIssue = models.HEALTH_ISSUE_NONE
		return shr
	}

	_, err := client.ServiceClient().NewContainerClient(container).GetProperties(ctx, nil)

	var responseErr *azcore.ResponseError
	if errors.As(err, &responseErr) && responseErr.StatusCode == http.StatusNotFound {
		return shr.BuildErrorResponse(fmt.Errorf("container %s not found", container))
	} // .if

	if err != nil {
		return shr.BuildErrorResponse(err)
	} // .if

	shr.Status = models.STATUS_UP
	shr.HealthIssue = models.HEALTH_ISSUE_NONE
	return shr
} // .checkAzBlobClient
