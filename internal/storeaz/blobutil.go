package storeaz

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/cdcgov/blob-relay/pkg/sloger"
)

var (
	logger *slog.Logger

	errConnectionStringEmpty = errors.New("error blob storage connection string from app config is empty")
)

func init() {
	type Empty struct{}
	pkgParts := strings.Split(reflect.TypeOf(Empty{}).PkgPath(), "/")
	// add package name to app logger
	logger = sloger.With("pkg", pkgParts[len(pkgParts)-1])
}

// NewBlobClientFromConnectionString returns an azure blob client for the account in the connection string.
func NewBlobClientFromConnectionString(connectionString string, transport policy.Transporter) (*azblob.Client, error) {
	if len(strings.TrimSpace(connectionString)) == 0 {
		return nil, errConnectionStringEmpty
	} // .if

	opts := &azblob.ClientOptions{}
	if transport != nil {
		opts.ClientOptions = azcore.ClientOptions{Transport: transport}
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, opts)
	if err != nil {
		return nil, err
	} // .if

	logger.Info("created blob client from connection string", "url", client.URL())
	return client, nil
} // .NewBlobClientFromConnectionString
