package storeaz

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const BlobEndpointSuffix = ".blob.core.windows.net"

var (
	ErrInvalidURL  = errors.New("invalid azure blob storage url")
	ErrInvalidPath = errors.New("invalid path in url")
)

// BlobLocator identifies one blob within a storage account.
type BlobLocator struct {
	Account   string
	Container string
	Object    string
}

func (l BlobLocator) String() string {
	return fmt.Sprintf("https://%s%s/%s/%s", l.Account, BlobEndpointSuffix, l.Container, l.Object)
}

// ParseBlobURL splits a url like https://account.blob.core.windows.net/container/folder/file.txt
// into (account, container, folder/file.txt).
//
// The object key comes from net/url's decoded Path, so percent escapes are decoded there
// and nothing else is normalized. A host with an explicit port does not match the endpoint
// suffix and is rejected.
func ParseBlobURL(rawURL string) (BlobLocator, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return BlobLocator{}, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if u.Scheme != "https" {
		return BlobLocator{}, fmt.Errorf("%w: scheme must be https, got %q", ErrInvalidURL, u.Scheme)
	}

	if !strings.HasSuffix(u.Host, BlobEndpointSuffix) {
		return BlobLocator{}, fmt.Errorf("%w: host %q is not a blob endpoint", ErrInvalidURL, u.Host)
	}
	account := strings.Split(u.Host, ".")[0]

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return BlobLocator{}, fmt.Errorf("%w: %q needs a container and a blob name", ErrInvalidPath, u.Path)
	}

	return BlobLocator{
		Account:   account,
		Container: parts[0],
		Object:    strings.Join(parts[1:], "/"),
	}, nil
}
