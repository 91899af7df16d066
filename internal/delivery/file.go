package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cdcgov/blob-relay/internal/models"
)

// FileDestination copies staged files into a local folder, used when running in local mode.
type FileDestination struct {
	ToPath string
	Name   string
}

func (fd *FileDestination) Upload(_ context.Context, localPath string, objectName string) error {
	if err := os.MkdirAll(fd.ToPath, 0755); err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailure, err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailure, err)
	}
	defer src.Close()

	dest, err := os.Create(filepath.Join(fd.ToPath, filepath.Base(objectName)))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailure, err)
	}
	if _, err := io.Copy(dest, src); err != nil {
		dest.Close()
		return fmt.Errorf("%w: %w", ErrUploadFailure, err)
	}
	if err := dest.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrUploadFailure, err)
	}
	return nil
}

func (fd *FileDestination) Health(_ context.Context) (rsp models.ServiceHealthResp) {
	rsp.Service = "File Delivery Target " + fd.Name
	info, err := os.Stat(fd.ToPath)
	if err != nil {
		rsp.Status = models.STATUS_DOWN
		rsp.HealthIssue = err.Error()
		return rsp
	}
	if !info.IsDir() {
		rsp.Status = models.STATUS_DOWN
		rsp.HealthIssue = fmt.Sprintf("%s is not a directory", fd.ToPath)
		return rsp
	}
	rsp.Status = models.STATUS_UP
	rsp.HealthIssue = models.HEALTH_ISSUE_NONE
	return rsp
}
