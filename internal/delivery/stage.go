package delivery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const StagedFileMode fs.FileMode = 0600

// StagedFile is a transient local copy of fetched blob content.
type StagedFile struct {
	Path string
}

// Stage writes content to a new uuid named .tmp file in dir, or the os temp dir when dir is empty.
func Stage(dir string, content []byte) (*StagedFile, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: staging dir %s: %w", ErrUploadFailure, dir, err)
	}

	p := filepath.Join(dir, uuid.NewString()+".tmp")
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, StagedFileMode)
	if err != nil {
		return nil, fmt.Errorf("%w: create staged file: %w", ErrUploadFailure, err)
	}

	staged := &StagedFile{Path: p}
	_, werr := f.Write(content)
	if err := errors.Join(werr, f.Close()); err != nil {
		return nil, errors.Join(fmt.Errorf("%w: write staged file: %w", ErrUploadFailure, err), staged.Remove())
	}
	return staged, nil
}

// Remove deletes the staged file. Removing an already deleted file is not an error.
func (s *StagedFile) Remove() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove staged file %s: %w", s.Path, err)
	}
	return nil
}

// WithStagedFile stages content, hands the path to use and removes the file on every return path.
func WithStagedFile(dir string, content []byte, use func(path string) error) (err error) {
	staged, err := Stage(dir, content)
	if err != nil {
		return err
	}
	defer func() {
		if rmErr := staged.Remove(); rmErr != nil {
			logger.Warn("staged file left behind", "path", staged.Path, "error", rmErr)
			err = errors.Join(err, rmErr)
		}
	}()
	return use(staged.Path)
}
