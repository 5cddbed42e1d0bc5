package storage

import (
	"errors"
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

var ErrFileNotFound = errors.New("stored file not found")

// FileStore Keeps uploaded image bytes keyed by their stored filename
type FileStore struct {
	fs afero.Fs
}

// NewFileStore Create a file store rooted at the given directory on disk
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create storage root %s: %w", root, err)
	}
	log.Info(fmt.Sprintf("Storing uploaded files under %s", root))
	return NewFileStoreFs(afero.NewBasePathFs(afero.NewOsFs(), root)), nil
}

// NewFileStoreFs Create a file store on top of an arbitrary afero filesystem
func NewFileStoreFs(fs afero.Fs) *FileStore {
	return &FileStore{fs: fs}
}

// Save Write src under name, failing if the name is taken
func (s *FileStore) Save(name string, src io.Reader) (int64, error) {
	f, err := s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("cannot create %s: %w", name, err)
	}

	written, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(name)
		return 0, fmt.Errorf("cannot write %s: %w", name, err)
	}
	return written, nil
}

// Open Open a stored file for reading, together with its size
func (s *FileStore) Open(name string) (afero.File, int64, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, ErrFileNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// Exists Whether name is already stored
func (s *FileStore) Exists(name string) bool {
	ok, err := afero.Exists(s.fs, name)
	return err == nil && ok
}

// Delete Remove a stored file, missing files are not an error
func (s *FileStore) Delete(name string) error {
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
