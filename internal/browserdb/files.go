package browserdb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileAccessor gives the coordinator access to the directory holding the
// database file. Names are relative to that directory.
type FileAccessor interface {
	// Path returns the absolute path of name, creating the directory when
	// needed.
	Path(name string) (string, error)
	Stat(name string) (fs.FileInfo, error)
	// Move renames from to to, replacing to.
	Move(from, to string) error
	// Remove deletes name; a missing file is not an error.
	Remove(name string) error
	// Touch sets the modification time of name.
	Touch(name string, t time.Time) error
}

// DirAccessor is a FileAccessor over a directory on the local file system.
type DirAccessor struct {
	Dir string
}

var _ FileAccessor = DirAccessor{}

func (d DirAccessor) Path(name string) (string, error) {
	dir, err := filepath.Abs(d.Dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", d.Dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory %s: %w", dir, err)
	}
	return filepath.Join(dir, name), nil
}

func (d DirAccessor) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(filepath.Join(d.Dir, name))
}

func (d DirAccessor) Move(from, to string) error {
	return os.Rename(filepath.Join(d.Dir, from), filepath.Join(d.Dir, to))
}

func (d DirAccessor) Remove(name string) error {
	err := os.Remove(filepath.Join(d.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (d DirAccessor) Touch(name string, t time.Time) error {
	return os.Chtimes(filepath.Join(d.Dir, name), t, t)
}
