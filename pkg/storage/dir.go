package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/rescp17/lanTFTP/internal/util"
	"github.com/rescp17/lanTFTP/pkg/concurrency"
)

// Dir serves files from a single flat directory.
type Dir struct {
	root    string
	writers *concurrency.KeyedGuard
}

// NewDir returns a backend rooted at root, creating the directory if needed.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := util.EnsureDirectory(abs); err != nil {
		return nil, fmt.Errorf("storage root: %w", err)
	}
	return &Dir{root: abs, writers: concurrency.NewKeyedGuard()}, nil
}

// Root is the absolute directory files are served from.
func (d *Dir) Root() string { return d.root }

// Path returns the on-disk path for a sanitized name.
func (d *Dir) Path(name string) (string, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, clean), nil
}

func (d *Dir) OpenForRead(name string) (Source, error) {
	path, err := d.Path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotFound
	}
	return &fileSource{File: f, size: info.Size()}, nil
}

// OpenForWrite claims name for this process and, through a lock file, against
// other processes sharing the directory. A second writer gets ErrBusy.
func (d *Dir) OpenForWrite(name string) (Sink, error) {
	path, err := d.Path(name)
	if err != nil {
		return nil, err
	}

	release, err := d.writers.TryAcquire(name)
	if err != nil {
		return nil, ErrBusy
	}

	lockPath := filepath.Join(d.root, "."+name+".lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		release()
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	if !locked {
		release()
		return nil, ErrBusy
	}

	return &fileSink{
		dir:      d.root,
		name:     name,
		final:    path,
		lock:     lock,
		lockPath: lockPath,
		release:  release,
	}, nil
}

type fileSource struct {
	*os.File
	size int64
}

func (s *fileSource) Size() int64 { return s.size }

// fileSink writes into a hidden temporary file next to the destination,
// created on first use, and renames it into place on Commit.
type fileSink struct {
	dir      string
	name     string
	final    string
	tmp      *os.File
	lock     *flock.Flock
	lockPath string
	release  func()

	once sync.Once
	done bool
}

func (s *fileSink) open() error {
	if s.tmp != nil {
		return nil
	}
	f, err := os.CreateTemp(s.dir, "."+s.name+".*.part")
	if err != nil {
		return err
	}
	s.tmp = f
	return nil
}

func (s *fileSink) Write(p []byte) (int, error) {
	if s.done {
		return 0, os.ErrClosed
	}
	if err := s.open(); err != nil {
		return 0, err
	}
	return s.tmp.Write(p)
}

func (s *fileSink) Commit() error {
	if s.done {
		return os.ErrClosed
	}
	defer s.unlock()
	s.done = true

	if err := s.open(); err != nil {
		return err
	}
	tmpName := s.tmp.Name()
	if err := s.tmp.Sync(); err != nil {
		s.tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := s.tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		slog.Warn("failed to set file mode", "file", s.name, "error", err)
	}
	if err := os.Rename(tmpName, s.final); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *fileSink) Abort() error {
	if s.done {
		return nil
	}
	defer s.unlock()
	s.done = true

	if s.tmp == nil {
		return nil
	}
	tmpName := s.tmp.Name()
	s.tmp.Close()
	if err := os.Remove(tmpName); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileSink) unlock() {
	s.once.Do(func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Warn("failed to release write lock", "file", s.name, "error", err)
		}
		os.Remove(s.lockPath)
		s.release()
	})
}
