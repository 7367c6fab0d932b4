package storage

import (
	"bytes"
	"os"
	"sync"

	"github.com/rescp17/lanTFTP/pkg/concurrency"
)

// Memory is an in-process backend, mostly useful in tests.
type Memory struct {
	mu      sync.RWMutex
	files   map[string][]byte
	writers *concurrency.KeyedGuard
}

func NewMemory() *Memory {
	return &Memory{
		files:   make(map[string][]byte),
		writers: concurrency.NewKeyedGuard(),
	}
}

// Put stores content under name, replacing any previous file.
func (m *Memory) Put(name string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append([]byte(nil), content...)
}

// Get returns a copy of the stored file.
func (m *Memory) Get(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.files[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

func (m *Memory) OpenForRead(name string) (Source, error) {
	if _, err := SanitizeName(name); err != nil {
		return nil, err
	}
	b, ok := m.Get(name)
	if !ok {
		return nil, ErrNotFound
	}
	return &memorySource{Reader: bytes.NewReader(b), size: int64(len(b))}, nil
}

func (m *Memory) OpenForWrite(name string) (Sink, error) {
	if _, err := SanitizeName(name); err != nil {
		return nil, err
	}
	release, err := m.writers.TryAcquire(name)
	if err != nil {
		return nil, ErrBusy
	}
	return &memorySink{m: m, name: name, release: release}, nil
}

type memorySource struct {
	*bytes.Reader
	size int64
}

func (s *memorySource) Size() int64  { return s.size }
func (s *memorySource) Close() error { return nil }

type memorySink struct {
	m       *Memory
	name    string
	buf     bytes.Buffer
	release func()
	done    bool
}

func (s *memorySink) Write(p []byte) (int, error) {
	if s.done {
		return 0, os.ErrClosed
	}
	return s.buf.Write(p)
}

func (s *memorySink) Commit() error {
	if s.done {
		return os.ErrClosed
	}
	s.done = true
	defer s.release()
	s.m.Put(s.name, s.buf.Bytes())
	return nil
}

func (s *memorySink) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	s.release()
	return nil
}
