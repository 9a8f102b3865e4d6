package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pixeltube/basecamp/internal/logging"
	"go.uber.org/zap"
)

var (
	// ErrCorrupt is returned by Begin when the backing file cannot be parsed
	ErrCorrupt = errors.New("store file is corrupt")

	// ErrSessionClosed is returned when a session is used after End
	ErrSessionClosed = errors.New("store session already ended")

	// ErrReadOnly is returned when a read-only session is written to
	ErrReadOnly = errors.New("store session is read-only")
)

// Namespace is a durable key/value map backed by a single YAML file.
//
// All access goes through a Session. A session reads the file when it begins
// and writes it back, atomically, when it ends. Sessions on the same
// namespace are serialized.
type Namespace struct {
	name string
	path string

	// mu is held for the lifetime of a session
	mu sync.Mutex

	openMu sync.Mutex
	open   int
}

// NewNamespace creates a namespace stored at path. The file is created on the
// first write.
func NewNamespace(name, path string) *Namespace {
	return &Namespace{name: name, path: path}
}

// Name returns the namespace name
func (n *Namespace) Name() string {
	return n.name
}

// Path returns the backing file path
func (n *Namespace) Path() string {
	return n.path
}

// OpenSessions returns the number of sessions that have begun and not ended.
func (n *Namespace) OpenSessions() int {
	n.openMu.Lock()
	defer n.openMu.Unlock()
	return n.open
}

// Begin opens a session. It blocks while another session on the namespace is
// open. If the file exists but cannot be parsed, Begin returns ErrCorrupt and
// no session is held.
func (n *Namespace) Begin(readOnly bool) (*Session, error) {
	n.mu.Lock()

	values, err := n.read()
	if err != nil {
		n.mu.Unlock()
		return nil, err
	}

	n.openMu.Lock()
	n.open++
	n.openMu.Unlock()

	logging.Debug("Store session opened",
		zap.String("namespace", n.name),
		zap.Bool("read_only", readOnly),
	)

	return &Session{ns: n, values: values, readOnly: readOnly}, nil
}

// Reset replaces the backing file with an empty map.
func (n *Namespace) Reset() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.write(map[string]string{})
}

func (n *Namespace) read() (map[string]string, error) {
	data, err := os.ReadFile(n.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s store: %w", n.name, err)
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, n.path, err)
	}
	if values == nil {
		values = map[string]string{}
	}
	return values, nil
}

// write stores values with a tmp file, fsync and rename so that a power loss
// leaves either the old or the new content on flash.
func (n *Namespace) write(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(n.path), 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal %s store: %w", n.name, err)
	}

	tmpPath := n.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temporary store file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary store file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temporary store file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary store file: %w", err)
	}

	if err := os.Rename(tmpPath, n.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save %s store: %w", n.name, err)
	}
	return nil
}

// Session is a scoped view of a namespace. Writes are buffered in memory
// and flushed by End.
type Session struct {
	ns       *Namespace
	values   map[string]string
	readOnly bool
	dirty    bool
	ended    bool
}

// String returns the value for key, or def if the key is not set.
func (s *Session) String(key, def string) string {
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// Uint returns the value for key parsed as an unsigned integer, or def if the
// key is not set or does not parse.
func (s *Session) Uint(key string, def uint) uint {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 0)
	if err != nil {
		return def
	}
	return uint(n)
}

// IsKeySet reports whether key has a value
func (s *Session) IsKeySet(key string) bool {
	_, ok := s.values[key]
	return ok
}

// PutString sets key to value
func (s *Session) PutString(key, value string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if cur, ok := s.values[key]; ok && cur == value {
		return nil
	}
	s.values[key] = value
	s.dirty = true
	return nil
}

// PutUint sets key to an unsigned integer value
func (s *Session) PutUint(key string, value uint) error {
	return s.PutString(key, strconv.FormatUint(uint64(value), 10))
}

// Remove deletes key
func (s *Session) Remove(key string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if _, ok := s.values[key]; ok {
		delete(s.values, key)
		s.dirty = true
	}
	return nil
}

// Clear removes every key in the namespace
func (s *Session) Clear() error {
	if err := s.writable(); err != nil {
		return err
	}
	if len(s.values) > 0 {
		s.values = map[string]string{}
		s.dirty = true
	}
	return nil
}

// Flush writes pending changes without ending the session
func (s *Session) Flush() error {
	if s.ended {
		return ErrSessionClosed
	}
	if !s.dirty {
		return nil
	}
	if err := s.ns.write(s.values); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// End flushes pending changes and releases the namespace. The namespace is
// released even if the flush fails. Calling End twice is a no-op.
func (s *Session) End() error {
	if s.ended {
		return nil
	}
	err := s.Flush()
	s.ended = true

	s.ns.openMu.Lock()
	s.ns.open--
	s.ns.openMu.Unlock()
	s.ns.mu.Unlock()

	logging.Debug("Store session closed", zap.String("namespace", s.ns.name))
	return err
}

func (s *Session) writable() error {
	if s.ended {
		return ErrSessionClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}
