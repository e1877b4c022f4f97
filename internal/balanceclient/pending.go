package balanceclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sakif/clickforcharity/internal/model"
)

// GuestKey is the PendingStore key used in guest mode.
const GuestKey = "guest"

// PendingStore persists the unflushed net change per user.
type PendingStore interface {
	Load(key string) (int64, error)
	Save(key string, pending int64) error
}

// MemoryPendingStore keeps pending totals for the life of the process.
type MemoryPendingStore struct {
	mu sync.Mutex
	m  map[string]int64
}

var _ PendingStore = (*MemoryPendingStore)(nil)

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{m: make(map[string]int64)}
}

func (s *MemoryPendingStore) Load(key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *MemoryPendingStore) Save(key string, pending int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pending == 0 {
		delete(s.m, key)
		return nil
	}
	s.m[key] = pending
	return nil
}

// FilePendingStore keeps one small JSON file per user under dir.
type FilePendingStore struct {
	dir string
}

var _ PendingStore = (*FilePendingStore)(nil)

type pendingFile struct {
	NetChange int64 `json:"net_change"`
}

func NewFilePendingStore(dir string) (*FilePendingStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("balanceclient: creating %s: %w", dir, err)
	}
	return &FilePendingStore{dir: dir}, nil
}

func (s *FilePendingStore) path(key string) (string, error) {
	if key != GuestKey && !model.ValidUserID(key) {
		return "", fmt.Errorf("balanceclient: invalid pending key %q", key)
	}
	return filepath.Join(s.dir, key+".pending.json"), nil
}

// Load returns 0 when nothing is pending.
func (s *FilePendingStore) Load(key string) (int64, error) {
	path, err := s.path(key)
	if err != nil {
		return 0, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balanceclient: reading %s: %w", path, err)
	}
	var f pendingFile
	if err := json.Unmarshal(b, &f); err != nil {
		return 0, fmt.Errorf("balanceclient: decoding %s: %w", path, err)
	}
	return f.NetChange, nil
}

// Save writes through a temp file and rename so a crash never leaves a torn
// file. A zero total removes the file.
func (s *FilePendingStore) Save(key string, pending int64) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if pending == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("balanceclient: removing %s: %w", path, err)
		}
		return nil
	}

	b, err := json.Marshal(pendingFile{NetChange: pending})
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".pending-*")
	if err != nil {
		return fmt.Errorf("balanceclient: creating temp file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("balanceclient: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("balanceclient: closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("balanceclient: renaming into %s: %w", path, err)
	}
	return nil
}
