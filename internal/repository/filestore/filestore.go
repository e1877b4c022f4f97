// Package filestore implements the repository interfaces on top of plain JSON
// files, one file per record.
//
// LAYOUT (under the data directory):
//
//	userdata/balances/<user>.txt              balance records
//	userdata/balances/conflicts_archive/      sync-conflict copies already merged
//	userdata/profiles/<user>.txt              profiles
//	ads/ simple-tasks/ complex-tasks/ banners/  one <id>.json per content item
//	status/last-resolve.json                  last conflict resolver run
//
// The directory is what the file-sync tool replicates between servers, so the
// file names and JSON shapes are part of the contract with older deployments.
//
// WRITES:
// Every write goes to a temp file in the same directory and is renamed over the
// target, so a reader (or the sync tool) never sees a half-written record.
// Read-modify-write cycles on one key are serialised with an in-process lock.
// Nothing serialises writers on different replicas; that divergence is what the
// conflict resolver repairs.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sakif/clickforcharity/internal/model"
)

const (
	balanceExt = ".txt"
	profileExt = ".txt"
	contentExt = ".json"

	// ArchiveDirName is where merged conflict copies are moved to.
	ArchiveDirName = "conflicts_archive"
)

// Store is the file-backed repository. One Store serves balances, profiles,
// content and the resolver status file.
type Store struct {
	root        string
	balancesDir string
	archiveDir  string
	profilesDir string
	statusFile  string

	locks *keyedMutex
	now   func() time.Time
}

// New creates the directory layout under root if needed and returns a Store.
func New(root string) (*Store, error) {
	s := &Store{
		root:        root,
		balancesDir: filepath.Join(root, "userdata", "balances"),
		profilesDir: filepath.Join(root, "userdata", "profiles"),
		statusFile:  filepath.Join(root, "status", "last-resolve.json"),
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
	s.archiveDir = filepath.Join(s.balancesDir, ArchiveDirName)

	dirs := []string{s.balancesDir, s.archiveDir, s.profilesDir, filepath.Dir(s.statusFile)}
	for _, k := range model.Kinds {
		dirs = append(dirs, s.kindDir(k))
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("filestore: creating %s: %w", d, err)
		}
	}
	return s, nil
}

// Root returns the data directory.
func (s *Store) Root() string { return s.root }

// BalancesDir returns the directory holding balance records and conflict copies.
func (s *Store) BalancesDir() string { return s.balancesDir }

func (s *Store) kindDir(k model.Kind) string {
	return filepath.Join(s.root, string(k))
}

// safeName rejects keys that would escape their directory.
func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.HasPrefix(name, ".")
}

// readJSON decodes path into v. A missing file surfaces as fs.ErrNotExist.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON writes v to path through a temp file and rename.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	err = os.Rename(tmpName, path)
	return err
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
