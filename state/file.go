package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Repository loads and saves the gate state document. Implementations must
// replace the whole document on Save.
type Repository interface {
	Load(ctx context.Context) (*GateState, error)
	Save(ctx context.Context, st *GateState) error
}

// FileRepository persists the state as a single JSON document. An advisory
// flock on a sidecar file is held for the repository lifetime so two
// invocations cannot mutate the document concurrently.
type FileRepository struct {
	path     string
	lockFile *os.File
}

// NewFileRepository opens (and locks) the state file at path. The lock is
// released by Close.
func NewFileRepository(path string) (*FileRepository, error) {
	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open state lock: %w", err)
	}
	if err := syscall.Flock(int(lock.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		lock.Close()
		return nil, fmt.Errorf("another invocation holds the state lock: %w", err)
	}
	return &FileRepository{path: path, lockFile: lock}, nil
}

// Close releases the state lock.
func (r *FileRepository) Close() error {
	if r.lockFile == nil {
		return nil
	}
	syscall.Flock(int(r.lockFile.Fd()), syscall.LOCK_UN)
	return r.lockFile.Close()
}

// Load reads the state document. A missing, empty or corrupt file yields a
// fresh default state rather than an error.
func (r *FileRepository) Load(ctx context.Context) (*GateState, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return New(), nil
	}

	st := &GateState{}
	if err := json.Unmarshal(data, st); err != nil {
		return New(), nil
	}
	st.Normalize()
	return st, nil
}

// Save trims retention and atomically replaces the state document.
func (r *FileRepository) Save(ctx context.Context, st *GateState) error {
	st.Normalize()
	st.Trim()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
