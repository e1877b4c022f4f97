package filestore

import (
	"context"
	"fmt"

	"github.com/sakif/clickforcharity/internal/apperror"
	"github.com/sakif/clickforcharity/internal/model"
	"github.com/sakif/clickforcharity/internal/repository"
)

var _ repository.RunRecorder = (*Store)(nil)

// RecordRun overwrites the status file with run.
func (s *Store) RecordRun(ctx context.Context, run *model.RunStatus) error {
	unlock := s.locks.Lock("status")
	defer unlock()

	if err := writeJSON(s.statusFile, run); err != nil {
		return fmt.Errorf("filestore: writing resolver status: %w", err)
	}
	return nil
}

// LastRun reads the status file. It returns apperror.ErrNotFound when the
// resolver has never run.
func (s *Store) LastRun(ctx context.Context) (*model.RunStatus, error) {
	var run model.RunStatus
	if err := readJSON(s.statusFile, &run); err != nil {
		if isNotExist(err) {
			return nil, apperror.NotFound("resolver status", "last")
		}
		return nil, fmt.Errorf("filestore: reading resolver status: %w", err)
	}
	return &run, nil
}
