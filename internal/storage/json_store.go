package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"
)

// JSONFileStore keeps one JSON document per record set in a directory.
// Writes go to a temporary file that is renamed over the target, so a crash
// never leaves a half-written record set behind.
type JSONFileStore struct {
	dir    string
	mu     sync.Mutex
	logger logger.Logger
}

// NewJSONFileStore creates the directory if needed
func NewJSONFileStore(dir string) (*JSONFileStore, error) {
	if dir == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "store.path", dir, nil)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.FileError(errors.CodeFilePermission, dir, err)
	}

	return &JSONFileStore{
		dir:    dir,
		logger: logger.WithComponent("storage").WithField("driver", "json"),
	}, nil
}

// Dir returns the directory holding the record sets
func (s *JSONFileStore) Dir() string {
	return s.dir
}

func (s *JSONFileStore) path(recordSet string) string {
	return filepath.Join(s.dir, recordSet+".json")
}

func (s *JSONFileStore) LoadAliases(ctx context.Context) ([]models.CounterpartyAlias, error) {
	aliases := []models.CounterpartyAlias{}
	if err := s.load(RecordSetAliases, &aliases); err != nil {
		return nil, err
	}
	return aliases, nil
}

func (s *JSONFileStore) SaveAliases(ctx context.Context, aliases []models.CounterpartyAlias) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(RecordSetAliases, aliases)
}

func (s *JSONFileStore) LoadMatches(ctx context.Context) ([]models.FlexibleMatch, error) {
	matches := []models.FlexibleMatch{}
	if err := s.load(RecordSetMatches, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func (s *JSONFileStore) LoadHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	history := []models.HistoryEntry{}
	if err := s.load(RecordSetHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// SaveLedger writes history before matches: after a crash between the two
// renames the trail may mention an action whose match file is one step behind,
// never the reverse.
func (s *JSONFileStore) SaveLedger(ctx context.Context, matches []models.FlexibleMatch, history []models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(RecordSetHistory, history); err != nil {
		return err
	}
	return s.save(RecordSetMatches, matches)
}

func (s *JSONFileStore) Close() error { return nil }

func (s *JSONFileStore) load(recordSet string, target interface{}) error {
	data, err := os.ReadFile(s.path(recordSet))
	if os.IsNotExist(err) {
		s.logger.WithField("record_set", recordSet).Debug("Record set absent, starting empty")
		return nil
	}
	if err != nil {
		return errors.StorageError(errors.CodeStorageRead, recordSet, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return errors.StorageError(errors.CodeStorageRead, recordSet, fmt.Errorf("decode %s: %w", s.path(recordSet), err))
	}
	return nil
}

func (s *JSONFileStore) save(recordSet string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.StorageError(errors.CodeStorageWrite, recordSet, err)
	}

	tmp, err := os.CreateTemp(s.dir, recordSet+"-*.tmp")
	if err != nil {
		return errors.StorageError(errors.CodeStorageWrite, recordSet, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.StorageError(errors.CodeStorageWrite, recordSet, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.StorageError(errors.CodeStorageWrite, recordSet, err)
	}
	if err := os.Rename(tmpName, s.path(recordSet)); err != nil {
		os.Remove(tmpName)
		return errors.StorageError(errors.CodeStorageWrite, recordSet, err)
	}

	s.logger.WithFields(logger.Fields{"record_set": recordSet, "bytes": len(data)}).Debug("Record set saved")
	return nil
}
