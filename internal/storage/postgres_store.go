package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"counterparty-reconciliation/internal/models"
	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"

	_ "github.com/lib/pq"
)

const createRecordSetsTable = `
	CREATE TABLE IF NOT EXISTS reconciliation_record_sets (
		name       TEXT PRIMARY KEY,
		payload    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

const upsertRecordSet = `
	INSERT INTO reconciliation_record_sets (name, payload, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
`

// PostgresStore keeps each record set as one JSONB row. SaveLedger writes
// matches and history in a single transaction.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

// NewPostgresStore opens a lib/pq connection and ensures the table exists
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "store.dsn", dsn, nil)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "store.dsn", "<redacted>", err)
	}

	store, err := NewPostgresStoreFromDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStoreFromDB wraps an already opened database handle
func NewPostgresStoreFromDB(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, errors.StorageError(errors.CodeStorageRead, "connection", err)
	}
	if _, err := db.ExecContext(ctx, createRecordSetsTable); err != nil {
		return nil, errors.StorageError(errors.CodeStorageWrite, "schema", err)
	}

	return &PostgresStore{
		db:     db,
		logger: logger.WithComponent("storage").WithField("driver", "postgres"),
	}, nil
}

func (s *PostgresStore) LoadAliases(ctx context.Context) ([]models.CounterpartyAlias, error) {
	aliases := []models.CounterpartyAlias{}
	if err := s.load(ctx, RecordSetAliases, &aliases); err != nil {
		return nil, err
	}
	return aliases, nil
}

func (s *PostgresStore) SaveAliases(ctx context.Context, aliases []models.CounterpartyAlias) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeStorageWrite, RecordSetAliases, err)
	}
	if err := s.save(ctx, tx, RecordSetAliases, aliases); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.StorageError(errors.CodeStorageWrite, RecordSetAliases, err)
	}
	return nil
}

func (s *PostgresStore) LoadMatches(ctx context.Context) ([]models.FlexibleMatch, error) {
	matches := []models.FlexibleMatch{}
	if err := s.load(ctx, RecordSetMatches, &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

func (s *PostgresStore) LoadHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	history := []models.HistoryEntry{}
	if err := s.load(ctx, RecordSetHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (s *PostgresStore) SaveLedger(ctx context.Context, matches []models.FlexibleMatch, history []models.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError(errors.CodeStorageWrite, RecordSetMatches, err)
	}
	if err := s.save(ctx, tx, RecordSetHistory, history); err != nil {
		tx.Rollback()
		return err
	}
	if err := s.save(ctx, tx, RecordSetMatches, matches); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.StorageError(errors.CodeStorageWrite, RecordSetMatches, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) load(ctx context.Context, recordSet string, target interface{}) error {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM reconciliation_record_sets WHERE name = $1`, recordSet,
	).Scan(&payload)

	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		s.logger.WithError(err).WithField("record_set", recordSet).Error("Failed to load record set")
		return errors.StorageError(errors.CodeStorageRead, recordSet, err)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return errors.StorageError(errors.CodeStorageRead, recordSet, fmt.Errorf("decode payload: %w", err))
	}
	return nil
}

func (s *PostgresStore) save(ctx context.Context, tx *sql.Tx, recordSet string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return errors.StorageError(errors.CodeStorageWrite, recordSet, err)
	}
	if _, err := tx.ExecContext(ctx, upsertRecordSet, recordSet, payload); err != nil {
		s.logger.WithError(err).WithField("record_set", recordSet).Error("Failed to save record set")
		return errors.StorageError(errors.CodeStorageWrite, recordSet, err)
	}
	return nil
}
