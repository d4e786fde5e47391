package database

import (
	"context"
	"fmt"

	"proxysieve/internal/domain"
)

const recordInsertBatchSize = 500

// ResultStore persists pipeline output. All writes are chunk-sized so a run
// truncated by the overall deadline still leaves every finalized record on
// disk.
type ResultStore struct {
	db dbHandle
}

type dbHandle interface {
	create(ctx context.Context, value any) error
	createInBatches(ctx context.Context, value any, batchSize int) error
	save(ctx context.Context, value any) error
}

type gormHandle struct{}

func (gormHandle) create(ctx context.Context, value any) error {
	return DB.WithContext(ctx).Create(value).Error
}

func (gormHandle) createInBatches(ctx context.Context, value any, batchSize int) error {
	return DB.WithContext(ctx).CreateInBatches(value, batchSize).Error
}

func (gormHandle) save(ctx context.Context, value any) error {
	return DB.WithContext(ctx).Save(value).Error
}

// NewResultStore returns a store backed by the shared gorm connection, or a
// no-op store when no database was configured: persistence is a collaborator
// of the pipeline, never a prerequisite.
func NewResultStore() *ResultStore {
	if DB == nil {
		return &ResultStore{}
	}
	return &ResultStore{db: gormHandle{}}
}

// BeginRun inserts the initial run summary and fills in its ID.
func (s *ResultStore) BeginRun(ctx context.Context, summary *domain.RunSummary) error {
	if s.db == nil {
		return nil
	}
	if err := s.db.create(ctx, summary); err != nil {
		return fmt.Errorf("result store: begin run: %w", err)
	}
	return nil
}

// SaveRecords persists one chunk's worth of finalized acceptance records.
func (s *ResultStore) SaveRecords(ctx context.Context, runID uint64, records []domain.AcceptanceRecord) error {
	if s.db == nil || len(records) == 0 {
		return nil
	}
	for i := range records {
		records[i].RunID = runID
	}
	if err := s.db.createInBatches(ctx, records, recordInsertBatchSize); err != nil {
		return fmt.Errorf("result store: insert records: %w", err)
	}
	return nil
}

// FinishRun writes the final counters onto the run summary.
func (s *ResultStore) FinishRun(ctx context.Context, summary *domain.RunSummary) error {
	if s.db == nil {
		return nil
	}
	if err := s.db.save(ctx, summary); err != nil {
		return fmt.Errorf("result store: finish run: %w", err)
	}
	return nil
}
