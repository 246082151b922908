// Package repository persists import batches and provides the unit of work
// the committer runs inside.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerkeep/ledgerkeep/internal/domain/ledger"
)

// BatchStatus is the lifecycle state of an import batch.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// ImportBatch records one uploaded statement file and how its import went.
type ImportBatch struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Filename     string
	RowCount     int
	SuccessCount int
	ErrorCount   int
	Status       BatchStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BatchRepository persists import batches.
type BatchRepository interface {
	Create(ctx context.Context, batch *ImportBatch) error
	Finish(ctx context.Context, id uuid.UUID, status BatchStatus, successCount int) error
}

// PostgresBatchRepository implements BatchRepository using PostgreSQL.
type PostgresBatchRepository struct {
	db ledger.DBTX
}

// NewPostgresBatchRepository creates a new PostgreSQL batch repository.
func NewPostgresBatchRepository(db ledger.DBTX) *PostgresBatchRepository {
	return &PostgresBatchRepository{db: db}
}

// Create inserts a new batch record.
func (r *PostgresBatchRepository) Create(ctx context.Context, batch *ImportBatch) error {
	if batch.ID == uuid.Nil {
		batch.ID = uuid.New()
	}
	if batch.Status == "" {
		batch.Status = BatchProcessing
	}

	query := `
		INSERT INTO import_batches (id, user_id, filename, row_count, success_count, error_count, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		batch.ID,
		batch.UserID,
		batch.Filename,
		batch.RowCount,
		batch.SuccessCount,
		batch.ErrorCount,
		batch.Status,
	).Scan(&batch.CreatedAt, &batch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import batch: %w", err)
	}
	return nil
}

// Finish records the outcome of a commit attempt.
func (r *PostgresBatchRepository) Finish(ctx context.Context, id uuid.UUID, status BatchStatus, successCount int) error {
	query := `
		UPDATE import_batches
		SET status = $2, success_count = $3, updated_at = now()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, status, successCount)
	if err != nil {
		return fmt.Errorf("failed to finish import batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("import batch %s not found", id)
	}
	return nil
}
