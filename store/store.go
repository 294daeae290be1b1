// Package store persists daily ranking batches keyed by calendar date.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aluiziolira/go-best-rank/models"
)

// ErrNotFound is returned by Read when no batch exists for the date.
var ErrNotFound = errors.New("batch not found")

// Store is the date-keyed batch store. Write replaces a date wholesale.
type Store interface {
	Write(ctx context.Context, date time.Time, records []models.ProductRecord) error
	Read(ctx context.Context, date time.Time) (models.DailyBatch, error)
	ReadRange(ctx context.Context, start, end time.Time) ([]models.DailyBatch, error)
}

// PersistenceError wraps a storage failure. It is fatal to a run.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Key: key, Err: err}
}

// readRange walks start..end inclusive and skips dates without a batch.
func readRange(ctx context.Context, s Store, start, end time.Time) ([]models.DailyBatch, error) {
	var batches []models.DailyBatch
	for day := models.DateOf(start); !day.After(models.DateOf(end)); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := s.Read(ctx, day)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, nil
}
