package store

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/aluiziolira/go-best-rank/models"
)

// FileStore keeps one CSV file per date under the output layout.
type FileStore struct {
	layout Layout
	loc    *time.Location
}

// NewFileStore returns a store rooted at dir. Dates are read back in loc.
func NewFileStore(dir string, loc *time.Location) *FileStore {
	if loc == nil {
		loc = time.Local
	}
	return &FileStore{layout: Layout{Root: dir}, loc: loc}
}

// Layout exposes the artifact layout the store writes into.
func (s *FileStore) Layout() Layout {
	return s.layout
}

// Write replaces the batch for date.
func (s *FileStore) Write(ctx context.Context, date time.Time, records []models.ProductRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	date = models.DateOf(date.In(s.loc))
	path := s.layout.DailyCSV(date)
	err := WriteFileAtomic(path, func(w io.Writer) error {
		return WriteRecordsCSV(w, records)
	})
	return persistErr("write", path, err)
}

// Read loads the batch for date, or ErrNotFound.
func (s *FileStore) Read(ctx context.Context, date time.Time) (models.DailyBatch, error) {
	if err := ctx.Err(); err != nil {
		return models.DailyBatch{}, err
	}
	date = models.DateOf(date.In(s.loc))
	path := s.layout.DailyCSV(date)

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.DailyBatch{}, ErrNotFound
	}
	if err != nil {
		return models.DailyBatch{}, persistErr("read", path, err)
	}
	defer f.Close()

	records, err := ReadRecordsCSV(f, s.loc)
	if err != nil {
		return models.DailyBatch{}, persistErr("read", path, err)
	}
	return models.DailyBatch{Date: date, Records: records}, nil
}

// ReadRange returns the existing batches between start and end inclusive.
func (s *FileStore) ReadRange(ctx context.Context, start, end time.Time) ([]models.DailyBatch, error) {
	return readRange(ctx, s, start.In(s.loc), end.In(s.loc))
}
