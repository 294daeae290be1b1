package store

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-best-rank/models"
)

// CachedStore keeps recently read batches in memory. Writes invalidate the date.
// Returned batches share memory with the cache and must not be modified.
type CachedStore struct {
	next  Store
	loc   *time.Location
	cache *lru.Cache[string, models.DailyBatch]
}

// NewCachedStore wraps next with an LRU of size batches. loc must be the zone
// next uses to resolve dates.
func NewCachedStore(next Store, loc *time.Location, size int) (*CachedStore, error) {
	cache, err := lru.New[string, models.DailyBatch](size)
	if err != nil {
		return nil, fmt.Errorf("create batch cache: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &CachedStore{next: next, loc: loc, cache: cache}, nil
}

func (c *CachedStore) key(date time.Time) string {
	return models.DateKey(models.DateOf(date.In(c.loc)))
}

func (c *CachedStore) Write(ctx context.Context, date time.Time, records []models.ProductRecord) error {
	key := c.key(date)
	c.cache.Remove(key)
	if err := c.next.Write(ctx, date, records); err != nil {
		return err
	}
	c.cache.Remove(key)
	return nil
}

func (c *CachedStore) Read(ctx context.Context, date time.Time) (models.DailyBatch, error) {
	key := c.key(date)
	if batch, ok := c.cache.Get(key); ok {
		return batch, nil
	}
	batch, err := c.next.Read(ctx, date)
	if err != nil {
		return models.DailyBatch{}, err
	}
	c.cache.Add(key, batch)
	return batch, nil
}

func (c *CachedStore) ReadRange(ctx context.Context, start, end time.Time) ([]models.DailyBatch, error) {
	return readRange(ctx, c, start, end)
}

// Len reports the number of cached batches.
func (c *CachedStore) Len() int {
	return c.cache.Len()
}
