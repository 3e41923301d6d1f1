package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pricetracker/internal/models"
)

// MemoryStore implements Store in process memory. Used when no database is
// configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]models.TrackedItem
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]models.TrackedItem),
		now:   time.Now,
	}
}

// List returns all items ordered by creation time
func (s *MemoryStore) List(ctx context.Context) ([]models.TrackedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]models.TrackedItem, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// Create inserts a new item
func (s *MemoryStore) Create(ctx context.Context, item models.TrackedItem) (*models.TrackedItem, error) {
	item, err := prepare(item, s.now().UTC())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.SourceURL == item.SourceURL && existing.NotifyTarget == item.NotifyTarget {
			return nil, ErrDuplicate
		}
	}

	item.ID = uuid.NewString()
	s.items[item.ID] = item
	return &item, nil
}

// Get returns a single item
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.TrackedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

// UpdatePrice records a new observation for an item
func (s *MemoryStore) UpdatePrice(ctx context.Context, id string, price decimal.Decimal, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	item.LastKnownPrice = models.NormalizePrice(price)
	item.LastCheckedAt = checkedAt
	s.items[id] = item
	return nil
}

// DeleteAll removes every item
func (s *MemoryStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.items))
	s.items = make(map[string]models.TrackedItem)
	return n, nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
