package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

type cartBlob struct {
	data      []byte
	updatedAt time.Time
}

type cartStorageInMemory struct {
	mu    sync.RWMutex
	blobs map[string]cartBlob
	now   func() time.Time
}

// NewCartStorage создаёт in-memory хранилище корзин.
func NewCartStorage() domain.CartStorage {
	return newCartStorage(func() time.Time { return time.Now().UTC() })
}

func newCartStorage(now func() time.Time) *cartStorageInMemory {
	return &cartStorageInMemory{
		blobs: make(map[string]cartBlob),
		now:   now,
	}
}

func (s *cartStorageInMemory) Load(_ context.Context, sessionID string) ([]byte, error) {
	sessionID = strings.TrimSpace(sessionID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	blob, ok := s.blobs[sessionID]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return append([]byte(nil), blob.data...), nil
}

func (s *cartStorageInMemory) Save(_ context.Context, sessionID string, data []byte) error {
	sessionID = strings.TrimSpace(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[sessionID] = cartBlob{
		data:      append([]byte(nil), data...),
		updatedAt: s.now(),
	}
	return nil
}

func (s *cartStorageInMemory) Delete(_ context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, sessionID)
	return nil
}

func (s *cartStorageInMemory) DeleteStale(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, blob := range s.blobs {
		if !blob.updatedAt.Before(before) {
			continue
		}

		delete(s.blobs, id)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}

	return removed, nil
}

var _ domain.CartStorage = (*cartStorageInMemory)(nil)
