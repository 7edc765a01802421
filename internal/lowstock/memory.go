package lowstock

import (
	"context"
	"sync"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
)

// DefaultMemoryCapacity bounds the in-process alert buffer.
const DefaultMemoryCapacity = 500

// memoryRepository is a bounded ring buffer. Contents do not survive a restart.
type memoryRepository struct {
	mu   sync.Mutex
	buf  []models.LowStockAlert
	next int
	size int
}

// NewMemoryRepository keeps at most capacity alerts, evicting the oldest.
func NewMemoryRepository(capacity int) AlertRepository {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &memoryRepository{buf: make([]models.LowStockAlert, capacity)}
}

func (m *memoryRepository) Latest(_ context.Context, key AlertKey) (*models.LowStockAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, alert := range m.newestFirst() {
		if key.matches(alert) {
			found := alert
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memoryRepository) Insert(_ context.Context, alert *models.LowStockAlert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf[m.next] = *alert
	m.next = (m.next + 1) % len(m.buf)
	if m.size < len(m.buf) {
		m.size++
	}
	return nil
}

func (m *memoryRepository) Recent(_ context.Context, limit int) ([]models.LowStockAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.newestFirst()
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (m *memoryRepository) DeleteForKeys(_ context.Context, productIDs []uuid.UUID, slugs []string) (int64, error) {
	ids := make(map[uuid.UUID]struct{}, len(productIDs))
	for _, id := range productIDs {
		ids[id] = struct{}{}
	}
	names := make(map[string]struct{}, len(slugs))
	for _, slug := range slugs {
		names[slug] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]models.LowStockAlert, 0, m.size)
	var removed int64
	// oldest first so the rebuilt buffer keeps insertion order
	rows := m.newestFirst()
	for i := len(rows) - 1; i >= 0; i-- {
		alert := rows[i]
		if alert.ProductID != nil {
			if _, ok := ids[*alert.ProductID]; ok {
				removed++
				continue
			}
		}
		if alert.Slug != nil {
			if _, ok := names[*alert.Slug]; ok {
				removed++
				continue
			}
		}
		kept = append(kept, alert)
	}
	capacity := len(m.buf)
	m.buf = make([]models.LowStockAlert, capacity)
	copy(m.buf, kept)
	m.size = len(kept)
	m.next = len(kept) % capacity
	return removed, nil
}

// newestFirst must be called with mu held.
func (m *memoryRepository) newestFirst() []models.LowStockAlert {
	out := make([]models.LowStockAlert, 0, m.size)
	for i := 1; i <= m.size; i++ {
		idx := (m.next - i + len(m.buf)) % len(m.buf)
		out = append(out, m.buf[idx])
	}
	return out
}
