// Package pagination implements keyset cursors over (created_at, id) for
// newest-first listings.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HeaderNextCursor carries the cursor for the following page.
const HeaderNextCursor = "X-Next-Cursor"

// Cursor points at the last row of the previous page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Clamp returns def for non-positive limits and caps the result at max.
func Clamp(limit, def, max int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		return max
	}
	return limit
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	payload := fmt.Sprintf("%s|%s", c.CreatedAt.UTC().Format(time.RFC3339Nano), c.ID.String())
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes a token from Encode. An empty token yields nil.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}
	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid cursor id: %w", err)
	}
	return &Cursor{CreatedAt: t.UTC(), ID: id}, nil
}

// After restricts q to rows strictly older than c in (created_at DESC, id DESC) order.
func After(q *gorm.DB, c *Cursor) *gorm.DB {
	if c == nil {
		return q
	}
	return q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
}

// Next returns the cursor for the page after rows when the page is full.
func Next(count, limit int, last func() (time.Time, uuid.UUID)) string {
	if limit <= 0 || count < limit {
		return ""
	}
	createdAt, id := last()
	return Cursor{CreatedAt: createdAt, ID: id}.Encode()
}
