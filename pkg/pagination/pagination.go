// Package pagination implements the keyset paging used by the order history
// endpoints. Pages are keyed on (created_at, id) so inserts between requests
// never shift or duplicate rows, and the position is handed to clients as an
// opaque token.
package pagination

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is the page size used when the client sends none.
	DefaultLimit = 25
	// MaxLimit caps the page size a client may request.
	MaxLimit = 100
)

// Params carries the paging inputs as they arrive from a request.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor marks the last row of a served page.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// Encode renders the cursor as the opaque token handed to clients.
func (c Cursor) Encode() string {
	raw := c.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + c.ID.String()
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// Decode parses a client token back into a cursor. An empty token means the
// first page and yields a nil cursor.
func Decode(token string) (*Cursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}
	createdAt, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, fmt.Errorf("malformed cursor")
	}

	cursor := Cursor{}
	if cursor.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("cursor timestamp: %w", err)
	}
	if cursor.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("cursor id: %w", err)
	}
	return &cursor, nil
}

// Clamp folds a requested limit into the allowed range.
func Clamp(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// FetchSize is the row count to query for a page: one past the clamped limit,
// so the extra row signals that another page exists.
func FetchSize(limit int) int {
	return Clamp(limit) + 1
}
