package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor marks the last row of a page in a (created_at, id) keyset.
type Cursor struct {
	AfterID   string `json:"after_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// After builds the cursor that resumes listing after the given row.
func After(id string, createdAt time.Time) Cursor {
	return Cursor{AfterID: id, CreatedAt: createdAt.UTC().Format(time.RFC3339Nano)}
}

func (c Cursor) IsZero() bool { return c.AfterID == "" }

// Time parses CreatedAt. A cursor without a timestamp yields the zero time.
func (c Cursor) Time() (time.Time, error) {
	if c.CreatedAt == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, c.CreatedAt)
	if err != nil {
		return time.Time{}, ErrInvalidCursor
	}
	return t, nil
}

// Encode returns the opaque form of c, or "" for the zero cursor.
func Encode(c Cursor) string {
	if c.AfterID == "" {
		return ""
	}
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(b)
}

func Decode(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}

	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if _, err := c.Time(); err != nil {
		return Cursor{}, err
	}
	return c, nil
}
