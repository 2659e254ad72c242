package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Scope names the listing a cursor pages through.
type Scope string

const (
	ScopeDatasets Scope = "datasets"
)

// Cursor is the opaque pagination token (pre-encoding) with short field names to
// minimize payload size. It is serialized to minified JSON and encoded with URL-safe base64.
//
// Fields:
//   - v:   version of the cursor schema
//   - sc:  listing scope
//   - src: optional data source filter
//   - off: offset into the ordered listing
//   - ps:  page size
//   - n:   listing length when the cursor was issued
//   - iat: issued-at timestamp (unix seconds)
type Cursor struct {
	V   int    `json:"v"`
	Sc  Scope  `json:"sc"`
	Src string `json:"src,omitempty"`
	Off int    `json:"off"`
	Ps  int    `json:"ps"`
	N   int    `json:"n"`
	Iat int64  `json:"iat"`
}

// EncodeCursor serializes and encodes the cursor as URL-safe base64 (without padding).
func EncodeCursor(c Cursor) (string, error) {
	if err := validate(&c); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor decodes a URL-safe base64 token and parses the JSON cursor.
func DecodeCursor(token string) (*Cursor, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil, errors.New("cursor: empty token")
	}
	data, err := base64.RawURLEncoding.DecodeString(t)
	if err != nil {
		return nil, fmt.Errorf("cursor: invalid base64: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cursor: invalid json: %w", err)
	}
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// validate performs structural checks and defaulting.
func validate(c *Cursor) error {
	if c.V <= 0 {
		c.V = 1
	}
	if c.Iat == 0 {
		c.Iat = time.Now().Unix()
	}
	switch c.Sc {
	case ScopeDatasets:
	default:
		return fmt.Errorf("cursor: invalid scope %q", string(c.Sc))
	}
	if c.Off < 0 {
		return errors.New("cursor: off must be >= 0")
	}
	if c.Ps <= 0 {
		return errors.New("cursor: ps must be > 0")
	}
	if c.N < 0 {
		return errors.New("cursor: n must be >= 0")
	}
	return nil
}

// NextOffset computes the next offset after returning n items.
func NextOffset(curr, n int) int {
	if curr < 0 {
		curr = 0
	}
	if n <= 0 {
		return curr
	}
	return curr + n
}

// Page returns the [start, end) bounds of one page over total items and the
// cursor for the following page, or nil when the listing is exhausted.
func Page(c Cursor, total int) (start, end int, next *Cursor) {
	start = min(max(c.Off, 0), total)
	end = min(start+c.Ps, total)
	if end < total {
		n := c
		n.Off = NextOffset(c.Off, end-start)
		n.N = total
		n.Iat = 0
		next = &n
	}
	return start, end, next
}
