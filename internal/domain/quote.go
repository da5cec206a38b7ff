package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Quote is the unit of data managed by the service.
// Timestamp is the creation or modification time in Unix milliseconds.
type Quote struct {
	ID        string `json:"id,omitempty"`
	Text      string `json:"text"`
	Category  string `json:"category"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Validate checks that the quote carries non-blank text and category.
func (q Quote) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return NewValidationError("text", "must not be empty")
	}

	if strings.TrimSpace(q.Category) == "" {
		return NewValidationError("category", "must not be empty")
	}

	return nil
}

// SameContent reports whether two records agree on every compared field.
// Timestamps and ids are not compared.
func (q Quote) SameContent(other Quote) bool {
	return q.Text == other.Text && q.Category == other.Category
}

// UnmarshalJSON accepts the id as either a JSON string or a JSON number.
func (q *Quote) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		Text      string          `json:"text"`
		Category  string          `json:"category"`
		Timestamp int64           `json:"timestamp"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := decodeID(raw.ID)
	if err != nil {
		return err
	}

	*q = Quote{ID: id, Text: raw.Text, Category: raw.Category, Timestamp: raw.Timestamp}

	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}

		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", NewValidationErrorWithValue("id", "must be a string or number", string(raw))
	}

	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}

	return n.String(), nil
}

// Display is the presentation-ready form of a quote.
type Display struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// String joins both lines of the display.
func (d Display) String() string {
	return d.Text + "\n" + d.Category
}

// Render converts a quote to its display form.
func Render(q Quote) Display {
	return Display{
		Text:     `"` + q.Text + `"`,
		Category: "— " + q.Category,
	}
}
