package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"reflect"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-playground/validator/v10"

	"github.com/jsamuelsen/quote-sync/internal/domain"
)

// ExportFilename is the suggested name of an exported document.
const ExportFilename = "quotes.json"

// Document is an exported quote collection.
type Document struct {
	Body     []byte
	Filename string
	// ETag is the quoted xxhash64 of Body.
	ETag  string
	Count int
}

// ImportResult summarises a successful import.
type ImportResult struct {
	Imported    int `json:"imported"`
	AssignedIDs int `json:"assignedIds"`
}

// importRecord holds the fields every imported element must carry.
type importRecord struct {
	Text     string `json:"text" validate:"required"`
	Category string `json:"category" validate:"required"`
}

var importValidate = newImportValidator()

func newImportValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})

	return v
}

// Export serialises the full collection as indented JSON.
func (s *QuoteService) Export(ctx context.Context) (Document, error) {
	quotes := s.store.Snapshot()

	body, err := json.MarshalIndent(quotes, "", "  ")
	if err != nil {
		return Document{}, fmt.Errorf("encoding export: %w", err)
	}

	s.logger.DebugContext(ctx, "quotes exported", slog.Int("count", len(quotes)))

	return Document{
		Body:     body,
		Filename: ExportFilename,
		ETag:     fmt.Sprintf(`"%016x"`, xxhash.Sum64(body)),
		Count:    len(quotes),
	}, nil
}

// Import replaces the collection with the quotes in body.
// Any malformed element rejects the whole document and the store is left unchanged.
func (s *QuoteService) Import(ctx context.Context, body []byte) (ImportResult, error) {
	assigned := 0

	m := Mutation[[]byte, []domain.Quote, ImportResult]{
		Name: "import_quotes",
		Check: func(_ context.Context, body []byte) error {
			return checkDocument(body)
		},
		Prepare: func(_ context.Context, body []byte) ([]domain.Quote, error) {
			quotes, err := decodeDocument(body)
			if err != nil {
				return nil, err
			}

			stamp := s.now().UnixMilli()
			for i := range quotes {
				if quotes[i].ID == "" {
					quotes[i].ID = fmt.Sprintf("imported_%d_%s", stamp, randomSuffix())
					assigned++
				}

				if quotes[i].Timestamp == 0 {
					quotes[i].Timestamp = stamp
				}
			}

			return quotes, nil
		},
		Verify: func(_ context.Context, _ []byte, quotes []domain.Quote) error {
			seen := make(map[string]int, len(quotes))
			for i, q := range quotes {
				if first, dup := seen[q.ID]; dup {
					return domain.NewElementValidationError(i, "id",
						fmt.Sprintf("duplicates the id of element %d", first))
				}

				seen[q.ID] = i
			}

			return nil
		},
		Commit: func(ctx context.Context, _ []byte, quotes []domain.Quote) error {
			return s.store.Replace(ctx, quotes)
		},
		Report: func(_ []byte, quotes []domain.Quote) ImportResult {
			return ImportResult{Imported: len(quotes), AssignedIDs: assigned}
		},
	}

	return Apply(ctx, s.mutator, m, body)
}

// checkDocument rejects anything that is not a JSON array.
func checkDocument(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return domain.NewFormatError("document is empty")
	}

	if !json.Valid(trimmed) {
		return domain.NewFormatError("document is not valid JSON")
	}

	if trimmed[0] != '[' {
		return domain.NewFormatError("document is not a JSON array")
	}

	return nil
}

func decodeDocument(body []byte) ([]domain.Quote, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, domain.NewFormatError(err.Error())
	}

	quotes := make([]domain.Quote, 0, len(elements))

	for i, raw := range elements {
		q, err := decodeElement(i, raw)
		if err != nil {
			return nil, err
		}

		quotes = append(quotes, q)
	}

	return quotes, nil
}

func decodeElement(index int, raw json.RawMessage) (domain.Quote, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return domain.Quote{}, domain.NewElementValidationError(index, "", "must be an object")
	}

	var rec importRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.Quote{}, domain.NewElementValidationError(index, typeErr.Field, "must be a string")
		}

		return domain.Quote{}, domain.NewElementValidationError(index, "", err.Error())
	}

	if err := importValidate.Struct(rec); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return domain.Quote{}, domain.NewElementValidationError(index, fieldErrs[0].Field(), "is required")
		}

		return domain.Quote{}, domain.NewElementValidationError(index, "", err.Error())
	}

	var q domain.Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return domain.Quote{}, domain.NewElementValidationError(index, verr.Field, verr.Message)
		}

		return domain.Quote{}, domain.NewElementValidationError(index, "", err.Error())
	}

	if err := q.Validate(); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return domain.Quote{}, domain.NewElementValidationError(index, verr.Field, verr.Message)
		}

		return domain.Quote{}, err
	}

	return q, nil
}

func randomSuffix() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	var b strings.Builder
	for range 9 {
		b.WriteByte(alphabet[rand.IntN(len(alphabet))])
	}

	return b.String()
}
