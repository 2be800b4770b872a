// Package docstore is the hierarchical document store behind pocketbook.
//
// Collections are addressed by slash paths with an odd number of segments
// ("books", "Year/2024/Months", "loans/l1/payments"); documents by
// (collection, id). Implementations: docstore/mongo for production and
// docstore/memstore for tests and single-process runs.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/pocketbook/apperr"
)

// Fields is the body of a document.
type Fields = map[string]any

// Document is one stored document. JSON renders it flat, with "id" next to the fields.
type Document struct {
	ID     string `json:"id"`
	Fields Fields `json:"fields"`
}

func (d Document) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(d.Fields)+1)
	for k, v := range d.Fields {
		m[k] = v
	}
	m["id"] = d.ID
	return json.Marshal(m)
}

func (d *Document) UnmarshalJSON(b []byte) error {
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	id, _ := m["id"].(string)
	delete(m, "id")
	d.ID, d.Fields = id, m
	return nil
}

// Get returns a field value, nil when absent.
func (d Document) Get(field string) any {
	if d.Fields == nil {
		return nil
	}
	return d.Fields[field]
}

// PageQuery selects one page of a collection in id order.
type PageQuery struct {
	Size       int    // <= 0 => DefaultPageSize
	StartAfter string // exclusive cursor: id of the last document of the previous page
}

// ListView names the cached view of a whole collection as []Document.
const ListView = "docs"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

func (q PageQuery) Limit() int {
	switch {
	case q.Size <= 0:
		return DefaultPageSize
	case q.Size > MaxPageSize:
		return MaxPageSize
	default:
		return q.Size
	}
}

// Page is one page of documents plus collection-wide totals.
type Page struct {
	Data         []Document `json:"data"`
	LastDocID    string     `json:"last_doc_id"`
	TotalPages   int        `json:"total_pages"`
	TotalRecords int64      `json:"total_records"`
}

// NewPage fills the cursor and totals for docs taken with limit from a collection of total documents.
func NewPage(docs []Document, limit int, total int64) Page {
	p := Page{Data: docs, TotalRecords: total}
	if p.Data == nil {
		p.Data = []Document{}
	}
	if len(docs) > 0 {
		p.LastDocID = docs[len(docs)-1].ID
	}
	if limit > 0 {
		p.TotalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return p
}

// Store is the document store. Every method is safe for concurrent use.
// Errors are *apperr.Error: NotFound, Conflict, InvalidInput, BackendUnavailable
// or Transaction; anything else is Internal.
type Store interface {
	Get(ctx context.Context, coll, id string) (Document, error)
	// List streams the whole collection in id order.
	List(ctx context.Context, coll string) ([]Document, error)
	Page(ctx context.Context, coll string, q PageQuery) (Page, error)
	Count(ctx context.Context, coll string) (int64, error)
	// Collections lists top-level collection names that hold at least one document.
	Collections(ctx context.Context) ([]string, error)

	// Create fails with Conflict when the id exists.
	Create(ctx context.Context, coll, id string, f Fields) error
	// Add stores f under a generated id and returns it.
	Add(ctx context.Context, coll string, f Fields) (string, error)
	// Set replaces the document, or merges into it when merge is true. Creates when absent.
	Set(ctx context.Context, coll, id string, f Fields, merge bool) error
	// Update merges f into an existing document; NotFound when absent.
	Update(ctx context.Context, coll, id string, f Fields) error
	// ArrayUnion appends values missing from the array field, creating the document when absent.
	ArrayUnion(ctx context.Context, coll, id, field string, values ...any) error
	// Delete is idempotent.
	Delete(ctx context.Context, coll, id string) error

	// RunTransaction runs fn atomically. fn may be called more than once when
	// the store detects a conflicting concurrent write; it must not have side
	// effects outside tx. Reads must precede writes.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Close(ctx context.Context) error
}

// Tx is the view of the store inside RunTransaction.
type Tx interface {
	Get(ctx context.Context, coll, id string) (Document, error)
	Create(ctx context.Context, coll, id string, f Fields) error
	Set(ctx context.Context, coll, id string, f Fields) error
	Update(ctx context.Context, coll, id string, f Fields) error
	Delete(ctx context.Context, coll, id string) error
}

// Join builds a collection path: Join("Year", "2024", "Months") == "Year/2024/Months".
func Join(segments ...string) string { return strings.Join(segments, "/") }

// ValidCollection checks a collection path: non-empty segments, odd count.
func ValidCollection(coll string) error {
	if coll == "" {
		return apperr.E(apperr.InvalidInput, "docstore", "collection is required")
	}
	segs := strings.Split(coll, "/")
	if len(segs)%2 == 0 {
		return apperr.Errorf(apperr.InvalidInput, "docstore", "%q is a document path, not a collection", coll)
	}
	for _, s := range segs {
		if s == "" {
			return apperr.Errorf(apperr.InvalidInput, "docstore", "empty segment in %q", coll)
		}
	}
	return nil
}

// ValidID checks a document id.
func ValidID(id string) error {
	if id == "" {
		return apperr.E(apperr.InvalidInput, "docstore", "document id is required")
	}
	if strings.Contains(id, "/") {
		return apperr.Errorf(apperr.InvalidInput, "docstore", "document id %q contains '/'", id)
	}
	return nil
}

// Validate checks a (collection, id) pair; implementations call it before any IO.
func Validate(coll, id string) error {
	if err := ValidCollection(coll); err != nil {
		return err
	}
	return ValidID(id)
}

// TopLevel returns the first segment of a collection path.
func TopLevel(coll string) string {
	if i := strings.IndexByte(coll, '/'); i >= 0 {
		return coll[:i]
	}
	return coll
}

// NotFound builds the standard missing-document error.
func NotFound(op, coll, id string) error {
	return apperr.Errorf(apperr.NotFound, op, "document %s/%s not found", coll, id)
}

// Exists builds the standard duplicate-document error.
func Exists(op, coll, id string) error {
	return apperr.Errorf(apperr.Conflict, op, "document %s/%s already exists", coll, id)
}

// ArrayContains reports whether arr holds a value equal to v (by JSON rendering,
// so 1 and 1.0 match, and maps compare by content).
func ArrayContains(arr []any, v any) bool {
	want, err := json.Marshal(v)
	if err != nil {
		return false
	}
	for _, e := range arr {
		got, err := json.Marshal(e)
		if err == nil && string(got) == string(want) {
			return true
		}
	}
	return false
}

// ToValue converts documents to a tree of plain values for structured codecs.
func ToValue(docs []Document) (any, error) {
	b, err := json.Marshal(docs)
	if err != nil {
		return nil, err
	}
	var out []any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromValue is the inverse of ToValue.
func FromValue(v any) ([]Document, error) {
	list, ok := v.([]any)
	if !ok && v != nil {
		return nil, fmt.Errorf("docstore: expected list, got %T", v)
	}
	out := make([]Document, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("docstore: expected object, got %T", e)
		}
		id, _ := m["id"].(string)
		f := make(Fields, len(m))
		for k, v := range m {
			if k != "id" {
				f[k] = v
			}
		}
		out = append(out, Document{ID: id, Fields: f})
	}
	return out, nil
}
