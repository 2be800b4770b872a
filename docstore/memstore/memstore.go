// Package memstore is an in-process docstore.Store.
//
// Documents are deep-copied on the way in and out. Every document carries a
// revision; transactions remember the revisions they read and commit only if
// none changed, retrying fn otherwise.
package memstore

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/docstore"
)

const DefaultMaxAttempts = 25

type Options struct {
	MaxAttempts int              // transaction attempts before giving up; <= 0 => DefaultMaxAttempts
	NewID       func() string    // generated ids for Add; default uuid.NewString
	Now         func() time.Time // default time.Now
}

type entry struct {
	fields  docstore.Fields
	rev     uint64
	updated time.Time
}

type Store struct {
	mu     sync.RWMutex
	colls  map[string]map[string]*entry
	rev    uint64
	closed bool

	maxAttempts int
	newID       func() string
	now         func() time.Time
}

var _ docstore.Store = (*Store)(nil)

// errConflict aborts an attempt whose read set changed before commit.
var errConflict = errors.New("memstore: conflicting write")

func New(opts Options) *Store {
	s := &Store{
		colls:       make(map[string]map[string]*entry),
		maxAttempts: opts.MaxAttempts,
		newID:       opts.NewID,
		now:         opts.Now,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Store) Get(ctx context.Context, coll, id string) (docstore.Document, error) {
	if err := docstore.Validate(coll, id); err != nil {
		return docstore.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return docstore.Document{}, err
	}
	e := s.lookup(coll, id)
	if e == nil {
		return docstore.Document{}, docstore.NotFound("memstore.get", coll, id)
	}
	return docstore.Document{ID: id, Fields: copyFields(e.fields)}, nil
}

func (s *Store) List(ctx context.Context, coll string) ([]docstore.Document, error) {
	if err := docstore.ValidCollection(coll); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	return s.scan(coll, "", 0), nil
}

func (s *Store) Page(ctx context.Context, coll string, q docstore.PageQuery) (docstore.Page, error) {
	if err := docstore.ValidCollection(coll); err != nil {
		return docstore.Page{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return docstore.Page{}, err
	}
	limit := q.Limit()
	docs := s.scan(coll, q.StartAfter, limit)
	return docstore.NewPage(docs, limit, int64(len(s.colls[coll]))), nil
}

func (s *Store) Count(ctx context.Context, coll string) (int64, error) {
	if err := docstore.ValidCollection(coll); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return 0, err
	}
	return int64(len(s.colls[coll])), nil
}

func (s *Store) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for path, docs := range s.colls {
		if len(docs) > 0 && !strings.Contains(path, "/") {
			seen[path] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Create(ctx context.Context, coll, id string, f docstore.Fields) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	if s.lookup(coll, id) != nil {
		return docstore.Exists("memstore.create", coll, id)
	}
	s.put(coll, id, copyFields(f))
	return nil
}

func (s *Store) Add(ctx context.Context, coll string, f docstore.Fields) (string, error) {
	id := s.newID()
	if err := s.Create(ctx, coll, id, f); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Set(ctx context.Context, coll, id string, f docstore.Fields, merge bool) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	if e := s.lookup(coll, id); merge && e != nil {
		s.put(coll, id, mergeFields(e.fields, f))
		return nil
	}
	s.put(coll, id, copyFields(f))
	return nil
}

func (s *Store) Update(ctx context.Context, coll, id string, f docstore.Fields) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	e := s.lookup(coll, id)
	if e == nil {
		return docstore.NotFound("memstore.update", coll, id)
	}
	s.put(coll, id, mergeFields(e.fields, f))
	return nil
}

func (s *Store) ArrayUnion(ctx context.Context, coll, id, field string, values ...any) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	if field == "" {
		return apperr.E(apperr.InvalidInput, "memstore.arrayUnion", "field is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	f := docstore.Fields{}
	if e := s.lookup(coll, id); e != nil {
		f = copyFields(e.fields)
	}
	var arr []any
	switch cur := f[field].(type) {
	case nil:
	case []any:
		arr = cur
	default:
		return apperr.Errorf(apperr.DataConsistency, "memstore.arrayUnion",
			"%s/%s field %q is %T, not an array", coll, id, field, cur)
	}
	for _, v := range values {
		if !docstore.ArrayContains(arr, v) {
			arr = append(arr, copyValue(v))
		}
	}
	f[field] = arr
	s.put(coll, id, f)
	return nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	s.remove(coll, id)
	return nil
}

// RunTransaction runs fn against a private view and commits its writes only if
// every document fn read is still at the revision it saw. A changed read set
// discards the attempt and runs fn again, up to MaxAttempts.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return apperr.Wrap(apperr.Transaction, "memstore.tx", err)
		}
		tx := newTx(s)
		if err := fn(ctx, tx); err != nil {
			return err
		}
		err := s.commit(ctx, tx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errConflict) {
			return err
		}
		// jittered pause so contending attempts spread out
		time.Sleep(time.Duration(rand.IntN(attempt*100)+1) * time.Microsecond)
	}
	return apperr.Errorf(apperr.Transaction, "memstore.tx", "gave up after %d attempts", s.maxAttempts)
}

func (s *Store) commit(ctx context.Context, tx *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.usable(ctx); err != nil {
		return err
	}
	for k, rev := range tx.reads {
		cur := uint64(0)
		if e := s.lookup(k.coll, k.id); e != nil {
			cur = e.rev
		}
		if cur != rev {
			return errConflict
		}
	}
	for _, k := range tx.order {
		f := tx.writes[k]
		if f == nil {
			s.remove(k.coll, k.id)
			continue
		}
		s.put(k.coll, k.id, f)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) usable(ctx context.Context) error {
	if s.closed {
		return apperr.E(apperr.BackendUnavailable, "memstore", "store is closed")
	}
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "memstore", err)
	}
	return nil
}

// callers hold s.mu.
func (s *Store) lookup(coll, id string) *entry {
	return s.colls[coll][id]
}

// put stores f as the new body; f must already be private to the store.
func (s *Store) put(coll, id string, f docstore.Fields) {
	docs := s.colls[coll]
	if docs == nil {
		docs = make(map[string]*entry)
		s.colls[coll] = docs
	}
	s.rev++
	docs[id] = &entry{fields: f, rev: s.rev, updated: s.now()}
}

func (s *Store) remove(coll, id string) {
	docs := s.colls[coll]
	if docs == nil {
		return
	}
	delete(docs, id)
	if len(docs) == 0 {
		delete(s.colls, coll)
	}
}

func (s *Store) scan(coll, after string, limit int) []docstore.Document {
	docs := s.colls[coll]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]docstore.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, docstore.Document{ID: id, Fields: copyFields(docs[id].fields)})
	}
	return out
}

type key struct{ coll, id string }

type tx struct {
	s      *Store
	reads  map[key]uint64          // revision seen; 0 = absent
	writes map[key]docstore.Fields // nil body = delete
	order  []key
}

var _ docstore.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{s: s, reads: make(map[key]uint64), writes: make(map[key]docstore.Fields)}
}

// current returns the document as this transaction sees it, recording the
// committed revision the first time a key is touched.
func (t *tx) current(ctx context.Context, coll, id string) (docstore.Fields, bool, error) {
	k := key{coll, id}
	if f, ok := t.writes[k]; ok {
		return f, f != nil, nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if err := t.s.usable(ctx); err != nil {
		return nil, false, err
	}
	e := t.s.lookup(coll, id)
	if _, seen := t.reads[k]; !seen {
		if e == nil {
			t.reads[k] = 0
		} else {
			t.reads[k] = e.rev
		}
	}
	if e == nil {
		return nil, false, nil
	}
	return copyFields(e.fields), true, nil
}

func (t *tx) stage(coll, id string, f docstore.Fields) {
	k := key{coll, id}
	if _, ok := t.writes[k]; !ok {
		t.order = append(t.order, k)
	}
	t.writes[k] = f
}

func (t *tx) Get(ctx context.Context, coll, id string) (docstore.Document, error) {
	if err := docstore.Validate(coll, id); err != nil {
		return docstore.Document{}, err
	}
	f, ok, err := t.current(ctx, coll, id)
	if err != nil {
		return docstore.Document{}, err
	}
	if !ok {
		return docstore.Document{}, docstore.NotFound("memstore.tx.get", coll, id)
	}
	return docstore.Document{ID: id, Fields: copyFields(f)}, nil
}

func (t *tx) Create(ctx context.Context, coll, id string, f docstore.Fields) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	_, ok, err := t.current(ctx, coll, id)
	if err != nil {
		return err
	}
	if ok {
		return docstore.Exists("memstore.tx.create", coll, id)
	}
	t.stage(coll, id, copyFields(f))
	return nil
}

func (t *tx) Set(ctx context.Context, coll, id string, f docstore.Fields) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	t.stage(coll, id, copyFields(f))
	return nil
}

func (t *tx) Update(ctx context.Context, coll, id string, f docstore.Fields) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	cur, ok, err := t.current(ctx, coll, id)
	if err != nil {
		return err
	}
	if !ok {
		return docstore.NotFound("memstore.tx.update", coll, id)
	}
	t.stage(coll, id, mergeFields(cur, f))
	return nil
}

func (t *tx) Delete(ctx context.Context, coll, id string) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	t.stage(coll, id, nil)
	return nil
}

func mergeFields(base, patch docstore.Fields) docstore.Fields {
	out := copyFields(base)
	for k, v := range patch {
		out[k] = copyValue(v)
	}
	return out
}

func copyFields(f docstore.Fields) docstore.Fields {
	out := make(docstore.Fields, len(f))
	for k, v := range f {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyFields(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = copyValue(x[i])
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = copyFields(x[i])
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out
	case []byte:
		return append([]byte(nil), x...)
	default:
		return v
	}
}
