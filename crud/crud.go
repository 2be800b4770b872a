// Package crud binds top-level document collections to the cache gateway.
// Whole-collection reads go through a CachedReader; every write goes through
// a VersionBumpingWriter, so the collection's version moves exactly once per
// successful write.
package crud

import (
	"context"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/codec"
	"github.com/unkn0wn-root/pocketbook/docstore"
	"github.com/unkn0wn-root/pocketbook/internal/util"
)

const DefaultIDField = "category"

type Options struct {
	// IDField names the field CreateWithID takes the document id from.
	// Default "category".
	IDField string
	// FillIDField makes All set the id field to the document id on documents
	// that lack it, so listed documents can be renamed through Update.
	FillIDField bool
	Codec       codec.Codec[[]docstore.Document] // default JSON
	Logger      pocketbook.Logger
}

type Collection struct {
	name    pocketbook.Collection
	store   docstore.Store
	writer  *pocketbook.VersionBumpingWriter
	all     *pocketbook.CachedReader[[]docstore.Document]
	idField string
	fillID  bool
	log     pocketbook.Logger
}

// New binds a top-level collection. Nested paths are rejected: their
// versions would not be bumped by writes to the parent.
func New(store docstore.Store, gw *pocketbook.Gateway, name string, opts Options) (*Collection, error) {
	if err := docstore.ValidCollection(name); err != nil {
		return nil, err
	}
	if strings.Contains(name, "/") {
		return nil, apperr.Errorf(apperr.InvalidInput, "crud.new", "%q is not a top-level collection", name)
	}
	if strings.Contains(name, util.ViewSep) {
		return nil, apperr.Errorf(apperr.InvalidInput, "crud.new", "collection name %q contains %q", name, util.ViewSep)
	}
	c := &Collection{
		name:    pocketbook.Collection(name),
		store:   store,
		writer:  pocketbook.NewVersionBumpingWriter(gw, pocketbook.Collection(name)),
		idField: opts.IDField,
		fillID:  opts.FillIDField,
		log:     pocketbook.LoggerOrNop(opts.Logger),
	}
	if c.idField == "" {
		c.idField = DefaultIDField
	}
	cd := opts.Codec
	if cd == nil {
		cd = codec.JSON[[]docstore.Document]{}
	}
	c.all = pocketbook.NewCachedView[[]docstore.Document](gw, c.name, docstore.ListView,
		pocketbook.ReaderFunc[[]docstore.Document](func(ctx context.Context) ([]docstore.Document, error) {
			docs, err := store.List(ctx, name)
			if err != nil || !c.fillID {
				return docs, err
			}
			return withIDField(docs, c.idField), nil
		}), cd)
	return c, nil
}

func (c *Collection) Name() string { return string(c.name) }

// All returns every document, from the cache while the collection is unchanged.
func (c *Collection) All(ctx context.Context) ([]docstore.Document, error) {
	return c.all.ReadAll(ctx)
}

// Page reads one page straight from the store.
func (c *Collection) Page(ctx context.Context, q docstore.PageQuery) (docstore.Page, error) {
	return c.store.Page(ctx, string(c.name), q)
}

func (c *Collection) Get(ctx context.Context, id string) (docstore.Document, error) {
	return c.store.Get(ctx, string(c.name), id)
}

// Create stores f under a generated id.
func (c *Collection) Create(ctx context.Context, f docstore.Fields) (string, error) {
	if len(f) == 0 {
		return "", apperr.E(apperr.InvalidInput, "crud.create", "document body is empty")
	}
	return pocketbook.Write(ctx, c.writer, func(ctx context.Context) (string, error) {
		return c.store.Add(ctx, string(c.name), withoutID(f))
	})
}

// CreateWithID stores f under the id held in its id field; Conflict when taken.
func (c *Collection) CreateWithID(ctx context.Context, f docstore.Fields) (string, error) {
	id, ok := idValue(f[c.idField])
	if !ok {
		return "", apperr.Errorf(apperr.InvalidInput, "crud.createWithID", "field %q is required", c.idField)
	}
	err := c.writer.Apply(ctx, func(ctx context.Context) error {
		return c.store.Create(ctx, string(c.name), id, withoutID(f))
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Update merges f into the document. When the document's id came from its id
// field (or the field is absent and FillIDField is set) and f changes that
// field, the document moves to the new id in the same transaction; Conflict
// when the new id is taken. Returns the final id.
func (c *Collection) Update(ctx context.Context, id string, f docstore.Fields) (string, error) {
	const op = "crud.update"
	if len(f) == 0 {
		return "", apperr.E(apperr.InvalidInput, op, "document body is empty")
	}
	f = withoutID(f)
	coll := string(c.name)
	final := id
	err := c.writer.Apply(ctx, func(ctx context.Context) error {
		return c.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			final = id
			cur, err := tx.Get(ctx, coll, id)
			if err != nil {
				return err
			}
			oldKey, keyed := idValue(cur.Get(c.idField))
			if _, present := cur.Fields[c.idField]; !present && c.fillID {
				// listed with the id filled in, so the id is the key
				oldKey, keyed = id, true
			}
			newKey, renamed := idValue(f[c.idField])
			if !keyed || oldKey != id || !renamed || newKey == id {
				return tx.Update(ctx, coll, id, f)
			}

			merged := make(docstore.Fields, len(cur.Fields)+len(f))
			for k, v := range cur.Fields {
				merged[k] = v
			}
			for k, v := range f {
				merged[k] = v
			}
			if err := tx.Create(ctx, coll, newKey, merged); err != nil {
				return err
			}
			final = newKey
			return tx.Delete(ctx, coll, id)
		})
	})
	if err != nil {
		return "", err
	}
	if final != id {
		c.log.Info("document renamed", pocketbook.Fields{"collection": coll, "from": id, "to": final})
	}
	return final, nil
}

// Delete removes an existing document; NotFound when absent.
func (c *Collection) Delete(ctx context.Context, id string) error {
	coll := string(c.name)
	return c.writer.Apply(ctx, func(ctx context.Context) error {
		return c.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			if _, err := tx.Get(ctx, coll, id); err != nil {
				return err
			}
			return tx.Delete(ctx, coll, id)
		})
	})
}

// withIDField defaults field to the document id where it is missing.
func withIDField(docs []docstore.Document, field string) []docstore.Document {
	for i, d := range docs {
		if _, ok := d.Fields[field]; ok {
			continue
		}
		f := make(docstore.Fields, len(d.Fields)+1)
		for k, v := range d.Fields {
			f[k] = v
		}
		f[field] = d.ID
		docs[i].Fields = f
	}
	return docs
}

// withoutID drops a client-supplied "id"; ids live outside the body.
func withoutID(f docstore.Fields) docstore.Fields {
	if _, ok := f["id"]; !ok {
		return f
	}
	out := make(docstore.Fields, len(f))
	for k, v := range f {
		if k != "id" {
			out[k] = v
		}
	}
	return out
}

func idValue(v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case fmt.Stringer:
		s = x.String()
	case float64, int, int64:
		s = fmt.Sprint(x)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" || docstore.ValidID(s) != nil {
		return "", false
	}
	return s, true
}
