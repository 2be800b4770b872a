// Package library serves the book catalog, the genre taxonomy and the shelf layout.
package library

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/codec"
	"github.com/unkn0wn-root/pocketbook/crud"
	"github.com/unkn0wn-root/pocketbook/docstore"
)

const (
	BooksCollection  = "books"
	GenresCollection = "genre"
)

var validate = validator.New()

type BookInput struct {
	Title  string `json:"title" validate:"required,max=300"`
	Author string `json:"author" validate:"max=200"`
	Genre  string `json:"genre" validate:"max=100"`
	Shelf  string `json:"shelf" validate:"max=100"`
	Year   int    `json:"year" validate:"gte=0,lte=3000"`
}

type GenreInput struct {
	Name string `json:"name" validate:"required,max=100"`
}

type Library struct {
	books       *crud.Collection
	genres      *crud.Collection
	store       docstore.Store
	layout      *pocketbook.CachedReader[[]Row]
	shelfWriter *pocketbook.VersionBumpingWriter
}

func New(store docstore.Store, gw *pocketbook.Gateway, opts crud.Options) (*Library, error) {
	books, err := crud.New(store, gw, BooksCollection, opts)
	if err != nil {
		return nil, err
	}
	gopts := opts
	gopts.IDField = "name"
	genres, err := crud.New(store, gw, GenresCollection, gopts)
	if err != nil {
		return nil, err
	}
	l := &Library{
		books:       books,
		genres:      genres,
		store:       store,
		shelfWriter: pocketbook.NewVersionBumpingWriter(gw, ShelvesCollection),
	}
	l.layout = pocketbook.NewCachedView[[]Row](gw, ShelvesCollection, LayoutView,
		pocketbook.ReaderFunc[[]Row](l.readLayout), codec.Msgpack[[]Row]{})
	return l, nil
}

func (l *Library) Books() *crud.Collection  { return l.books }
func (l *Library) Genres() *crud.Collection { return l.genres }

// validateBody checks the known fields of a book or genre body; unknown
// fields pass through. A partial body (update) validates only the fields it carries.
func validateBody(op string, f docstore.Fields, partial bool, target any) error {
	if len(f) == 0 {
		return apperr.E(apperr.InvalidInput, op, "document body is empty")
	}
	b, err := json.Marshal(f)
	if err != nil {
		return apperr.Wrap(apperr.InvalidInput, op, err)
	}
	if err := json.Unmarshal(b, target); err != nil {
		return apperr.Wrap(apperr.InvalidInput, op, err)
	}
	if partial {
		fields := presentFields(f, target)
		if len(fields) == 0 {
			return nil
		}
		err = validate.StructPartial(target, fields...)
	} else {
		err = validate.Struct(target)
	}
	if err != nil {
		return apperr.Wrap(apperr.InvalidInput, op, err)
	}
	return nil
}

// presentFields maps the body's keys to the struct field names of target.
func presentFields(f docstore.Fields, target any) []string {
	t := reflect.TypeOf(target).Elem()
	var out []string
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if _, ok := f[name]; ok {
			out = append(out, t.Field(i).Name)
		}
	}
	return out
}

func (l *Library) CreateBook(ctx context.Context, f docstore.Fields) (string, error) {
	if err := validateBody("library.createBook", f, false, &BookInput{}); err != nil {
		return "", err
	}
	return l.books.Create(ctx, f)
}

func (l *Library) UpdateBook(ctx context.Context, id string, f docstore.Fields) error {
	if err := validateBody("library.updateBook", f, true, &BookInput{}); err != nil {
		return err
	}
	_, err := l.books.Update(ctx, id, f)
	return err
}

// CreateGenre stores the genre under its name; Conflict for a duplicate name.
func (l *Library) CreateGenre(ctx context.Context, f docstore.Fields) (string, error) {
	if err := validateBody("library.createGenre", f, false, &GenreInput{}); err != nil {
		return "", err
	}
	return l.genres.CreateWithID(ctx, f)
}

// UpdateGenre renames the genre when the name changes.
func (l *Library) UpdateGenre(ctx context.Context, id string, f docstore.Fields) (string, error) {
	if err := validateBody("library.updateGenre", f, true, &GenreInput{}); err != nil {
		return "", err
	}
	return l.genres.Update(ctx, id, f)
}
