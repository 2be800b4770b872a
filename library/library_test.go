package library

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/codec"
	"github.com/unkn0wn-root/pocketbook/crud"
	"github.com/unkn0wn-root/pocketbook/docstore"
	"github.com/unkn0wn-root/pocketbook/internal/testkit"
)

func newLibrary(t *testing.T) (*Library, *testkit.Env) {
	t.Helper()
	env := testkit.New(t)
	l, err := New(env.Store, env.Gateway, crud.Options{})
	require.NoError(t, err)
	return l, env
}

func TestBooks(t *testing.T) {
	ctx := context.Background()
	l, env := newLibrary(t)

	id, err := l.CreateBook(ctx, docstore.Fields{"title": "Dune", "author": "Herbert", "pages": 412})
	require.NoError(t, err)

	_, err = l.CreateBook(ctx, docstore.Fields{"author": "nobody"})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
	_, err = l.CreateBook(ctx, docstore.Fields{"title": 12})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))

	// partial update: title may be omitted, but not blanked
	require.NoError(t, l.UpdateBook(ctx, id, docstore.Fields{"shelf": "Shelf 2"}))
	err = l.UpdateBook(ctx, id, docstore.Fields{"title": ""})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))

	books, err := l.Books().All(ctx)
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Shelf 2", books[0].Get("shelf"))
	assert.NotZero(t, env.Version(t, BooksCollection))
}

func TestGenresAreKeyedByName(t *testing.T) {
	ctx := context.Background()
	l, _ := newLibrary(t)

	id, err := l.CreateGenre(ctx, docstore.Fields{"name": "Poetry"})
	require.NoError(t, err)
	assert.Equal(t, "Poetry", id)

	_, err = l.CreateGenre(ctx, docstore.Fields{"name": "Poetry"})
	assert.True(t, apperr.IsConflict(err))

	id, err = l.UpdateGenre(ctx, "Poetry", docstore.Fields{"name": "Verse"})
	require.NoError(t, err)
	assert.Equal(t, "Verse", id)

	genres, err := l.Genres().All(ctx)
	require.NoError(t, err)
	require.Len(t, genres, 1)
	assert.Equal(t, "Verse", genres[0].ID)
}

func TestShelvesDefaultLayout(t *testing.T) {
	l, _ := newLibrary(t)
	got, err := l.Shelves(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultLayout(), got)
	require.Len(t, got, 2)
	assert.Equal(t, Vertical, got[0].Units[0].Type)
	assert.Equal(t, 5, got[1].Units[0].Compartments)
}

func TestSaveShelves(t *testing.T) {
	ctx := context.Background()
	l, env := newLibrary(t)

	layout := []Row{
		{Units: []Unit{{Type: Vertical, Compartments: 3}, {Type: Horizontal, Compartments: 2}}},
		{Units: []Unit{{Type: Horizontal, Compartments: 4}}},
	}
	require.NoError(t, l.SaveShelves(ctx, layout))
	got, err := l.Shelves(ctx)
	require.NoError(t, err)
	assert.Equal(t, layout, got)

	doc, err := env.Store.Get(ctx, ShelvesCollection, "r1-u2")
	require.NoError(t, err)
	assert.Equal(t, Horizontal, doc.Get("orientation"))
	assert.EqualValues(t, 1, doc.Get("row"))
	assert.EqualValues(t, 2, doc.Get("order"))

	// cached (msgpack) copy matches
	reads := env.Store.Lists()
	again, err := l.Shelves(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, reads, env.Store.Lists())

	smaller := []Row{{Units: []Unit{{Type: Vertical, Compartments: 1}}}}
	require.NoError(t, l.SaveShelves(ctx, smaller))
	got, err = l.Shelves(ctx)
	require.NoError(t, err)
	assert.Equal(t, smaller, got)
	n, err := env.Store.Count(ctx, ShelvesCollection)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	for _, bad := range [][]Row{
		nil,
		{{}},
		{{Units: []Unit{{Type: "diagonal", Compartments: 1}}}},
		{{Units: []Unit{{Type: Vertical, Compartments: 0}}}},
	} {
		err = l.SaveShelves(ctx, bad)
		assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err), "%v", bad)
	}
}

func TestShelvesGroupStoredUnits(t *testing.T) {
	ctx := context.Background()
	l, env := newLibrary(t)
	// written by another client: rows out of order, defaults for missing fields
	require.NoError(t, env.Store.Create(ctx, ShelvesCollection, "x", docstore.Fields{"row": 2, "order": 1, "orientation": Horizontal, "compartments": 6}))
	require.NoError(t, env.Store.Create(ctx, ShelvesCollection, "y", docstore.Fields{"row": 1, "order": 2}))
	require.NoError(t, env.Store.Create(ctx, ShelvesCollection, "z", docstore.Fields{"row": 1, "order": 1, "compartments": 2.0}))

	got, err := l.Shelves(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Row{
		{Units: []Unit{{Type: Vertical, Compartments: 2}, {Type: Vertical, Compartments: 1}}},
		{Units: []Unit{{Type: Horizontal, Compartments: 6}}},
	}, got)
}

// listBarrier holds the first two listings of the shelves collection until
// both have started, so two saves read the old layout before either commits.
type listBarrier struct {
	docstore.Store
	n    atomic.Int32
	both chan struct{}
}

func (s *listBarrier) List(ctx context.Context, coll string) ([]docstore.Document, error) {
	if coll == ShelvesCollection {
		switch s.n.Add(1) {
		case 1:
			<-s.both
		case 2:
			close(s.both)
		}
	}
	return s.Store.List(ctx, coll)
}

func TestConcurrentSavesDoNotMerge(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	store := &listBarrier{Store: env.Store, both: make(chan struct{})}
	l, err := New(store, env.Gateway, crud.Options{})
	require.NoError(t, err)

	first := []Row{{Units: []Unit{{Type: Vertical, Compartments: 1}, {Type: Vertical, Compartments: 2}}}}
	second := []Row{
		{Units: []Unit{{Type: Horizontal, Compartments: 3}}},
		{Units: []Unit{{Type: Horizontal, Compartments: 4}}},
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, layout := range [][]Row{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = l.SaveShelves(ctx, layout)
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got, err := l.Shelves(ctx)
	require.NoError(t, err)
	if !assert.ObjectsAreEqual(first, got) && !assert.ObjectsAreEqual(second, got) {
		t.Fatalf("layout is a merge of both saves: %+v", got)
	}
	marker, err := env.Store.Get(ctx, LayoutCollection, layoutMarker)
	require.NoError(t, err)
	assert.EqualValues(t, 2, marker.Get("saves"))
}

func TestLayoutAndDocumentReadersDoNotShareSnapshots(t *testing.T) {
	ctx := context.Background()
	l, env := newLibrary(t)
	docs, err := crud.New(env.Store, env.Gateway, ShelvesCollection, crud.Options{Codec: codec.Msgpack[[]docstore.Document]{}})
	require.NoError(t, err)

	layout := []Row{
		{Units: []Unit{{Type: Vertical, Compartments: 2}}},
		{Units: []Unit{{Type: Horizontal, Compartments: 3}}},
	}
	require.NoError(t, l.SaveShelves(ctx, layout))

	for i := 0; i < 3; i++ {
		all, err := docs.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "r1-u1", all[0].ID)
		assert.Equal(t, Vertical, all[0].Get("orientation"))

		got, err := l.Shelves(ctx)
		require.NoError(t, err)
		assert.Equal(t, layout, got)
	}
	// one listing by the save, then one per reader; the rest are hits
	assert.EqualValues(t, 2+1, env.Store.Lists())
}
