package crud

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/docstore"
	"github.com/unkn0wn-root/pocketbook/internal/testkit"
)

func newColl(t *testing.T, env *testkit.Env, name string) *Collection {
	t.Helper()
	c, err := New(env.Store, env.Gateway, name, Options{})
	require.NoError(t, err)
	return c
}

func TestNewRejectsNestedPaths(t *testing.T) {
	env := testkit.New(t)
	_, err := New(env.Store, env.Gateway, "Year/2024/Months", Options{})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestAllIsServedFromCacheUntilWrite(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	c := newColl(t, env, "budget")

	_, err := c.CreateWithID(ctx, docstore.Fields{"category": "Food", "limit": 300})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		docs, err := c.All(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "Food", docs[0].ID)
	}
	assert.EqualValues(t, 1, env.Store.Lists())

	_, err = c.Create(ctx, docstore.Fields{"category": "Rent", "limit": 900})
	require.NoError(t, err)
	docs, err := c.All(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.EqualValues(t, 2, env.Store.Lists())
}

func TestWritesBumpOncePerSuccess(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	c := newColl(t, env, "budget")

	_, err := c.CreateWithID(ctx, docstore.Fields{"category": "Food"})
	require.NoError(t, err)
	v1 := env.Version(t, "budget")
	require.NotZero(t, v1)

	_, err = c.CreateWithID(ctx, docstore.Fields{"category": "Food"})
	assert.True(t, apperr.IsConflict(err))
	assert.Equal(t, v1, env.Version(t, "budget"), "failed write bumped")

	_, err = c.Update(ctx, "Food", docstore.Fields{"limit": 10})
	require.NoError(t, err)
	v2 := env.Version(t, "budget")
	assert.Greater(t, v2, v1)

	err = c.Delete(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, v2, env.Version(t, "budget"))
}

func TestCreateWithIDRequiresField(t *testing.T) {
	env := testkit.New(t)
	c := newColl(t, env, "budget")
	_, err := c.CreateWithID(context.Background(), docstore.Fields{"limit": 1})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestUpdateRenamesKeyedDocument(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	c := newColl(t, env, "budget")
	_, err := c.CreateWithID(ctx, docstore.Fields{"category": "Food", "limit": 300})
	require.NoError(t, err)

	id, err := c.Update(ctx, "Food", docstore.Fields{"category": "Groceries"})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", id)

	_, err = c.Get(ctx, "Food")
	assert.True(t, apperr.IsNotFound(err))
	doc, err := c.Get(ctx, "Groceries")
	require.NoError(t, err)
	assert.Equal(t, 300, doc.Get("limit"))
}

func TestUpdateRenameConflictLeavesOriginal(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	c := newColl(t, env, "budget")
	for _, cat := range []string{"Food", "Rent"} {
		_, err := c.CreateWithID(ctx, docstore.Fields{"category": cat})
		require.NoError(t, err)
	}

	_, err := c.Update(ctx, "Food", docstore.Fields{"category": "Rent"})
	assert.True(t, apperr.IsConflict(err))
	_, err = c.Get(ctx, "Food")
	assert.NoError(t, err)
}

func TestUpdateOfGeneratedIDMergesInPlace(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	c := newColl(t, env, "books")
	id, err := c.Create(ctx, docstore.Fields{"title": "Dune", "category": "SF", "id": "ignored"})
	require.NoError(t, err)

	got, err := c.Update(ctx, id, docstore.Fields{"category": "Classics"})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	doc, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Classics", doc.Get("category"))
	assert.Nil(t, doc.Get("id"))
}

func TestPage(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	c := newColl(t, env, "budget")
	for _, cat := range []string{"a", "b", "c"} {
		_, err := c.CreateWithID(ctx, docstore.Fields{"category": cat})
		require.NoError(t, err)
	}
	p, err := c.Page(ctx, docstore.PageQuery{Size: 2})
	require.NoError(t, err)
	assert.Equal(t, "b", p.LastDocID)
	assert.EqualValues(t, 3, p.TotalRecords)
}

type downStore struct{ docstore.Store }

func (downStore) List(context.Context, string) ([]docstore.Document, error) {
	return nil, apperr.E(apperr.BackendUnavailable, "test", "down")
}

func TestAllPropagatesSourceErrors(t *testing.T) {
	env := testkit.New(t)
	c, err := New(downStore{env.Store}, env.Gateway, "budget", Options{})
	require.NoError(t, err)
	_, err = c.All(context.Background())
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, apperr.BackendUnavailable, ae.Kind)
}

func TestRegistryAndCatalog(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	r := NewRegistry(env.Store, env.Gateway, Options{})

	a, err := r.Collection("budget")
	require.NoError(t, err)
	b, err := r.Collection("budget")
	require.NoError(t, err)
	assert.Same(t, a, b)
	_, err = r.Collection("a/b")
	assert.Error(t, err)

	_, err = a.CreateWithID(ctx, docstore.Fields{"category": "Food"})
	require.NoError(t, err)
	require.NoError(t, env.Store.Create(ctx, "chat_history", "m1", docstore.Fields{}))

	names, err := NewCatalog(env.Store, "chat_history").Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"budget"}, names)
}

func TestNewRejectsViewSeparator(t *testing.T) {
	env := testkit.New(t)
	_, err := New(env.Store, env.Gateway, "shelves#layout", Options{})
	assert.Equal(t, apperr.InvalidInput, apperr.KindOf(err))
}

func TestRegistryFillsMissingIDField(t *testing.T) {
	ctx := context.Background()
	env := testkit.New(t)
	// stored by another client without the key field
	require.NoError(t, env.Store.Create(ctx, "budget", "Food", docstore.Fields{"limit": 300}))

	c, err := NewRegistry(env.Store, env.Gateway, Options{}).Collection("budget")
	require.NoError(t, err)
	docs, err := c.All(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Food", docs[0].Get("category"))

	stored, err := env.Store.Get(ctx, "budget", "Food")
	require.NoError(t, err)
	assert.Nil(t, stored.Get("category"))

	id, err := c.Update(ctx, "Food", docstore.Fields{"category": "Groceries"})
	require.NoError(t, err)
	assert.Equal(t, "Groceries", id)
	moved, err := env.Store.Get(ctx, "budget", "Groceries")
	require.NoError(t, err)
	assert.EqualValues(t, 300, moved.Get("limit"))

	// plain collections leave listings untouched
	plain := newColl(t, env, "notes")
	require.NoError(t, env.Store.Create(ctx, "notes", "n1", docstore.Fields{"text": "hi"}))
	docs, err = plain.All(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Nil(t, docs[0].Get("category"))
}
