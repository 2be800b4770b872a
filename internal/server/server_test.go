package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/chat"
	"github.com/unkn0wn-root/pocketbook/crud"
	"github.com/unkn0wn-root/pocketbook/docstore"
	"github.com/unkn0wn-root/pocketbook/expenses"
	"github.com/unkn0wn-root/pocketbook/internal/testkit"
	"github.com/unkn0wn-root/pocketbook/ledger"
	"github.com/unkn0wn-root/pocketbook/library"
)

func init() { gin.SetMode(gin.TestMode) }

type completerFunc func(ctx context.Context, prompt string) (string, error)

func (f completerFunc) Complete(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

type fixture struct {
	env    *testkit.Env
	router *gin.Engine
}

func newFixture(t *testing.T, completer chat.Completer, opts Options) *fixture {
	t.Helper()
	env := testkit.New(t)
	lib, err := library.New(env.Store, env.Gateway, crud.Options{})
	require.NoError(t, err)
	svc := Services{
		Collections: crud.NewRegistry(env.Store, env.Gateway, crud.Options{}),
		Catalog:     crud.NewCatalog(env.Store, chat.HistoryCollection, library.LayoutCollection),
		Expenses:    expenses.New(env.Store, env.Gateway, expenses.Options{}),
		Ledger:      ledger.New(env.Store, env.Gateway, ledger.Options{}),
		Library:     lib,
		Chat:        chat.NewService(completer, env.Store, nil),
	}
	return &fixture{env: env, router: NewRouter(svc, opts)}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, nil, Options{})
	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))

	w = f.do(t, http.MethodGet, "/healthz", nil, HeaderRequestID, "abc-123")
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))

	down := newFixture(t, nil, Options{Health: func(context.Context) error { return errors.New("no primary") }})
	w = down.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWriteGuard(t *testing.T) {
	f := newFixture(t, nil, Options{APIKey: "secret"})
	book := map[string]any{"title": "Dune"}

	w := f.do(t, http.MethodPost, "/api/books", book, HeaderAction, ActionCreateBook)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/books", book, HeaderAPIKey, "secret", HeaderAction, ActionDeleteBook)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/api/books", book, "Authorization", "Bearer secret", HeaderAction, ActionCreateBook)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// reads stay open
	w = f.do(t, http.MethodGet, "/api/books", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)
}

func TestLoanPaymentFlow(t *testing.T) {
	f := newFixture(t, nil, Options{})
	require.NoError(t, f.env.Store.Create(context.Background(), "loans", "l1", docstore.Fields{
		"name": "car", "outstanding": 1000, "startDate": "2024-01-01",
	}))
	pay := map[string]any{"loan_id": "l1", "paidDate": "2024-03-15", "principalPaid": 300, "interestPaid": 50}

	w := f.do(t, http.MethodPost, "/api/loans/payments", pay, HeaderAction, ActionAddLoanPayment)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[map[string]any](t, w)
	assert.Equal(t, true, created["success"])
	assert.NotEmpty(t, created["payment_id"])

	w = f.do(t, http.MethodGet, "/api/dashboard/loan/l1/payments", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pays := decode[[]map[string]any](t, w)
	require.Len(t, pays, 1)
	assert.Equal(t, "350", pays[0]["totalPaid"])

	w = f.do(t, http.MethodGet, "/api/dashboard/loan?pageSize=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[docstore.Page](t, w)
	assert.EqualValues(t, 1, page.TotalRecords)
	require.Len(t, page.Data, 1)
	assert.Equal(t, 700.0, page.Data[0].Get("outstanding"))

	pay["loan_id"] = "missing"
	w = f.do(t, http.MethodPost, "/api/loans/payments", pay, HeaderAction, ActionAddLoanPayment)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/loans/payments", `{"loan_id":`, HeaderAction, ActionAddLoanPayment)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/dashboard/loan?pageSize=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateLoan(t *testing.T) {
	f := newFixture(t, nil, Options{})
	w := f.do(t, http.MethodPost, "/api/loans",
		map[string]any{"name": "house", "principal": 5000, "interestRate": 4.5, "termMonths": 120, "startDate": "2024-01-01"},
		HeaderAction, ActionCreateLoan)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/loans", map[string]any{"name": "bad", "principal": 0, "startDate": "2024-01-01"},
		HeaderAction, ActionCreateLoan)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCollections(t *testing.T) {
	f := newFixture(t, nil, Options{})
	base := "/api/collections/budget/documents"

	w := f.do(t, http.MethodPost, base, map[string]any{"category": "food", "limit": 100}, HeaderAction, ActionAddCollectionDocument)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "food", decode[map[string]any](t, w)["id"])

	w = f.do(t, http.MethodPost, base, map[string]any{"category": "food"}, HeaderAction, ActionAddCollectionDocument)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = f.do(t, http.MethodPost, base, map[string]any{"limit": 1}, HeaderAction, ActionAddCollectionDocument)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/collections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[[]string](t, w), "budget")

	w = f.do(t, http.MethodPut, base+"/food", map[string]any{"category": "groceries"}, HeaderAction, ActionUpdateCollectionDocument)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "groceries", decode[map[string]any](t, w)["id"])

	w = f.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	docs := decode[[]map[string]any](t, w)
	require.Len(t, docs, 1)
	assert.Equal(t, "groceries", docs[0]["id"])
	assert.EqualValues(t, 100, docs[0]["limit"])

	w = f.do(t, http.MethodDelete, base+"/groceries", nil, HeaderAction, ActionDeleteCollectionDocument)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodGet, base+"/groceries", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodDelete, base+"/groceries", nil, HeaderAction, ActionDeleteCollectionDocument)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, base+"?pageSize=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode[docstore.Page](t, w).TotalRecords)
}

func TestManagementAndDashboard(t *testing.T) {
	f := newFixture(t, nil, Options{})
	rec := map[string]any{"year": 2024, "month": 3, "type": "food", "record": map[string]any{"amount": 12.5, "note": "lunch"}}

	w := f.do(t, http.MethodPost, "/api/management/record", rec, HeaderAction, ActionAddManagementItem)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, _ := decode[map[string]any](t, w)["id"].(string)
	require.NotEmpty(t, id)

	w = f.do(t, http.MethodGet, "/api/management/tree", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string][]int{"2024": {3}}, decode[map[string][]int](t, w))

	w = f.do(t, http.MethodGet, "/api/management/items/2024/3/food", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = f.do(t, http.MethodGet, "/api/dashboard/summary/2024/3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12.5", decode[map[string]any](t, w)["total"])

	w = f.do(t, http.MethodGet, "/api/dashboard/years", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{2024}, decode[[]int](t, w))

	upd := map[string]any{"year": 2024, "month": 3, "type": "food", "id": id, "record": map[string]any{"amount": 20}}
	w = f.do(t, http.MethodPut, "/api/management/record", upd, HeaderAction, ActionUpdateManagementRecord)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, http.MethodGet, "/api/dashboard/summary/2024", nil)
	assert.Equal(t, "20", decode[map[string]any](t, w)["total"])

	del := map[string]any{"year": 2024, "month": 3, "type": "food", "id": id}
	w = f.do(t, http.MethodDelete, "/api/management/record", del, HeaderAction, ActionDeleteManagementRecord)
	require.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodDelete, "/api/management/record", del, HeaderAction, ActionDeleteManagementRecord)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/management/items/abc/3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenresAndShelves(t *testing.T) {
	f := newFixture(t, nil, Options{})
	w := f.do(t, http.MethodPost, "/api/genres", map[string]any{"name": "Sci-Fi"}, HeaderAction, ActionCreateGenre)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = f.do(t, http.MethodPut, "/api/genres/Sci-Fi", map[string]any{"name": "Science Fiction"}, HeaderAction, ActionUpdateGenre)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Science Fiction", decode[map[string]any](t, w)["id"])

	w = f.do(t, http.MethodGet, "/api/shelves", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"units":[{"type":"vertical","compartments":5}]},{"units":[{"type":"horizontal","compartments":5}]}]`, w.Body.String())

	layout := `[{"units":[{"type":"horizontal","compartments":2},{"type":"vertical","compartments":4}]}]`
	w = f.do(t, http.MethodPut, "/api/shelves", layout, HeaderAction, ActionUpdateShelves)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = f.do(t, http.MethodGet, "/api/shelves", nil)
	assert.JSONEq(t, layout, w.Body.String())

	w = f.do(t, http.MethodPut, "/api/shelves", `[{"units":[]}]`, HeaderAction, ActionUpdateShelves)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatbot(t *testing.T) {
	f := newFixture(t, completerFunc(func(_ context.Context, p string) (string, error) { return "echo: " + p, nil }), Options{})
	w := f.do(t, http.MethodPost, "/api/chatbot", map[string]any{"message": "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "echo: hi", decode[map[string]any](t, w)["reply"])

	w = f.do(t, http.MethodGet, "/api/chatbot/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]chat.Exchange](t, w), 1)

	w = f.do(t, http.MethodGet, "/api/collections", nil)
	assert.NotContains(t, decode[[]string](t, w), chat.HistoryCollection)

	w = f.do(t, http.MethodPost, "/api/chatbot", map[string]any{"message": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	off := newFixture(t, nil, Options{})
	w = off.do(t, http.MethodPost, "/api/chatbot", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "backend unavailable", decode[map[string]any](t, w)["error"])
}

func TestStatusOf(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.NotFound:           http.StatusNotFound,
		apperr.InvalidInput:       http.StatusBadRequest,
		apperr.Conflict:           http.StatusConflict,
		apperr.DataConsistency:    http.StatusInternalServerError,
		apperr.BackendUnavailable: http.StatusServiceUnavailable,
		apperr.Transaction:        http.StatusInternalServerError,
		apperr.Internal:           http.StatusInternalServerError,
	}
	for k, want := range cases {
		assert.Equal(t, want, statusOf(k), k.String())
	}
}
