// Package expenses keeps expense records bucketed by year, month and type:
//
//	Year/{year}                               marker document
//	Year/{year}/Months/{month}                marker document
//	Year/{year}/Months/{month}/Types/{type}   {records: [...]}
//
// Every write bumps the "Year" collection, which versions the cached tree.
package expenses

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/codec"
	"github.com/unkn0wn-root/pocketbook/docstore"
	"github.com/unkn0wn-root/pocketbook/internal/money"
)

const (
	YearCollection pocketbook.Collection = "Year"
	TreeView                             = "tree"
	recordsField                         = "records"
)

var validate = validator.New()

// Tree maps a year to its months in ascending order.
type Tree map[string][]int

type Options struct {
	Logger pocketbook.Logger
	NewID  func() string
	Now    func() time.Time
	Codec  codec.Codec[Tree] // default JSON
}

type Service struct {
	store  docstore.Store
	writer *pocketbook.VersionBumpingWriter
	tree   *pocketbook.CachedReader[Tree]
	log    pocketbook.Logger
	newID  func() string
	now    func() time.Time
}

func New(store docstore.Store, gw *pocketbook.Gateway, opts Options) *Service {
	s := &Service{
		store:  store,
		writer: pocketbook.NewVersionBumpingWriter(gw, YearCollection),
		log:    pocketbook.LoggerOrNop(opts.Logger),
		newID:  opts.NewID,
		now:    opts.Now,
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	if s.now == nil {
		s.now = time.Now
	}
	c := opts.Codec
	if c == nil {
		c = codec.JSON[Tree]{}
	}
	s.tree = pocketbook.NewCachedView[Tree](gw, YearCollection, TreeView, pocketbook.ReaderFunc[Tree](s.readTree), c)
	return s
}

func monthsOf(year int) string { return docstore.Join(string(YearCollection), strconv.Itoa(year), "Months") }

func typesOf(year, month int) string {
	return docstore.Join(monthsOf(year), strconv.Itoa(month), "Types")
}

// Bucket addresses one type document.
type Bucket struct {
	Year  int    `json:"year" validate:"gte=1900,lte=3000"`
	Month int    `json:"month" validate:"gte=1,lte=12"`
	Type  string `json:"type" validate:"required,max=100,excludes=/"`
}

func (b Bucket) check(op string) error {
	b.Type = strings.TrimSpace(b.Type)
	if err := validate.Struct(b); err != nil {
		return apperr.Wrap(apperr.InvalidInput, op, err)
	}
	return nil
}

// Tree returns years with their months, cached until the next expense write.
func (s *Service) Tree(ctx context.Context) (Tree, error) {
	return s.tree.ReadAll(ctx)
}

func (s *Service) readTree(ctx context.Context) (Tree, error) {
	years, err := s.Years(ctx)
	if err != nil {
		return nil, err
	}
	t := make(Tree, len(years))
	for _, y := range years {
		months, err := s.months(ctx, y)
		if err != nil {
			return nil, err
		}
		t[strconv.Itoa(y)] = months
	}
	return t, nil
}

// Years returns the years holding expenses, ascending.
func (s *Service) Years(ctx context.Context) ([]int, error) {
	docs, err := s.store.List(ctx, string(YearCollection))
	if err != nil {
		return nil, err
	}
	return numericIDs(docs), nil
}

func (s *Service) months(ctx context.Context, year int) ([]int, error) {
	docs, err := s.store.List(ctx, monthsOf(year))
	if err != nil {
		return nil, err
	}
	return numericIDs(docs), nil
}

func numericIDs(docs []docstore.Document) []int {
	out := make([]int, 0, len(docs))
	for _, d := range docs {
		if n, err := strconv.Atoi(d.ID); err == nil {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// Items returns the type documents of one month.
func (s *Service) Items(ctx context.Context, year, month int) ([]docstore.Document, error) {
	if err := (Bucket{Year: year, Month: month, Type: "-"}).check("expenses.items"); err != nil {
		return nil, err
	}
	return s.store.List(ctx, typesOf(year, month))
}

// TypeItems returns one type's records, newest first. limit <= 0 returns all.
func (s *Service) TypeItems(ctx context.Context, b Bucket, limit int) ([]map[string]any, error) {
	if err := b.check("expenses.typeItems"); err != nil {
		return nil, err
	}
	doc, err := s.store.Get(ctx, typesOf(b.Year, b.Month), b.Type)
	if err != nil {
		return nil, err
	}
	recs, err := records(doc)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(recs, func(i, j int) bool { return newer(recs[i], recs[j]) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func newer(a, b map[string]any) bool {
	ta, _ := money.TimeValue(a["date"])
	tb, _ := money.TimeValue(b["date"])
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	ca, _ := money.TimeValue(a["created_at"])
	cb, _ := money.TimeValue(b["created_at"])
	return ca.After(cb)
}

// AddRecord appends a record to its type bucket and returns the record id.
// The record needs a numeric "amount".
func (s *Service) AddRecord(ctx context.Context, b Bucket, rec docstore.Fields) (string, error) {
	const op = "expenses.addRecord"
	b.Type = strings.TrimSpace(b.Type)
	if err := b.check(op); err != nil {
		return "", err
	}
	if _, err := money.FromValue(rec["amount"]); err != nil {
		return "", apperr.Wrap(apperr.InvalidInput, op, err)
	}

	id := s.newID()
	stored := make(map[string]any, len(rec)+2)
	for k, v := range rec {
		stored[k] = v
	}
	stored["id"] = id
	stored["created_at"] = s.now().UTC().Format(time.RFC3339Nano)

	err := s.writer.Apply(ctx, func(ctx context.Context) error {
		y := strconv.Itoa(b.Year)
		if err := s.store.Set(ctx, string(YearCollection), y, docstore.Fields{"year": b.Year}, true); err != nil {
			return err
		}
		if err := s.store.Set(ctx, monthsOf(b.Year), strconv.Itoa(b.Month), docstore.Fields{"month": b.Month}, true); err != nil {
			return err
		}
		return s.store.ArrayUnion(ctx, typesOf(b.Year, b.Month), b.Type, recordsField, stored)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateRecord merges patch into the record with the given id. The id is immutable.
func (s *Service) UpdateRecord(ctx context.Context, b Bucket, recordID string, patch docstore.Fields) error {
	const op = "expenses.updateRecord"
	b.Type = strings.TrimSpace(b.Type)
	if err := b.check(op); err != nil {
		return err
	}
	if v, ok := patch["amount"]; ok {
		if _, err := money.FromValue(v); err != nil {
			return apperr.Wrap(apperr.InvalidInput, op, err)
		}
	}
	return s.editRecords(ctx, op, b, recordID, func(rec map[string]any) map[string]any {
		for k, v := range patch {
			if k != "id" && k != "created_at" {
				rec[k] = v
			}
		}
		rec["updated_at"] = s.now().UTC().Format(time.RFC3339Nano)
		return rec
	})
}

// DeleteRecord removes the record with the given id.
func (s *Service) DeleteRecord(ctx context.Context, b Bucket, recordID string) error {
	const op = "expenses.deleteRecord"
	b.Type = strings.TrimSpace(b.Type)
	if err := b.check(op); err != nil {
		return err
	}
	return s.editRecords(ctx, op, b, recordID, func(map[string]any) map[string]any { return nil })
}

// editRecords replaces (or drops, when edit returns nil) one record in a
// transaction; NotFound when the bucket or record is missing.
func (s *Service) editRecords(ctx context.Context, op string, b Bucket, recordID string, edit func(map[string]any) map[string]any) error {
	if recordID == "" {
		return apperr.E(apperr.InvalidInput, op, "record id is required")
	}
	coll := typesOf(b.Year, b.Month)
	return s.writer.Apply(ctx, func(ctx context.Context) error {
		return s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			doc, err := tx.Get(ctx, coll, b.Type)
			if err != nil {
				return err
			}
			recs, err := records(doc)
			if err != nil {
				return err
			}
			out := make([]any, 0, len(recs))
			found := false
			for _, r := range recs {
				if id, _ := r["id"].(string); id == recordID && !found {
					found = true
					if r = edit(r); r == nil {
						continue
					}
				}
				out = append(out, r)
			}
			if !found {
				return apperr.Errorf(apperr.NotFound, op, "record %s not found in %s/%s", recordID, coll, b.Type)
			}
			return tx.Update(ctx, coll, b.Type, docstore.Fields{recordsField: out})
		})
	})
}

func records(doc docstore.Document) ([]map[string]any, error) {
	raw := doc.Get(recordsField)
	if raw == nil {
		return []map[string]any{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, apperr.Errorf(apperr.DataConsistency, "expenses", "%s is %T, not a list", doc.ID, raw)
	}
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		m, ok := e.(map[string]any)
		if !ok {
			return nil, apperr.Errorf(apperr.DataConsistency, "expenses", "record in %s is %T", doc.ID, e)
		}
		out = append(out, m)
	}
	return out, nil
}

type TypeTotal struct {
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

type Summary struct {
	Year  int                  `json:"year"`
	Month int                  `json:"month,omitempty"` // 0 = whole year
	Types map[string]TypeTotal `json:"types"`
	Total decimal.Decimal      `json:"total"`
	Count int                  `json:"count"`
}

// Summary totals "amount" per type for a month, or for the whole year when month is 0.
// Records without a numeric amount are counted but add nothing.
func (s *Service) Summary(ctx context.Context, year, month int) (Summary, error) {
	const op = "expenses.summary"
	sum := Summary{Year: year, Month: month, Types: map[string]TypeTotal{}}
	months := []int{month}
	if month == 0 {
		if err := (Bucket{Year: year, Month: 1, Type: "-"}).check(op); err != nil {
			return sum, err
		}
		var err error
		if months, err = s.months(ctx, year); err != nil {
			return sum, err
		}
	} else if err := (Bucket{Year: year, Month: month, Type: "-"}).check(op); err != nil {
		return sum, err
	}

	skipped := 0
	for _, m := range months {
		docs, err := s.store.List(ctx, typesOf(year, m))
		if err != nil {
			return sum, err
		}
		for _, d := range docs {
			recs, err := records(d)
			if err != nil {
				return sum, err
			}
			tt := sum.Types[d.ID]
			for _, r := range recs {
				amt, err := money.FromValue(r["amount"])
				if err != nil {
					skipped++
				} else {
					tt.Total = tt.Total.Add(amt)
					sum.Total = sum.Total.Add(amt)
				}
				tt.Count++
				sum.Count++
			}
			sum.Types[d.ID] = tt
		}
	}
	if skipped > 0 {
		s.log.Warn("records without numeric amount", pocketbook.Fields{"year": year, "month": month, "count": skipped})
	}
	return sum, nil
}
