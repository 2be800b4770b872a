// Package mongo implements docstore.Store on MongoDB.
//
// All collections share one physical collection. A document lives at
// _id "<collection>/<id>" with its body under "fields":
//
//	{_id: "loans/l1/payments/p1", parent: "loans/l1/payments", docId: "p1",
//	 fields: {...}, updatedAt: ISODate}
//
// Transactions use driver sessions and need a replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/docstore"
)

const DefaultCollection = "documents"

type Options struct {
	Collection string        // default "documents"
	NewID      func() string // default uuid.NewString
	// CloseClient disconnects the client on Close. Leave false when the
	// client is shared (e.g. with versionstore.Mongo).
	CloseClient bool
}

type Store struct {
	client      *mongo.Client
	coll        *mongo.Collection
	newID       func() string
	closeClient bool
}

var _ docstore.Store = (*Store)(nil)

type record struct {
	ID        string    `bson:"_id"`
	Parent    string    `bson:"parent"`
	DocID     string    `bson:"docId"`
	Fields    bson.M    `bson:"fields"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

func New(db *mongo.Database, opts Options) *Store {
	name := opts.Collection
	if name == "" {
		name = DefaultCollection
	}
	s := &Store{
		client:      db.Client(),
		coll:        db.Collection(name),
		newID:       opts.NewID,
		closeClient: opts.CloseClient,
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

// EnsureIndexes creates the (parent, docId) index used by listing and paging.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "parent", Value: 1}, {Key: "docId", Value: 1}},
		Options: options.Index().SetName("parent_docId"),
	})
	return classify("mongo.ensureIndexes", err)
}

func path(coll, id string) string { return coll + "/" + id }

func (s *Store) Get(ctx context.Context, coll, id string) (docstore.Document, error) {
	if err := docstore.Validate(coll, id); err != nil {
		return docstore.Document{}, err
	}
	var r record
	err := s.coll.FindOne(ctx, bson.M{"_id": path(coll, id)}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.Document{}, docstore.NotFound("mongo.get", coll, id)
	}
	if err != nil {
		return docstore.Document{}, classify("mongo.get", err)
	}
	return r.document(), nil
}

func (s *Store) List(ctx context.Context, coll string) ([]docstore.Document, error) {
	if err := docstore.ValidCollection(coll); err != nil {
		return nil, err
	}
	return s.find(ctx, "mongo.list", bson.M{"parent": coll}, 0)
}

func (s *Store) Page(ctx context.Context, coll string, q docstore.PageQuery) (docstore.Page, error) {
	if err := docstore.ValidCollection(coll); err != nil {
		return docstore.Page{}, err
	}
	limit := q.Limit()
	filter := bson.M{"parent": coll}
	if q.StartAfter != "" {
		filter["docId"] = bson.M{"$gt": q.StartAfter}
	}
	docs, err := s.find(ctx, "mongo.page", filter, int64(limit))
	if err != nil {
		return docstore.Page{}, err
	}
	total, err := s.Count(ctx, coll)
	if err != nil {
		return docstore.Page{}, err
	}
	return docstore.NewPage(docs, limit, total), nil
}

func (s *Store) find(ctx context.Context, op string, filter bson.M, limit int64) ([]docstore.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "docId", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, classify(op, err)
	}
	defer cur.Close(ctx)

	out := []docstore.Document{}
	for cur.Next(ctx) {
		var r record
		if err := cur.Decode(&r); err != nil {
			return nil, apperr.Wrap(apperr.DataConsistency, op, err)
		}
		out = append(out, r.document())
	}
	if err := cur.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, coll string) (int64, error) {
	if err := docstore.ValidCollection(coll); err != nil {
		return 0, err
	}
	n, err := s.coll.CountDocuments(ctx, bson.M{"parent": coll})
	if err != nil {
		return 0, classify("mongo.count", err)
	}
	return n, nil
}

func (s *Store) Collections(ctx context.Context) ([]string, error) {
	vals, err := s.coll.Distinct(ctx, "parent",
		bson.M{"parent": bson.M{"$not": primitive.Regex{Pattern: "/"}}})
	if err != nil {
		return nil, classify("mongo.collections", err)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if name, ok := v.(string); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Create(ctx context.Context, coll, id string, f docstore.Fields) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	if err := checkKeys(f); err != nil {
		return err
	}
	_, err := s.coll.InsertOne(ctx, newRecord(coll, id, f))
	if mongo.IsDuplicateKeyError(err) {
		return docstore.Exists("mongo.create", coll, id)
	}
	return classify("mongo.create", err)
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
	if err := checkKeys(f); err != nil {
		return err
	}
	if !merge {
		_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": path(coll, id)}, newRecord(coll, id, f),
			options.Replace().SetUpsert(true))
		return classify("mongo.set", err)
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": path(coll, id)},
		bson.M{"$set": mergeSet(coll, id, f)}, options.Update().SetUpsert(true))
	return classify("mongo.set", err)
}

func (s *Store) Update(ctx context.Context, coll, id string, f docstore.Fields) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	if err := checkKeys(f); err != nil {
		return err
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"_id": path(coll, id)}, bson.M{"$set": mergeSet(coll, id, f)})
	if err != nil {
		return classify("mongo.update", err)
	}
	if res.MatchedCount == 0 {
		return docstore.NotFound("mongo.update", coll, id)
	}
	return nil
}

func (s *Store) ArrayUnion(ctx context.Context, coll, id, field string, values ...any) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	if err := checkKey(field); err != nil {
		return err
	}
	update := bson.M{
		"$addToSet": bson.M{"fields." + field: bson.M{"$each": values}},
		"$set":      bson.M{"parent": coll, "docId": id, "updatedAt": time.Now().UTC()},
	}
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": path(coll, id)}, update, options.Update().SetUpsert(true))
	if isBadValue(err) {
		return apperr.Wrap(apperr.DataConsistency, "mongo.arrayUnion", err)
	}
	return classify("mongo.arrayUnion", err)
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	if err := docstore.Validate(coll, id); err != nil {
		return err
	}
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": path(coll, id)})
	return classify("mongo.delete", err)
}

// RunTransaction runs fn in a session transaction. The driver retries fn on
// transient transaction errors (write conflicts) and the commit on unknown
// commit results.
func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx docstore.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return apperr.Wrap(apperr.BackendUnavailable, "mongo.tx", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc, txView{s})
	})
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.Transaction, "mongo.tx", err)
}

func (s *Store) Close(ctx context.Context) error {
	if !s.closeClient {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// txView runs the store's operations on the session context handed to fn.
type txView struct{ s *Store }

func (t txView) Get(ctx context.Context, coll, id string) (docstore.Document, error) {
	return t.s.Get(ctx, coll, id)
}

func (t txView) Create(ctx context.Context, coll, id string, f docstore.Fields) error {
	return t.s.Create(ctx, coll, id, f)
}

func (t txView) Set(ctx context.Context, coll, id string, f docstore.Fields) error {
	return t.s.Set(ctx, coll, id, f, false)
}

func (t txView) Update(ctx context.Context, coll, id string, f docstore.Fields) error {
	return t.s.Update(ctx, coll, id, f)
}

func (t txView) Delete(ctx context.Context, coll, id string) error {
	return t.s.Delete(ctx, coll, id)
}

func newRecord(coll, id string, f docstore.Fields) record {
	fields := bson.M{}
	for k, v := range f {
		fields[k] = v
	}
	return record{ID: path(coll, id), Parent: coll, DocID: id, Fields: fields, UpdatedAt: time.Now().UTC()}
}

func mergeSet(coll, id string, f docstore.Fields) bson.M {
	set := bson.M{"parent": coll, "docId": id, "updatedAt": time.Now().UTC()}
	for k, v := range f {
		set["fields."+k] = v
	}
	return set
}

func (r record) document() docstore.Document {
	f := make(docstore.Fields, len(r.Fields))
	for k, v := range r.Fields {
		f[k] = normalize(v)
	}
	return docstore.Document{ID: r.DocID, Fields: f}
}

// normalize turns driver types into the plain maps, slices and times the
// rest of the code (and encoding/json) expects.
func normalize(v any) any {
	switch x := v.(type) {
	case primitive.M:
		return normalizeMap(x)
	case map[string]any:
		return normalizeMap(x)
	case primitive.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case primitive.A:
		return normalizeSlice(x)
	case []any:
		return normalizeSlice(x)
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.ObjectID:
		return x.Hex()
	case primitive.Decimal128:
		return x.String()
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalizeSlice(a []any) []any {
	out := make([]any, len(a))
	for i := range a {
		out[i] = normalize(a[i])
	}
	return out
}

func checkKeys(f docstore.Fields) error {
	for k := range f {
		if err := checkKey(k); err != nil {
			return err
		}
	}
	return nil
}

func checkKey(k string) error {
	if k == "" || strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
		return apperr.Errorf(apperr.InvalidInput, "mongo", "invalid field name %q", k)
	}
	return nil
}

// isBadValue matches server code 2, returned e.g. for $addToSet on a non-array.
func isBadValue(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 2 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	return errors.As(err, &ce) && ce.Code == 2
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		mongo.IsTimeout(err), mongo.IsNetworkError(err), errors.Is(err, mongo.ErrClientDisconnected):
		return apperr.Wrap(apperr.BackendUnavailable, op, err)
	default:
		return apperr.Wrap(apperr.Internal, op, err)
	}
}
