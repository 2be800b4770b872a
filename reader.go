package pocketbook

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/pocketbook/codec"
)

// Reader reads a whole collection from the source of truth.
type Reader[T any] interface {
	ReadAll(ctx context.Context) (T, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc[T any] func(ctx context.Context) (T, error)

func (f ReaderFunc[T]) ReadAll(ctx context.Context) (T, error) { return f(ctx) }

// CachedReader serves a Reader through the gateway under one collection name
// and view.
type CachedReader[T any] struct {
	gw    *Gateway
	coll  Collection
	view  string
	inner Reader[T]
	codec codec.Codec[T]
}

var _ Reader[struct{}] = (*CachedReader[struct{}])(nil)

func NewCachedReader[T any](gw *Gateway, coll Collection, inner Reader[T], c codec.Codec[T]) *CachedReader[T] {
	return NewCachedView(gw, coll, "", inner, c)
}

// NewCachedView is NewCachedReader with a named view. Readers of the same
// collection that decode to different types must use different views.
func NewCachedView[T any](gw *Gateway, coll Collection, view string, inner Reader[T], c codec.Codec[T]) *CachedReader[T] {
	return &CachedReader[T]{gw: gw, coll: coll, view: view, inner: inner, codec: c}
}

func (r *CachedReader[T]) Collection() Collection { return r.coll }

func (r *CachedReader[T]) View() string { return r.view }

// ReadAll returns the cached value when fresh. A value fetched by this call is
// returned as-is; values shared from another caller's fetch or from the cache
// are decoded.
func (r *CachedReader[T]) ReadAll(ctx context.Context) (T, error) {
	var (
		zero    T
		fresh   T
		fetched bool
	)
	payload, out, err := r.gw.ReadView(ctx, r.coll, r.view, func(ctx context.Context) ([]byte, error) {
		v, err := r.inner.ReadAll(ctx)
		if err != nil {
			return nil, err
		}
		fresh, fetched = v, true
		b, err := r.codec.Encode(v)
		if err != nil {
			return nil, &EncodeError{Collection: string(r.coll), Err: err}
		}
		return b, nil
	})
	if err != nil {
		var ee *EncodeError
		if !errors.As(err, &ee) {
			return zero, err
		}
		r.gw.log.Error("reader result not cacheable", Fields{"collection": r.coll, "err": err})
		if fetched {
			return fresh, nil
		}
		return r.inner.ReadAll(ctx)
	}
	if fetched {
		return fresh, nil
	}

	v, err := r.codec.Decode(payload)
	if err != nil {
		r.gw.log.Warn("cached snapshot decode failed; reading source", Fields{
			"collection": r.coll, "view": r.view, "outcome": out.String(), "err": err,
		})
		if out == Hit {
			r.gw.ForgetView(ctx, r.coll, r.view)
		}
		return r.inner.ReadAll(ctx)
	}
	return v, nil
}
