package pocketbook

import "context"

// Mutation is one write against the source of truth.
type Mutation func(ctx context.Context) error

// VersionBumpingWriter applies mutations to one collection and bumps the
// collection's version exactly once after each successful mutation.
// A failed mutation returns its error untouched and bumps nothing.
type VersionBumpingWriter struct {
	gw   *Gateway
	coll Collection
}

func NewVersionBumpingWriter(gw *Gateway, coll Collection) *VersionBumpingWriter {
	return &VersionBumpingWriter{gw: gw, coll: coll}
}

func (w *VersionBumpingWriter) Collection() Collection { return w.coll }

func (w *VersionBumpingWriter) Apply(ctx context.Context, m Mutation) error {
	if err := m(ctx); err != nil {
		return err
	}
	w.gw.Bump(ctx, w.coll)
	return nil
}

// Write runs fn through w and returns fn's result.
func Write[T any](ctx context.Context, w *VersionBumpingWriter, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := w.Apply(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
