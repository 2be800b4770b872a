package library

import (
	"context"
	"fmt"
	"sort"

	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/docstore"
)

const (
	ShelvesCollection = "shelves"
	// LayoutCollection holds the marker document every layout save reads and
	// rewrites, so two concurrent saves conflict instead of merging.
	LayoutCollection = "shelves_layout"
	LayoutView       = "layout"

	layoutMarker = "current"

	Vertical   = "vertical"
	Horizontal = "horizontal"
)

// Unit is one bookcase unit in a row.
type Unit struct {
	Type         string `json:"type" validate:"required,oneof=vertical horizontal"`
	Compartments int    `json:"compartments" validate:"min=1,max=50"`
}

// Row is one row of the library, units left to right.
type Row struct {
	Units []Unit `json:"units" validate:"min=1,dive"`
}

// DefaultLayout is served while no shelf is stored.
func DefaultLayout() []Row {
	return []Row{
		{Units: []Unit{{Type: Vertical, Compartments: 5}}},
		{Units: []Unit{{Type: Horizontal, Compartments: 5}}},
	}
}

// Shelves returns the layout grouped into rows, ordered by row then order.
func (l *Library) Shelves(ctx context.Context) ([]Row, error) {
	return l.layout.ReadAll(ctx)
}

// SaveShelves replaces the stored layout. Rows and units are numbered from 1
// in slice order.
func (l *Library) SaveShelves(ctx context.Context, layout []Row) error {
	const op = "library.saveShelves"
	if len(layout) == 0 {
		return apperr.E(apperr.InvalidInput, op, "layout needs at least one row")
	}
	for i := range layout {
		if err := validate.Struct(&layout[i]); err != nil {
			return apperr.Wrap(apperr.InvalidInput, op, fmt.Errorf("row %d: %w", i+1, err))
		}
	}

	return l.shelfWriter.Apply(ctx, func(ctx context.Context) error {
		return l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			saves := 0
			marker, err := tx.Get(ctx, LayoutCollection, layoutMarker)
			switch {
			case err == nil:
				saves = intField(marker.Get("saves"), 0)
			case apperr.IsNotFound(err):
			default:
				return err
			}

			old, err := l.store.List(ctx, ShelvesCollection)
			if err != nil {
				return err
			}
			keep := make(map[string]bool)
			for r, row := range layout {
				for u, unit := range row.Units {
					id := fmt.Sprintf("r%d-u%d", r+1, u+1)
					keep[id] = true
					if err := tx.Set(ctx, ShelvesCollection, id, docstore.Fields{
						"row":          r + 1,
						"order":        u + 1,
						"orientation":  unit.Type,
						"compartments": unit.Compartments,
					}); err != nil {
						return err
					}
				}
			}
			for _, d := range old {
				if !keep[d.ID] {
					if err := tx.Delete(ctx, ShelvesCollection, d.ID); err != nil {
						return err
					}
				}
			}
			return tx.Set(ctx, LayoutCollection, layoutMarker, docstore.Fields{
				"saves": saves + 1,
				"rows":  len(layout),
			})
		})
	})
}

func (l *Library) readLayout(ctx context.Context) ([]Row, error) {
	docs, err := l.store.List(ctx, ShelvesCollection)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return DefaultLayout(), nil
	}

	type placed struct {
		row, order int
		unit       Unit
	}
	units := make([]placed, 0, len(docs))
	for _, d := range docs {
		p := placed{
			row:   intField(d.Get("row"), 1),
			order: intField(d.Get("order"), 0),
			unit:  Unit{Type: Vertical, Compartments: intField(d.Get("compartments"), 1)},
		}
		if t, ok := d.Get("orientation").(string); ok && t != "" {
			p.unit.Type = t
		}
		units = append(units, p)
	}
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].row != units[j].row {
			return units[i].row < units[j].row
		}
		return units[i].order < units[j].order
	})

	var out []Row
	last := 0
	for i, p := range units {
		if i == 0 || p.row != last {
			out = append(out, Row{})
			last = p.row
		}
		out[len(out)-1].Units = append(out[len(out)-1].Units, p.unit)
	}
	return out, nil
}

func intField(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}
