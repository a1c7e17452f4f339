package convert

import (
	"fmt"

	"github.com/brisvag/cs2star/internal/cs"
)

// view reads a primary dataset together with its passthrough companion.
// Columns are looked up in the primary first; passthrough rows are
// re-aligned to the primary by uid so that slicing a passthrough column
// yields values in primary row order.
type view struct {
	primary *cs.Dataset
	pass    *cs.Dataset

	// passRow maps a primary row to its passthrough row; nil means the
	// rows already line up one to one.
	passRow []int

	opts *Options
}

func newView(pair Pair, opts *Options) (*view, error) {
	primary, err := cs.Open(pair.Primary)
	if err != nil {
		return nil, err
	}

	v := &view{primary: primary, opts: opts}
	if pair.Passthrough == "" {
		return v, nil
	}

	pass, err := cs.Open(pair.Passthrough)
	if err != nil {
		return nil, err
	}
	if err := v.align(pass, pair.Passthrough); err != nil {
		return nil, err
	}
	return v, nil
}

// align attaches the passthrough dataset, matching rows by uid when both
// sides carry one. A passthrough that cannot be aligned is dropped with a
// warning rather than risking record corruption.
func (v *view) align(pass *cs.Dataset, path string) error {
	if v.primary.Has("uid") && pass.Has("uid") {
		primaryUIDs, err := v.primary.Uint64Column("uid")
		if err != nil {
			return fmt.Errorf("reading primary uids: %w", err)
		}
		passUIDs, err := pass.Uint64Column("uid")
		if err != nil {
			return fmt.Errorf("reading passthrough uids: %w", err)
		}

		byUID := make(map[uint64]int, len(passUIDs))
		for i, uid := range passUIDs {
			byUID[uid] = i
		}

		rows := make([]int, len(primaryUIDs))
		for i, uid := range primaryUIDs {
			row, ok := byUID[uid]
			if !ok {
				v.opts.warnf("passthrough %s is missing records of its primary file; ignoring it", path)
				return nil
			}
			rows[i] = row
		}
		v.pass = pass
		v.passRow = rows
		return nil
	}

	if pass.Len() != v.primary.Len() {
		v.opts.warnf("passthrough %s has %d records for %d primary records; ignoring it", path, pass.Len(), v.primary.Len())
		return nil
	}
	v.pass = pass
	return nil
}

func (v *view) len() int { return v.primary.Len() }

// source picks the dataset holding a column.
func (v *view) source(name string) (*cs.Dataset, bool) {
	if v.primary.Has(name) {
		return v.primary, false
	}
	if v.pass != nil && v.pass.Has(name) {
		return v.pass, true
	}
	return nil, false
}

// realign reorders passthrough values into primary row order.
func realign[T any](vals []T, rows []int) []T {
	if rows == nil {
		return vals
	}
	out := make([]T, len(rows))
	for i, row := range rows {
		out[i] = vals[row]
	}
	return out
}

func (v *view) floats(name string) ([]float64, bool) {
	ds, fromPass := v.source(name)
	if ds == nil {
		return nil, false
	}
	vals, err := ds.FloatColumn(name)
	if err != nil {
		v.opts.warnf("skipping column %s: %v", name, err)
		return nil, false
	}
	if fromPass {
		vals = realign(vals, v.passRow)
	}
	return vals, true
}

func (v *view) ints(name string) ([]int64, bool) {
	ds, fromPass := v.source(name)
	if ds == nil {
		return nil, false
	}
	vals, err := ds.IntColumn(name)
	if err != nil {
		v.opts.warnf("skipping column %s: %v", name, err)
		return nil, false
	}
	if fromPass {
		vals = realign(vals, v.passRow)
	}
	return vals, true
}

func (v *view) strings(name string) ([]string, bool) {
	ds, fromPass := v.source(name)
	if ds == nil {
		return nil, false
	}
	vals, err := ds.StringColumn(name)
	if err != nil {
		v.opts.warnf("skipping column %s: %v", name, err)
		return nil, false
	}
	if fromPass {
		vals = realign(vals, v.passRow)
	}
	return vals, true
}

func (v *view) vectors(name string) ([][]float64, bool) {
	ds, fromPass := v.source(name)
	if ds == nil {
		return nil, false
	}
	vals, err := ds.VectorColumn(name)
	if err != nil {
		v.opts.warnf("skipping column %s: %v", name, err)
		return nil, false
	}
	if fromPass {
		vals = realign(vals, v.passRow)
	}
	return vals, true
}
