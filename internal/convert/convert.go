// Package convert turns resolved cryoSPARC metadata files into RELION
// star documents.
package convert

import (
	"fmt"
	"os"
	"strconv"

	"github.com/brisvag/cs2star/internal/star"
)

// Options configures a conversion.
type Options struct {
	// SwapXY interprets fractional coordinates against the swapped
	// micrograph dimensions. This is usually the convention change
	// between cryoSPARC and RELION.
	SwapXY  bool
	InvertX bool
	InvertY bool

	// Classes restricts particles to the given class numbers; nil keeps
	// everything.
	Classes map[int]bool

	// Rules overrides the built-in numeric label mapping.
	Rules *Rules

	// Warnf receives non-fatal diagnostics. Defaults to stderr.
	Warnf func(format string, args ...any)
}

func (o *Options) warnf(format string, args ...any) {
	if o.Warnf != nil {
		o.Warnf(format, args...)
		return
	}
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

func (o *Options) rules() *Rules {
	if o.Rules != nil {
		return o.Rules
	}
	return DefaultRules()
}

// Particles converts primary/passthrough particle file pairs into a star
// document with an optics block and a particles block.
func Particles(pairs []Pair, opts Options) (*star.Document, error) {
	optics := newOpticsSet(particleOpticsFields)

	var tables []*star.Table
	for _, pair := range pairs {
		v, err := newView(pair, &opts)
		if err != nil {
			return nil, err
		}
		tables = append(tables, particleTable(v, optics, &opts))
	}

	table := mergeTables("particles", tables, &opts)
	if opts.Classes != nil {
		filterClasses(table, opts.Classes, &opts)
	}

	return &star.Document{Tables: []*star.Table{optics.table(), table}}, nil
}

// Micrographs converts micrograph file pairs into a star document.
func Micrographs(pairs []Pair, opts Options) (*star.Document, error) {
	optics := newOpticsSet(micrographOpticsFields)

	var tables []*star.Table
	for _, pair := range pairs {
		v, err := newView(pair, &opts)
		if err != nil {
			return nil, err
		}
		tables = append(tables, micrographTable(v, optics, &opts))
	}

	return &star.Document{
		Tables: []*star.Table{optics.table(), mergeTables("micrographs", tables, &opts)},
	}, nil
}

// BackfillOptics copies optics labels that RELION expects on micrographs
// but that cryoSPARC only records on particles (for example when the
// micrograph metadata predates CTF estimation).
func BackfillOptics(mics, parts *star.Document) {
	micOptics := findTable(mics, "optics")
	partOptics := findTable(parts, "optics")
	if micOptics == nil || partOptics == nil || len(partOptics.Rows) == 0 {
		return
	}

	for _, label := range []string{"rlnVoltage", "rlnSphericalAberration", "rlnAmplitudeContrast"} {
		col := partOptics.Column(label)
		if col < 0 || micOptics.HasColumn(label) {
			continue
		}
		micOptics.AddColumn(label, partOptics.Rows[0][col])
	}
}

func findTable(doc *star.Document, name string) *star.Table {
	for _, t := range doc.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// columns builds up a table column by column, keeping label order.
type columns struct {
	labels []string
	data   map[string][]string
	n      int
}

func newColumns(n int) *columns {
	return &columns{data: make(map[string][]string), n: n}
}

func (c *columns) add(label string, values []string) {
	if _, ok := c.data[label]; ok {
		return
	}
	c.labels = append(c.labels, label)
	c.data[label] = values
}

func (c *columns) table(name string) *star.Table {
	t := star.NewTable(name, c.labels...)
	for i := 0; i < c.n; i++ {
		row := make([]string, len(c.labels))
		for j, label := range c.labels {
			row[j] = c.data[label][i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func particleTable(v *view, optics *opticsSet, opts *Options) *star.Table {
	n := v.len()
	cols := newColumns(n)

	// Image and micrograph identity.
	if paths, ok := v.strings("blob/path"); ok {
		if idxs, ok := v.ints("blob/idx"); ok {
			names := make([]string, n)
			for i := range names {
				names[i] = fmt.Sprintf("%06d@%s", idxs[i]+1, paths[i])
			}
			cols.add("rlnImageName", names)
		}
	}
	if mics, ok := v.strings("location/micrograph_path"); ok {
		cols.add("rlnMicrographName", mics)
	}

	addCoordinates(v, cols, opts)
	addAngles(v, cols)
	addShifts(v, cols)
	applyRules(v, cols, opts.rules().Particles)

	cols.add("rlnOpticsGroup", optics.groupColumn(v))
	return cols.table("particles")
}

func micrographTable(v *view, optics *opticsSet, opts *Options) *star.Table {
	n := v.len()
	cols := newColumns(n)

	if paths, ok := v.strings("micrograph_blob/path"); ok {
		cols.add("rlnMicrographName", paths)
	}

	applyRules(v, cols, opts.rules().Micrographs)

	cols.add("rlnOpticsGroup", optics.groupColumn(v))
	return cols.table("micrographs")
}

// addCoordinates converts fractional picking coordinates into absolute
// pixel coordinates against the micrograph shape.
func addCoordinates(v *view, cols *columns, opts *Options) {
	xs, okx := v.floats("location/center_x_frac")
	ys, oky := v.floats("location/center_y_frac")
	shapes, oks := v.vectors("location/micrograph_shape")
	if !okx || !oky || !oks {
		return
	}

	outX := make([]string, len(xs))
	outY := make([]string, len(ys))
	for i := range xs {
		// The shape is stored (dim0, dim1); with SwapXY the x
		// coordinate runs along dim1.
		dimX, dimY := shapes[i][0], shapes[i][1]
		if opts.SwapXY {
			dimX, dimY = dimY, dimX
		}
		x := xs[i] * dimX
		y := ys[i] * dimY
		if opts.InvertX {
			x = dimX - x
		}
		if opts.InvertY {
			y = dimY - y
		}
		outX[i] = fmtFloat(x)
		outY[i] = fmtFloat(y)
	}
	cols.add("rlnCoordinateX", outX)
	cols.add("rlnCoordinateY", outY)
}

// addAngles converts alignment poses to Euler angles.
func addAngles(v *view, cols *columns) {
	if poses, ok := v.vectors("alignments3D/pose"); ok && len(poses) > 0 && len(poses[0]) == 3 {
		rots := make([]string, len(poses))
		tilts := make([]string, len(poses))
		psis := make([]string, len(poses))
		for i, p := range poses {
			rot, tilt, psi := poseToEuler([3]float64{p[0], p[1], p[2]})
			rots[i] = fmtFloat(rot)
			tilts[i] = fmtFloat(tilt)
			psis[i] = fmtFloat(psi)
		}
		cols.add("rlnAngleRot", rots)
		cols.add("rlnAngleTilt", tilts)
		cols.add("rlnAnglePsi", psis)
		return
	}

	// 2D alignments carry only an in-plane rotation.
	if poses, ok := v.floats("alignments2D/pose"); ok {
		psis := make([]string, len(poses))
		for i, p := range poses {
			psis[i] = fmtFloat(degrees(p))
		}
		cols.add("rlnAnglePsi", psis)
	}
}

// addShifts converts refined pixel shifts to Angstrom origins.
func addShifts(v *view, cols *columns) {
	shifts, ok := v.vectors("alignments3D/shift")
	if !ok || len(shifts) == 0 || len(shifts[0]) != 2 {
		return
	}
	psizes, ok := v.floats("blob/psize_A")
	if !ok {
		return
	}

	outX := make([]string, len(shifts))
	outY := make([]string, len(shifts))
	for i, s := range shifts {
		outX[i] = fmtFloat(s[0] * psizes[i])
		outY[i] = fmtFloat(s[1] * psizes[i])
	}
	cols.add("rlnOriginXAngst", outX)
	cols.add("rlnOriginYAngst", outY)
}

func applyRules(v *view, cols *columns, rules []Rule) {
	for _, rule := range rules {
		if rule.Int {
			vals, ok := v.ints(rule.Field)
			if !ok {
				continue
			}
			out := make([]string, len(vals))
			for i, val := range vals {
				out[i] = strconv.FormatInt(val, 10)
			}
			cols.add(rule.Label, out)
			continue
		}

		vals, ok := v.floats(rule.Field)
		if !ok {
			continue
		}
		out := make([]string, len(vals))
		for i, val := range vals {
			if rule.Radians {
				val = degrees(val)
			}
			if rule.Scale != 0 {
				val *= rule.Scale
			}
			out[i] = fmtFloat(val)
		}
		cols.add(rule.Label, out)
	}
}

// mergeTables concatenates per-pair tables. Pairs normally expose the
// same columns; when they do not, only the shared columns survive.
func mergeTables(name string, tables []*star.Table, opts *Options) *star.Table {
	if len(tables) == 0 {
		return star.NewTable(name)
	}

	labels := tables[0].Labels
	for _, t := range tables[1:] {
		var shared []string
		for _, l := range labels {
			if t.HasColumn(l) {
				shared = append(shared, l)
			}
		}
		if len(shared) != len(labels) || len(shared) != len(t.Labels) {
			opts.warnf("metadata files expose different columns; keeping the %d shared ones", len(shared))
		}
		labels = shared
	}

	out := star.NewTable(name, labels...)
	for _, t := range tables {
		idx := make([]int, len(labels))
		for i, l := range labels {
			idx[i] = t.Column(l)
		}
		for _, row := range t.Rows {
			projected := make([]string, len(labels))
			for i, j := range idx {
				projected[i] = row[j]
			}
			out.Rows = append(out.Rows, projected)
		}
	}
	return out
}

func filterClasses(t *star.Table, classes map[int]bool, opts *Options) {
	col := t.Column("rlnClassNumber")
	if col < 0 {
		opts.warnf("class selection requested but the data carries no class assignments")
		return
	}

	kept := t.Rows[:0]
	for _, row := range t.Rows {
		class, err := strconv.Atoi(row[col])
		if err == nil && classes[class] {
			kept = append(kept, row)
		}
	}
	t.Rows = kept
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
