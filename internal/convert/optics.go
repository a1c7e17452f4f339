package convert

import (
	"strconv"
	"strings"

	"github.com/brisvag/cs2star/internal/star"
)

// opticsField ties a cryoSPARC column to an optics-table label.
type opticsField struct {
	field string
	label string
}

// Microscope parameters are uniform within one metadata file, so the
// optics group is derived from each file's first record.
var particleOpticsFields = []opticsField{
	{"ctf/accel_kv", "rlnVoltage"},
	{"ctf/cs_mm", "rlnSphericalAberration"},
	{"ctf/amp_contrast", "rlnAmplitudeContrast"},
	{"blob/psize_A", "rlnImagePixelSize"},
}

var micrographOpticsFields = []opticsField{
	{"mscope_params/accel_kv", "rlnVoltage"},
	{"mscope_params/cs_mm", "rlnSphericalAberration"},
	{"mscope_params/amp_contrast", "rlnAmplitudeContrast"},
	{"micrograph_blob/psize_A", "rlnMicrographPixelSize"},
}

// opticsSet deduplicates optics groups across metadata files and numbers
// them starting at 1, matching RELION's 1-based group convention.
type opticsSet struct {
	fields []opticsField
	labels []string
	groups []opticsGroup
	byKey  map[string]int
}

type opticsGroup struct {
	values []string
}

func newOpticsSet(fields []opticsField) *opticsSet {
	return &opticsSet{fields: fields, byKey: make(map[string]int)}
}

// groupColumn assigns the view's records to an optics group and returns
// the per-record group column.
func (o *opticsSet) groupColumn(v *view) []string {
	var labels []string
	byLabel := make(map[string]string)
	for _, f := range o.fields {
		vals, ok := v.floats(f.field)
		if !ok || len(vals) == 0 {
			continue
		}
		labels = append(labels, f.label)
		byLabel[f.label] = fmtFloat(vals[0])
	}

	if o.labels == nil {
		o.labels = labels
	}

	// Later files may lack a parameter the first one had; keep group
	// rows rectangular regardless.
	values := make([]string, len(o.labels))
	for i, label := range o.labels {
		if val, ok := byLabel[label]; ok {
			values[i] = val
		} else {
			values[i] = fmtFloat(0)
		}
	}

	key := strings.Join(values, "|")
	group, ok := o.byKey[key]
	if !ok {
		o.groups = append(o.groups, opticsGroup{values: values})
		group = len(o.groups)
		o.byKey[key] = group
	}

	out := make([]string, v.len())
	g := strconv.Itoa(group)
	for i := range out {
		out[i] = g
	}
	return out
}

// table renders the collected groups as a data_optics block.
func (o *opticsSet) table() *star.Table {
	labels := append([]string{"rlnOpticsGroup", "rlnOpticsGroupName"}, o.labels...)
	t := star.NewTable("optics", labels...)
	for i, g := range o.groups {
		row := []string{strconv.Itoa(i + 1), "opticsGroup" + strconv.Itoa(i+1)}
		row = append(row, g.values...)
		t.Rows = append(t.Rows, row)
	}
	return t
}
