// Package lineage resolves the metadata files that describe a cryoSPARC
// job by walking backwards through its ancestry of upstream jobs.
package lineage

import "sort"

// Category is the semantic subject of a metadata file.
type Category string

const (
	Particles   Category = "particles"
	Micrographs Category = "micrographs"
)

// FileKind distinguishes a job's own metadata from passthrough metadata
// re-exposed from an earlier ancestor.
type FileKind string

const (
	Primary     FileKind = "primary"
	Passthrough FileKind = "passthrough"
)

// Slot addresses one of the four (category, kind) path sets of an Index.
type Slot struct {
	Category Category
	Kind     FileKind
}

// Slots lists the four slots of an Index in a fixed order.
var Slots = []Slot{
	{Particles, Primary},
	{Particles, Passthrough},
	{Micrographs, Primary},
	{Micrographs, Passthrough},
}

// Index accumulates the resolved metadata file paths, one path set per
// (category, kind) slot. An Index is created empty, filled during a single
// resolution and discarded afterwards.
type Index struct {
	slots map[Slot]map[string]struct{}
}

// NewIndex returns an Index with all four slots empty.
func NewIndex() *Index {
	idx := &Index{slots: make(map[Slot]map[string]struct{}, len(Slots))}
	for _, s := range Slots {
		idx.slots[s] = make(map[string]struct{})
	}
	return idx
}

// Add records a path in the given slot.
func (idx *Index) Add(cat Category, kind FileKind, path string) {
	idx.slots[Slot{cat, kind}][path] = struct{}{}
}

// Paths returns the slot's paths in sorted order.
func (idx *Index) Paths(cat Category, kind FileKind) []string {
	set := idx.slots[Slot{cat, kind}]
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Full reports whether every slot holds at least one path.
func (idx *Index) Full() bool {
	for _, s := range Slots {
		if len(idx.slots[s]) == 0 {
			return false
		}
	}
	return true
}

// Merge fills each of idx's empty slots with the corresponding paths from
// other. Slots already populated are left untouched: data found closer to
// the starting job always wins over ancestor data.
func (idx *Index) Merge(other *Index) {
	for _, s := range Slots {
		if len(idx.slots[s]) > 0 {
			continue
		}
		for p := range other.slots[s] {
			idx.slots[s][p] = struct{}{}
		}
	}
}

// keepLast collapses every slot to its lexicographically last path. The
// pipeline's file naming makes that path the most recently produced one.
// Applying keepLast repeatedly, at any granularity, yields the same result.
func (idx *Index) keepLast() {
	for _, s := range Slots {
		set := idx.slots[s]
		if len(set) <= 1 {
			continue
		}
		last := ""
		for p := range set {
			if p > last {
				last = p
			}
		}
		idx.slots[s] = map[string]struct{}{last: {}}
	}
}

// filter drops every path for which keep returns false.
func (idx *Index) filter(keep func(path string) bool) {
	for _, s := range Slots {
		for p := range idx.slots[s] {
			if !keep(p) {
				delete(idx.slots[s], p)
			}
		}
	}
}
