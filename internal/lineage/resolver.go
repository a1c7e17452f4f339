package lineage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/brisvag/cs2star/internal/job"
)

const (
	// Hetero refinement splits its good particles across per-class
	// outputs; the passthrough covers all classes at once.
	classGroupMarker = "particles_class_"
	allClassesGroup  = "particles_all_classes"
)

// splitPattern extracts the numeric identifier of a Particle Sets output.
var splitPattern = regexp.MustCompile(`split_(\d+)`)

// excludedMarkers mark metadata files describing records that were thrown
// away or never finished; those files are never useful for conversion.
var excludedMarkers = []string{
	"excluded",
	"incomplete",
	"remainder",
	"rejected",
	"uncategorized",
}

// Subset restricts which numbered split outputs of a Particle Sets job
// are eligible. A nil Subset accepts every split.
type Subset map[int]bool

// ParseSubset parses a comma-separated list of split identifiers.
func ParseSubset(s string) (Subset, error) {
	if s == "" {
		return nil, nil
	}
	subset := make(Subset)
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid set %q: %w", part, err)
		}
		subset[id] = true
	}
	return subset, nil
}

// Resolver walks a job's ancestry to assemble the minimal set of metadata
// files describing its particles and micrographs. All per-node faults
// (missing descriptors, dangling metafile paths) are absorbed as warnings
// and partial results; the caller decides whether the result is usable.
type Resolver struct {
	// Warnf receives non-fatal diagnostics. Defaults to stderr.
	Warnf func(format string, args ...any)

	// load reads a job descriptor; replaced in tests.
	load func(dir string) (*job.Descriptor, error)

	// exists checks a candidate path; replaced in tests.
	exists func(path string) bool
}

// NewResolver returns a Resolver with default filesystem access and
// stderr warnings.
func NewResolver() *Resolver {
	return &Resolver{
		Warnf: func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
		},
		load: job.Load,
		exists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// Resolve walks the ancestry graph rooted at jobDir and returns the
// resolved Index. Slots the ancestry cannot cover are simply left empty.
func (r *Resolver) Resolve(jobDir string, subset Subset) (*Index, error) {
	abs, err := filepath.Abs(jobDir)
	if err != nil {
		return nil, fmt.Errorf("resolving job directory: %w", err)
	}
	return r.resolve(abs, subset, map[string]bool{}), nil
}

// resolve handles one node of the walk. Each call owns its Index until it
// is merged into the caller's, so no state is shared across stack frames.
// The visited set guards against revisiting a job reachable through
// multiple descendants, and against cycles in malformed projects.
func (r *Resolver) resolve(jobDir string, subset Subset, visited map[string]bool) *Index {
	idx := NewIndex()
	if visited[jobDir] {
		return idx
	}
	visited[jobDir] = true

	desc, err := r.load(jobDir)
	if err != nil {
		r.Warnf("parent job %q is missing or corrupted", filepath.Base(jobDir))
		return idx
	}

	r.collect(idx, jobDir, desc, subset)

	// Drop anything that no longer exists on disk; an empty slot here may
	// still be filled by an ancestor.
	idx.filter(func(path string) bool {
		if r.exists(path) {
			return true
		}
		r.Warnf("the following file was supposed to contain relevant information, but does not exist:\n%s", path)
		return false
	})

	for _, parent := range desc.Parents {
		if idx.Full() {
			break
		}
		idx.Merge(r.resolve(filepath.Join(filepath.Dir(jobDir), parent), subset, visited))
	}

	return idx
}

// collect applies the node-local selection policy for the job's type.
// Metafile paths are declared relative to the project root, the parent of
// every job directory.
func (r *Resolver) collect(idx *Index, jobDir string, desc *job.Descriptor, subset Subset) {
	root := filepath.Dir(jobDir)

	switch desc.Kind() {
	case job.KindHeteroRefine:
		// The "good" particles are split into one output per class;
		// micrographs never come from this job type.
		for _, out := range desc.Outputs {
			if len(out.Metafiles) == 0 {
				continue
			}
			last := filepath.Join(root, out.Metafiles[len(out.Metafiles)-1])
			switch {
			case !out.Passthrough && strings.Contains(out.GroupName, classGroupMarker):
				idx.Add(Particles, Primary, last)
			case out.Passthrough && out.GroupName == allClassesGroup:
				idx.Add(Particles, Passthrough, last)
			}
		}

	case job.KindParticleSets:
		for _, out := range desc.Outputs {
			m := splitPattern.FindStringSubmatch(out.GroupName)
			if m == nil || len(out.Metafiles) == 0 {
				continue
			}
			id, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if subset != nil && !subset[id] {
				continue
			}
			kind := Primary
			if out.Passthrough {
				kind = Passthrough
			}
			idx.Add(Particles, kind, filepath.Join(root, out.Metafiles[len(out.Metafiles)-1]))
		}

	default:
		for _, out := range desc.Outputs {
			kind := Primary
			if out.Passthrough {
				kind = Passthrough
			}
			for _, f := range out.Metafiles {
				if excluded(f) {
					continue
				}
				switch {
				case strings.Contains(f, "particles"):
					idx.Add(Particles, kind, filepath.Join(root, f))
				case strings.Contains(f, "micrographs"):
					idx.Add(Micrographs, kind, filepath.Join(root, f))
				}
			}
		}
		idx.keepLast()
	}
}

func excluded(path string) bool {
	for _, marker := range excludedMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}
