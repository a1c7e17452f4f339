// Package job reads cryoSPARC per-job descriptors.
package job

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DescriptorFile is the name of the per-job manifest inside a job directory.
const DescriptorFile = "job.json"

// Kind identifies the selection policy that applies to a job's outputs.
// Every job type cryoSPARC emits maps to one of three kinds; anything the
// resolver does not treat specially is KindGeneric.
type Kind int

const (
	KindGeneric Kind = iota
	KindHeteroRefine
	KindParticleSets
)

const (
	typeHeteroRefine = "hetero_refine"
	typeParticleSets = "particle_sets"
)

// Output is one declared output of a job. Metafiles is temporally ordered
// by the producing pipeline: the last entry is the most complete revision.
type Output struct {
	GroupName   string   `json:"group_name"`
	Metafiles   []string `json:"metafiles"`
	Passthrough bool     `json:"passthrough"`
}

// Descriptor is the decoded job.json manifest.
type Descriptor struct {
	Type    string   `json:"type"`
	Outputs []Output `json:"output_results"`
	Parents []string `json:"parents"`
}

// Kind maps the job's type tag to its selection policy.
func (d *Descriptor) Kind() Kind {
	switch d.Type {
	case typeHeteroRefine:
		return KindHeteroRefine
	case typeParticleSets:
		return KindParticleSets
	default:
		return KindGeneric
	}
}

// Load reads and decodes the descriptor inside the given job directory.
func Load(dir string) (*Descriptor, error) {
	data, err := os.ReadFile(filepath.Join(dir, DescriptorFile))
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing descriptor: %w", err)
	}

	return &d, nil
}
