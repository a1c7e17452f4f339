package convert

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule maps one numeric cryoSPARC column onto one STAR label. Structural
// columns (paths, poses, coordinates) are handled in code, not by rules.
type Rule struct {
	Field string `yaml:"field"`
	Label string `yaml:"label"`
	// Scale multiplies the value; 0 means 1.
	Scale float64 `yaml:"scale"`
	// Radians converts the value from radians to degrees.
	Radians bool `yaml:"radians"`
	// Int formats the value as an integer.
	Int bool `yaml:"int"`
}

// Rules holds the per-category mapping tables.
type Rules struct {
	Particles   []Rule `yaml:"particles"`
	Micrographs []Rule `yaml:"micrographs"`
}

// DefaultRules returns the built-in mapping, covering the labels RELION
// needs for CTF refinement and classification.
func DefaultRules() *Rules {
	ctf := []Rule{
		{Field: "ctf/defocus_u", Label: "rlnDefocusU"},
		{Field: "ctf/defocus_v", Label: "rlnDefocusV"},
		{Field: "ctf/angle_astigmatism", Label: "rlnDefocusAngle", Radians: true},
		{Field: "ctf/phase_shift", Label: "rlnPhaseShift", Radians: true},
		{Field: "ctf/cross_corr_ctffind4", Label: "rlnCtfFigureOfMerit"},
		{Field: "ctf/ctf_fit_to_A", Label: "rlnCtfMaxResolution"},
	}

	particles := append([]Rule{
		{Field: "alignments3D/class", Label: "rlnClassNumber", Int: true},
		{Field: "alignments2D/class", Label: "rlnClassNumber", Int: true},
	}, ctf...)

	return &Rules{Particles: particles, Micrographs: ctf}
}

// LoadRules reads a rules file. Sections the file leaves empty fall back
// to the built-in defaults.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}

	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}

	defaults := DefaultRules()
	if rules.Particles == nil {
		rules.Particles = defaults.Particles
	}
	if rules.Micrographs == nil {
		rules.Micrographs = defaults.Micrographs
	}
	return &rules, nil
}
