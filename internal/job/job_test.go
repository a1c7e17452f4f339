package job

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	content := `{
		"type": "extract_micrographs",
		"parents": ["J1", "J2"],
		"output_results": [
			{"group_name": "particles", "metafiles": ["J3/particles.cs"], "passthrough": false},
			{"group_name": "particles", "metafiles": ["J3/passthrough_particles.cs"], "passthrough": true}
		]
	}`
	if err := os.WriteFile(filepath.Join(dir, DescriptorFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := Load(dir)
	if err != nil {
		t.Fatalf("loading descriptor: %v", err)
	}
	if d.Type != "extract_micrographs" || d.Kind() != KindGeneric {
		t.Errorf("unexpected type %q kind %v", d.Type, d.Kind())
	}
	if len(d.Parents) != 2 || len(d.Outputs) != 2 {
		t.Errorf("unexpected descriptor: %+v", d)
	}
	if !d.Outputs[1].Passthrough {
		t.Error("passthrough flag not decoded")
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for a directory without a descriptor")
	}

	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, DescriptorFile), []byte("{"), 0644)
	if _, err := Load(dir); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		typ  string
		want Kind
	}{
		{"hetero_refine", KindHeteroRefine},
		{"particle_sets", KindParticleSets},
		{"homo_refine", KindGeneric},
		{"", KindGeneric},
	}
	for _, tc := range cases {
		d := &Descriptor{Type: tc.typ}
		if got := d.Kind(); got != tc.want {
			t.Errorf("Kind(%q) = %v, want %v", tc.typ, got, tc.want)
		}
	}
}
