package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunFailsWithoutParticles(t *testing.T) {
	dir := t.TempDir()
	jobDir := filepath.Join(dir, "J1")
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		t.Fatal(err)
	}
	desc := `{"type": "import_movies", "parents": [], "output_results": []}`
	if err := os.WriteFile(filepath.Join(jobDir, "job.json"), []byte(desc), 0644); err != nil {
		t.Fatal(err)
	}

	err := run(rootCmd, []string{jobDir, filepath.Join(dir, "out")})
	if err == nil {
		t.Fatal("expected an error for a lineage without particle files")
	}
	if !strings.Contains(err.Error(), "no usable particle files") {
		t.Errorf("unexpected error: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "out")); !os.IsNotExist(statErr) {
		t.Error("destination should not be created when resolution fails")
	}
}
