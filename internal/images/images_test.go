package images

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/brisvag/cs2star/internal/star"
)

func writeSource(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", rel, err)
	}
}

func quietOptions(root, dest string) (Options, *[]string) {
	var warnings []string
	return Options{
		ProjectRoot: root,
		DestDir:     dest,
		Warnf: func(format string, args ...any) {
			warnings = append(warnings, fmt.Sprintf(format, args...))
		},
	}, &warnings
}

func TestFixPath(t *testing.T) {
	cases := []struct {
		in   string
		addS bool
		want string
	}{
		{"J12/extract/stack.mrc", true, "dest/patches/J12/stack.mrcs"},
		{"J3/motioncorrected/mic.mrc", false, "dest/micrographs/J3/mic.mrc"},
		{"000042@J12/extract/stack.mrc", true, "000042@dest/patches/J12/stack.mrcs"},
	}
	for _, tc := range cases {
		parent := "dest/micrographs"
		if tc.addS {
			parent = "dest/patches"
		}
		if got := FixPath(tc.in, parent, tc.addS); got != tc.want {
			t.Errorf("FixPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTransferCopies(t *testing.T) {
	root := t.TempDir()
	dest := t.TempDir()
	writeSource(t, root, "J1/extract/a.mrc", "aaa")
	writeSource(t, root, "J2/extract/b.mrc", "bbb")

	opts, _ := quietOptions(root, dest)
	opts.AddS = true
	paths := []string{"J1/extract/a.mrc", "J2/extract/b.mrc"}
	if err := Transfer(paths, opts); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	for _, want := range []string{"J1/a.mrcs", "J2/b.mrcs"} {
		if _, err := os.Stat(filepath.Join(dest, want)); err != nil {
			t.Errorf("missing %s: %v", want, err)
		}
	}
}

func TestTransferSkipsExisting(t *testing.T) {
	root := t.TempDir()
	dest := t.TempDir()
	writeSource(t, root, "J1/extract/a.mrc", "new content")
	writeSource(t, dest, "J1/a.mrc", "old content")

	opts, warnings := quietOptions(root, dest)
	if err := Transfer([]string{"J1/extract/a.mrc"}, opts); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dest, "J1", "a.mrc"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "old content" {
		t.Error("existing file was clobbered below overwrite level 2")
	}
	if len(*warnings) == 0 {
		t.Error("expected a skipped-files notice")
	}
}

func TestTransferReplacesDanglingLink(t *testing.T) {
	root := t.TempDir()
	dest := t.TempDir()
	writeSource(t, root, "J1/extract/a.mrc", "content")

	linkDir := filepath.Join(dest, "J1")
	if err := os.MkdirAll(linkDir, 0755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(linkDir, "a.mrc")
	if err := os.Symlink(filepath.Join(root, "gone.mrc"), link); err != nil {
		t.Fatal(err)
	}

	// Overwrite level 0: a live file would be kept, but a link to
	// nothing is replaced.
	opts, warnings := quietOptions(root, dest)
	if err := Transfer([]string{"J1/extract/a.mrc"}, opts); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	data, err := os.ReadFile(link)
	if err != nil {
		t.Fatalf("destination unreadable after transfer: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("unexpected destination content %q", data)
	}
	if len(*warnings) != 0 {
		t.Errorf("unexpected warnings: %v", *warnings)
	}
}

func TestTransferOverwriteReplacesAndCacheSkips(t *testing.T) {
	root := t.TempDir()
	dest := t.TempDir()
	writeSource(t, root, "J1/extract/a.mrc", "content")

	opts, _ := quietOptions(root, dest)
	opts.Overwrite = 2
	if err := Transfer([]string{"J1/extract/a.mrc"}, opts); err != nil {
		t.Fatalf("first transfer: %v", err)
	}

	copied := filepath.Join(dest, "J1", "a.mrc")
	first, err := os.Stat(copied)
	if err != nil {
		t.Fatal(err)
	}

	// Unchanged source: the cache makes the forced re-run a no-op.
	if err := Transfer([]string{"J1/extract/a.mrc"}, opts); err != nil {
		t.Fatalf("second transfer: %v", err)
	}
	second, err := os.Stat(copied)
	if err != nil {
		t.Fatal(err)
	}
	if !second.ModTime().Equal(first.ModTime()) {
		t.Error("unchanged source was recopied despite the cache")
	}

	// Changed source: the copy happens again.
	writeSource(t, root, "J1/extract/a.mrc", "different content")
	if err := Transfer([]string{"J1/extract/a.mrc"}, opts); err != nil {
		t.Fatalf("third transfer: %v", err)
	}
	data, err := os.ReadFile(copied)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "different content" {
		t.Error("changed source was not recopied")
	}
}

func TestTransferSymlinks(t *testing.T) {
	root := t.TempDir()
	dest := t.TempDir()
	writeSource(t, root, "J1/motioncorrected/mic.mrc", "mic")

	opts, _ := quietOptions(root, dest)
	opts.Mode = Symlink
	if err := Transfer([]string{"J1/motioncorrected/mic.mrc"}, opts); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	link := filepath.Join(dest, "J1", "mic.mrc")
	info, err := os.Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatal("expected a symlink")
	}
	data, err := os.ReadFile(link)
	if err != nil || string(data) != "mic" {
		t.Errorf("link does not resolve to the source: %q, %v", data, err)
	}
}

func TestTransferOnlyGlob(t *testing.T) {
	root := t.TempDir()
	dest := t.TempDir()
	writeSource(t, root, "J1/extract/keep.mrc", "k")
	writeSource(t, root, "J2/extract/drop.mrc", "d")

	opts, _ := quietOptions(root, dest)
	opts.Only = "J1/**"
	paths := []string{"J1/extract/keep.mrc", "J2/extract/drop.mrc"}
	if err := Transfer(paths, opts); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "J1", "keep.mrc")); err != nil {
		t.Errorf("matching file not transferred: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dest, "J2", "drop.mrc")); err == nil {
		t.Error("non-matching file was transferred")
	}
}

func TestRewriteColumn(t *testing.T) {
	table := star.NewTable("particles", "rlnImageName")
	table.AddRow("000001@J1/extract/stack.mrc")
	table.AddRow("000002@J1/extract/stack.mrc")

	if !RewriteColumn(table, "rlnImageName", "out/patches", true) {
		t.Fatal("column not found")
	}
	if got := table.Rows[0][0]; got != "000001@out/patches/J1/stack.mrcs" {
		t.Errorf("unexpected rewrite %q", got)
	}
	if RewriteColumn(table, "rlnMicrographName", "out/micrographs", false) {
		t.Error("rewrite of a missing column reported success")
	}
}

func TestColumnPaths(t *testing.T) {
	table := star.NewTable("particles", "rlnImageName")
	table.AddRow("000001@J1/extract/stack.mrc")
	table.AddRow("000002@J1/extract/stack.mrc")
	table.AddRow("000001@J2/extract/other.mrc")

	got := ColumnPaths(table, "rlnImageName")
	want := []string{"J1/extract/stack.mrc", "J2/extract/other.mrc"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("path %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
