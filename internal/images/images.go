// Package images copies or symlinks micrograph and particle stack files
// into a RELION-style destination layout, and rewrites star paths to
// point at the moved files.
package images

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"lukechampine.com/blake3"

	"github.com/brisvag/cs2star/internal/star"
)

// Mode selects between copying files and symlinking to the originals.
type Mode int

const (
	Copy Mode = iota
	Symlink
)

// Options configures a transfer into one destination subdirectory.
type Options struct {
	// ProjectRoot resolves the project-relative source paths.
	ProjectRoot string
	// DestDir is the target directory, e.g. <dest>/micrographs.
	DestDir string

	Mode Mode

	// Overwrite levels: 0 never clobbers, 1 clobbers star files only,
	// 2 also replaces existing images.
	Overwrite int

	// AddS appends an "s" to each file name, turning .mrc stacks into
	// the .mrcs extension RELION expects.
	AddS bool

	// Only restricts the transfer to source paths matching this
	// doublestar glob; empty matches everything.
	Only string

	Warnf func(format string, args ...any)
}

func (o *Options) warnf(format string, args ...any) {
	if o.Warnf != nil {
		o.Warnf(format, args...)
		return
	}
	fmt.Fprintf(os.Stderr, "warning: "+format+"\n", args...)
}

// Transfer moves the given project-relative image paths under
// opts.DestDir, grouped by their source job directory name. Existing
// files are left alone below overwrite level 2; at level 2, copies whose
// source is unchanged since the last run are skipped via the copy cache.
func Transfer(paths []string, opts Options) error {
	var cache *copyCache
	if opts.Mode == Copy {
		c, err := openCache(opts.DestDir)
		if err != nil {
			opts.warnf("copy cache unavailable: %v", err)
		} else {
			cache = c
			defer cache.Close()
		}
	}

	var skipped bool
	for _, p := range paths {
		if opts.Only != "" {
			ok, err := doublestar.Match(opts.Only, p)
			if err != nil {
				return fmt.Errorf("matching %q against %q: %w", p, opts.Only, err)
			}
			if !ok {
				continue
			}
		}

		src := filepath.Join(opts.ProjectRoot, p)
		dest := filepath.Join(opts.DestDir, jobDirName(p), destName(p, opts.AddS))

		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
		}

		info, err := os.Lstat(dest)
		exists := err == nil
		if exists && info.Mode()&os.ModeSymlink != 0 {
			if _, err := os.Stat(dest); err != nil {
				// A dangling link protects nothing; replace it.
				if err := os.Remove(dest); err != nil {
					return fmt.Errorf("removing dangling link %s: %w", dest, err)
				}
				exists = false
			}
		}
		if exists {
			if opts.Overwrite <= 1 {
				skipped = true
				continue
			}
			if opts.Mode == Copy && cache != nil && info.Mode().IsRegular() {
				srcInfo, err := os.Stat(src)
				if err == nil && cache.unchanged(dest, srcInfo) {
					continue
				}
			}
			// Symlinks are replaced, never written through.
			if info.Mode()&os.ModeSymlink != 0 {
				if err := os.Remove(dest); err != nil {
					return fmt.Errorf("removing stale link %s: %w", dest, err)
				}
			}
		}

		switch opts.Mode {
		case Copy:
			digest, srcInfo, err := copyFile(src, dest)
			if err != nil {
				return err
			}
			if cache != nil {
				if err := cache.record(dest, srcInfo, digest); err != nil {
					opts.warnf("recording copy of %s: %v", dest, err)
				}
			}
		case Symlink:
			abs, err := filepath.Abs(src)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", src, err)
			}
			if exists {
				os.Remove(dest)
			}
			if err := os.Symlink(abs, dest); err != nil {
				return fmt.Errorf("linking %s: %w", dest, err)
			}
		}
	}

	if skipped {
		opts.warnf("some files were not copied or linked because they already exist; pass -ff to overwrite")
	}
	return nil
}

// copyFile copies src to dest, hashing the content on the way through.
func copyFile(src, dest string) (digest string, info os.FileInfo, err error) {
	in, err := os.Open(src)
	if err != nil {
		return "", nil, fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err = in.Stat()
	if err != nil {
		return "", nil, fmt.Errorf("inspecting %s: %w", src, err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", nil, fmt.Errorf("creating %s: %w", dest, err)
	}

	hasher := blake3.New(32, nil)
	if _, err := io.Copy(io.MultiWriter(out, hasher), in); err != nil {
		out.Close()
		return "", nil, fmt.Errorf("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return "", nil, fmt.Errorf("writing %s: %w", dest, err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), info, nil
}

// jobDirName extracts the job directory from a project-relative path
// like J12/extract/stack.mrc.
func jobDirName(p string) string {
	return filepath.Base(filepath.Dir(filepath.Dir(p)))
}

func destName(p string, addS bool) string {
	name := filepath.Base(p)
	if addS {
		name += "s"
	}
	return name
}

// FixPath rewrites a project-relative image path to its destination
// location under newParent. An index prefix like 000001@path is kept.
func FixPath(p, newParent string, addS bool) string {
	prefix := ""
	if at := strings.IndexByte(p, '@'); at >= 0 {
		prefix, p = p[:at+1], p[at+1:]
	}
	return prefix + filepath.Join(newParent, jobDirName(p), destName(p, addS))
}

// RewriteColumn repoints a path column at the destination layout.
// Reports whether the table carries the column.
func RewriteColumn(t *star.Table, label, newParent string, addS bool) bool {
	col := t.Column(label)
	if col < 0 {
		return false
	}
	for _, row := range t.Rows {
		row[col] = FixPath(row[col], newParent, addS)
	}
	return true
}

// ColumnPaths collects the unique source paths in a column, index
// prefixes stripped, in first-seen order.
func ColumnPaths(t *star.Table, label string) []string {
	col := t.Column(label)
	if col < 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, row := range t.Rows {
		p := row[col]
		if at := strings.IndexByte(p, '@'); at >= 0 {
			p = p[at+1:]
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
