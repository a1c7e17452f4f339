// Package main provides the cs2star CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brisvag/cs2star/internal/convert"
	"github.com/brisvag/cs2star/internal/images"
	"github.com/brisvag/cs2star/internal/lineage"
	"github.com/brisvag/cs2star/internal/star"
)

var rootCmd = &cobra.Command{
	Use:   "cs2star JOB_DIR [DEST_DIR]",
	Short: "Copy and convert a cryoSPARC job directory into a RELION-ready directory",
	Long: `cs2star walks a cryoSPARC job and its ancestry, collects the particle
and micrograph metadata files, and writes RELION star files into the
destination directory. Images can optionally be copied or symlinked
alongside.

WARNING: --swapxy is on by default. This is usually the convention
change between cryoSPARC and RELION, but your mileage may vary, so
check your data after conversion.

Note that without -p/-m the image path columns are not usable (mrc
extension and broken paths).`,
	Args: cobra.RangeArgs(1, 2),
	RunE: run,
}

var (
	overwrite   int
	dryRun      bool
	copyFlag    bool
	symlinkFlag bool
	micFlag     bool
	patchFlag   bool
	setsFlag    string
	classesFlag string
	swapXY      bool
	invertX     bool
	invertY     bool
	rulesFile   string
	onlyGlob    string
)

func init() {
	f := rootCmd.Flags()
	f.CountVarP(&overwrite, "overwrite", "f", "overwrite existing outputs; once for star files only, twice also for images")
	f.BoolVarP(&dryRun, "dry-run", "d", false, "check inputs and show what would be done without doing it")
	f.BoolVarP(&copyFlag, "copy", "c", false, "copy the images")
	f.BoolVarP(&symlinkFlag, "symlink", "s", false, "symlink to the images (default)")
	f.BoolVarP(&micFlag, "micrographs", "m", false, "copy/link the full micrographs")
	f.BoolVarP(&patchFlag, "patches", "p", false, "copy/link the particle patches, if available")
	f.StringVar(&setsFlag, "sets", "", "only use these sets (only used if job is Particle Sets Tool); comma-separated list")
	f.StringVar(&classesFlag, "classes", "", "only use particles from these classes; comma-separated list")
	f.BoolVar(&swapXY, "swapxy", true, "swap x and y axes")
	f.BoolVar(&invertX, "invertx", false, "invert x axis")
	f.BoolVar(&invertY, "inverty", false, "invert y axis")
	f.StringVar(&rulesFile, "rules", "", "YAML file overriding the column-to-label mapping")
	f.StringVar(&onlyGlob, "only", "", "only copy/link images matching this glob")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	jobDir := args[0]
	destDir := "."
	if len(args) == 2 {
		destDir = args[1]
	}
	if copyFlag && symlinkFlag {
		return fmt.Errorf("--copy and --symlink are mutually exclusive")
	}
	mode := images.Symlink
	if copyFlag {
		mode = images.Copy
	}

	subset, err := lineage.ParseSubset(setsFlag)
	if err != nil {
		return fmt.Errorf("parsing --sets: %w", err)
	}
	classes, err := parseClasses(classesFlag)
	if err != nil {
		return fmt.Errorf("parsing --classes: %w", err)
	}

	var rules *convert.Rules
	if rulesFile != "" {
		rules, err = convert.LoadRules(rulesFile)
		if err != nil {
			return err
		}
	}

	idx, err := lineage.NewResolver().Resolve(jobDir, subset)
	if err != nil {
		return err
	}

	particles := idx.Paths(lineage.Particles, lineage.Primary)
	if len(particles) == 0 {
		return fmt.Errorf("no usable particle files were found")
	}
	particlesPass := idx.Paths(lineage.Particles, lineage.Passthrough)
	mics := idx.Paths(lineage.Micrographs, lineage.Primary)
	micsPass := idx.Paths(lineage.Micrographs, lineage.Passthrough)

	// Paths in the star files must be absolute or RELION resolves them
	// against its own base directory.
	destDir, err = filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("resolving destination: %w", err)
	}
	destStar := filepath.Join(destDir, "particles.star")
	destMicStar := filepath.Join(destDir, "micrographs.star")

	toCreate := []string{destDir}
	if micFlag {
		toCreate = append(toCreate, filepath.Join(destDir, "micrographs"))
	}
	if patchFlag {
		toCreate = append(toCreate, filepath.Join(destDir, "patches"))
	}

	summary := resolutionSummary(particles, particlesPass, mics, micsPass,
		append(toCreate, destStar, destMicStar))
	if dryRun {
		fmt.Println(summary)
		return nil
	}

	if fileExists(destStar) && overwrite == 0 {
		return fmt.Errorf("particle star file already exists; to overwrite, use -f")
	}
	if fileExists(destMicStar) && overwrite == 0 {
		return fmt.Errorf("micrograph star file already exists; to overwrite, use -f")
	}

	for _, dir := range toCreate {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := writeLog(destDir, summary); err != nil {
		return err
	}

	partPairs, err := convert.PairFiles(particles, particlesPass)
	if err != nil {
		return err
	}
	micPairs, err := convert.PairFiles(mics, micsPass)
	if err != nil {
		return err
	}

	opts := convert.Options{
		SwapXY:  swapXY,
		InvertX: invertX,
		InvertY: invertY,
		Classes: classes,
		Rules:   rules,
	}

	fmt.Println("Loading particle data...")
	partDoc, err := convert.Particles(partPairs, opts)
	if err != nil {
		return err
	}
	fmt.Println("Loading micrograph data...")
	micDoc, err := convert.Micrographs(micPairs, opts)
	if err != nil {
		return err
	}
	convert.BackfillOptics(micDoc, partDoc)

	projectRoot := filepath.Dir(mustAbs(jobDir))
	partTable := tableByName(partDoc, "particles")
	micTable := tableByName(micDoc, "micrographs")

	if micFlag {
		paths := images.ColumnPaths(partTable, "rlnMicrographName")
		if paths == nil {
			return fmt.Errorf("could not find micrograph paths in the data")
		}
		target := filepath.Join(destDir, "micrographs")
		images.RewriteColumn(partTable, "rlnMicrographName", target, false)
		images.RewriteColumn(micTable, "rlnMicrographName", target, false)
		fmt.Printf("%s micrographs to %s...\n", transferVerb(mode), target)
		if err := images.Transfer(paths, images.Options{
			ProjectRoot: projectRoot,
			DestDir:     target,
			Mode:        mode,
			Overwrite:   overwrite,
			Only:        onlyGlob,
		}); err != nil {
			return err
		}
	}

	if patchFlag {
		paths := images.ColumnPaths(partTable, "rlnImageName")
		if paths == nil {
			return fmt.Errorf("could not find patch paths in the data; were the particles ever extracted?")
		}
		target := filepath.Join(destDir, "patches")
		images.RewriteColumn(partTable, "rlnImageName", target, true)
		fmt.Printf("%s patches to %s...\n", transferVerb(mode), target)
		if err := images.Transfer(paths, images.Options{
			ProjectRoot: projectRoot,
			DestDir:     target,
			Mode:        mode,
			Overwrite:   overwrite,
			AddS:        true,
			Only:        onlyGlob,
		}); err != nil {
			return err
		}
	}

	fmt.Println("Writing star files...")
	if err := partDoc.WriteFile(destStar); err != nil {
		return err
	}
	if err := micDoc.WriteFile(destMicStar); err != nil {
		return err
	}
	return nil
}

func parseClasses(s string) (map[int]bool, error) {
	if s == "" {
		return nil, nil
	}
	classes := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid class %q", part)
		}
		classes[n] = true
	}
	return classes, nil
}

func resolutionSummary(particles, particlesPass, mics, micsPass, toCreate []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Particle files:\n%s\n", strings.Join(particles, ", "))
	fmt.Fprintf(&b, "Particle passthrough files:\n%s\n", strings.Join(particlesPass, ", "))
	fmt.Fprintf(&b, "Micrograph files:\n%s\n", strings.Join(mics, ", "))
	fmt.Fprintf(&b, "Micrograph passthrough files:\n%s\n", strings.Join(micsPass, ", "))
	fmt.Fprintf(&b, "Will create: %s", strings.Join(toCreate, ", "))
	return b.String()
}

func writeLog(destDir, summary string) error {
	content := fmt.Sprintf(
		"# this directory was converted from cryosparc with cs2star. Command:\ncs2star %s\n%s\n",
		strings.Join(os.Args[1:], " "), summary)
	if err := os.WriteFile(filepath.Join(destDir, "cs2star.log"), []byte(content), 0644); err != nil {
		return fmt.Errorf("writing log: %w", err)
	}
	return nil
}

func tableByName(doc *star.Document, name string) *star.Table {
	for _, t := range doc.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func transferVerb(mode images.Mode) string {
	if mode == images.Copy {
		return "Copying"
	}
	return "Linking"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func mustAbs(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
