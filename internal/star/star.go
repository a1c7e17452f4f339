// Package star writes RELION 3.1-style STAR files.
package star

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Table is one loop_ block: ordered labels and one string row per record.
type Table struct {
	Name   string // block name without the data_ prefix
	Labels []string
	Rows   [][]string
}

// NewTable returns an empty table for the given block name.
func NewTable(name string, labels ...string) *Table {
	return &Table{Name: name, Labels: labels}
}

// AddRow appends one record. The number of values must match the labels.
func (t *Table) AddRow(values ...string) error {
	if len(values) != len(t.Labels) {
		return fmt.Errorf("table %s: row has %d values for %d labels", t.Name, len(values), len(t.Labels))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// Column returns the index of a label, or -1.
func (t *Table) Column(label string) int {
	for i, l := range t.Labels {
		if l == label {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the table carries a label.
func (t *Table) HasColumn(label string) bool {
	return t.Column(label) >= 0
}

// AddColumn appends a label with a constant value on every existing row.
func (t *Table) AddColumn(label, value string) {
	t.Labels = append(t.Labels, label)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], value)
	}
}

// Document is an ordered collection of tables written to one file.
type Document struct {
	Tables []*Table
}

// Write emits the document.
func (d *Document) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, "# written by cs2star")
	for _, t := range d.Tables {
		fmt.Fprintf(bw, "\ndata_%s\n\nloop_\n", t.Name)
		for i, label := range t.Labels {
			fmt.Fprintf(bw, "_%s #%d\n", label, i+1)
		}
		for _, row := range t.Rows {
			fmt.Fprintln(bw, strings.Join(row, "\t"))
		}
	}

	return bw.Flush()
}

// WriteFile writes the document to path, replacing any existing file.
func (d *Document) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating star file: %w", err)
	}
	if err := d.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing star file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing star file: %w", err)
	}
	return nil
}
