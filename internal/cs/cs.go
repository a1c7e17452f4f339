// Package cs reads cryoSPARC .cs metadata files. A .cs file is a NumPy
// .npy file (format version 1.0 or 2.0) holding a one-dimensional
// structured record array; every record describes one particle or one
// micrograph.
package cs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

var npyMagic = []byte("\x93NUMPY")

// Field describes one column of a dataset.
type Field struct {
	Name string

	kind   byte  // 'f', 'i', 'u', 'b' or 'S'
	size   int   // bytes per scalar element
	shape  []int // sub-array shape, empty for scalars
	offset int   // byte offset inside a record
}

// count returns the number of scalar elements per record.
func (f Field) count() int {
	n := 1
	for _, d := range f.shape {
		n *= d
	}
	return n
}

func (f Field) width() int { return f.size * f.count() }

// Dataset is a decoded .cs file: a fixed set of typed columns over n
// records. Record bytes are kept raw and decoded on access.
type Dataset struct {
	fields []Field
	byName map[string]int
	n      int
	stride int
	data   []byte
}

// Open reads and decodes the .cs file at path.
func Open(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata file: %w", err)
	}
	defer f.Close()

	ds, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ds, nil
}

// Read decodes a .cs stream.
func Read(r io.Reader) (*Dataset, error) {
	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	meta, err := parseHeader(header)
	if err != nil {
		return nil, err
	}
	if meta.fortranOrder {
		return nil, fmt.Errorf("fortran-ordered arrays are not supported")
	}
	if len(meta.shape) != 1 {
		return nil, fmt.Errorf("expected a 1-dimensional record array, got shape %v", meta.shape)
	}

	stride := 0
	for i := range meta.fields {
		meta.fields[i].offset = stride
		stride += meta.fields[i].width()
	}

	n := meta.shape[0]
	if stride > 0 && n > math.MaxInt/stride {
		return nil, fmt.Errorf("record array of %d records x %d bytes does not fit in memory", n, stride)
	}
	data := make([]byte, n*stride)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading %d records: %w", n, err)
	}

	byName := make(map[string]int, len(meta.fields))
	for i, f := range meta.fields {
		byName[f.Name] = i
	}

	return &Dataset{
		fields: meta.fields,
		byName: byName,
		n:      n,
		stride: stride,
		data:   data,
	}, nil
}

// readHeader consumes the magic, version and header string.
func readHeader(r io.Reader) (string, error) {
	pre := make([]byte, 8)
	if _, err := io.ReadFull(r, pre); err != nil {
		return "", fmt.Errorf("reading npy preamble: %w", err)
	}
	if !bytes.Equal(pre[:6], npyMagic) {
		return "", fmt.Errorf("not an npy file")
	}

	major := pre[6]
	var headerLen int
	switch major {
	case 1:
		var l uint16
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return "", fmt.Errorf("reading header length: %w", err)
		}
		headerLen = int(l)
	case 2, 3:
		var l uint32
		if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
			return "", fmt.Errorf("reading header length: %w", err)
		}
		headerLen = int(l)
	default:
		return "", fmt.Errorf("unsupported npy version %d.%d", major, pre[7])
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", fmt.Errorf("reading header: %w", err)
	}
	return string(header), nil
}

// Len returns the number of records.
func (ds *Dataset) Len() int { return ds.n }

// Fields returns the column names in file order.
func (ds *Dataset) Fields() []string {
	names := make([]string, len(ds.fields))
	for i, f := range ds.fields {
		names[i] = f.Name
	}
	return names
}

// Has reports whether a column exists.
func (ds *Dataset) Has(name string) bool {
	_, ok := ds.byName[name]
	return ok
}

func (ds *Dataset) field(name string) (Field, error) {
	i, ok := ds.byName[name]
	if !ok {
		return Field{}, fmt.Errorf("no field %q", name)
	}
	return ds.fields[i], nil
}

func (ds *Dataset) scalar(f Field, row, elem int) []byte {
	start := row*ds.stride + f.offset + elem*f.size
	return ds.data[start : start+f.size]
}

func decodeFloat(kind byte, size int, b []byte) (float64, error) {
	switch kind {
	case 'f':
		switch size {
		case 4:
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
		case 8:
			return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
		}
	case 'i':
		v, err := decodeInt(size, b)
		return float64(v), err
	case 'u', 'b':
		v, err := decodeUint(size, b)
		return float64(v), err
	}
	return 0, fmt.Errorf("cannot decode %c%d as float", kind, size)
}

func decodeInt(size int, b []byte) (int64, error) {
	switch size {
	case 1:
		return int64(int8(b[0])), nil
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(b))), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	case 8:
		return int64(binary.LittleEndian.Uint64(b)), nil
	}
	return 0, fmt.Errorf("unsupported integer width %d", size)
}

func decodeUint(size int, b []byte) (uint64, error) {
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	}
	return 0, fmt.Errorf("unsupported integer width %d", size)
}

// FloatColumn decodes a scalar numeric column as float64.
func (ds *Dataset) FloatColumn(name string) ([]float64, error) {
	f, err := ds.field(name)
	if err != nil {
		return nil, err
	}
	if len(f.shape) != 0 {
		return nil, fmt.Errorf("field %q is not scalar", name)
	}
	out := make([]float64, ds.n)
	for i := range out {
		v, err := decodeFloat(f.kind, f.size, ds.scalar(f, i, 0))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[i] = v
	}
	return out, nil
}

// IntColumn decodes a scalar integer column as int64.
func (ds *Dataset) IntColumn(name string) ([]int64, error) {
	f, err := ds.field(name)
	if err != nil {
		return nil, err
	}
	if len(f.shape) != 0 || (f.kind != 'i' && f.kind != 'u' && f.kind != 'b') {
		return nil, fmt.Errorf("field %q is not an integer column", name)
	}
	out := make([]int64, ds.n)
	for i := range out {
		if f.kind == 'i' {
			v, err := decodeInt(f.size, ds.scalar(f, i, 0))
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			out[i] = v
		} else {
			v, err := decodeUint(f.size, ds.scalar(f, i, 0))
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			out[i] = int64(v)
		}
	}
	return out, nil
}

// Uint64Column decodes a scalar unsigned column; cryoSPARC uids are
// unsigned 64-bit values.
func (ds *Dataset) Uint64Column(name string) ([]uint64, error) {
	f, err := ds.field(name)
	if err != nil {
		return nil, err
	}
	if len(f.shape) != 0 || (f.kind != 'u' && f.kind != 'b') {
		return nil, fmt.Errorf("field %q is not an unsigned column", name)
	}
	out := make([]uint64, ds.n)
	for i := range out {
		v, err := decodeUint(f.size, ds.scalar(f, i, 0))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[i] = v
	}
	return out, nil
}

// StringColumn decodes a fixed-width bytes column, trimming NUL padding.
func (ds *Dataset) StringColumn(name string) ([]string, error) {
	f, err := ds.field(name)
	if err != nil {
		return nil, err
	}
	if f.kind != 'S' {
		return nil, fmt.Errorf("field %q is not a string column", name)
	}
	out := make([]string, ds.n)
	for i := range out {
		raw := ds.scalar(f, i, 0)
		out[i] = string(bytes.TrimRight(raw, "\x00"))
	}
	return out, nil
}

// VectorColumn decodes a one-dimensional sub-array column, such as a
// micrograph shape or a 3-vector pose.
func (ds *Dataset) VectorColumn(name string) ([][]float64, error) {
	f, err := ds.field(name)
	if err != nil {
		return nil, err
	}
	if len(f.shape) != 1 {
		return nil, fmt.Errorf("field %q is not a vector column", name)
	}
	out := make([][]float64, ds.n)
	for i := range out {
		vec := make([]float64, f.shape[0])
		for j := range vec {
			v, err := decodeFloat(f.kind, f.size, ds.scalar(f, i, j))
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
			vec[j] = v
		}
		out[i] = vec
	}
	return out, nil
}
