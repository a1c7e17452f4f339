package cs

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// The npy header is a Python dict literal, e.g.
//
//	{'descr': [('uid', '<u8'), ('shape', '<u4', (2,))],
//	 'fortran_order': False, 'shape': (123,), }
//
// parseHeader evaluates the small subset of Python literals that can
// appear there: dicts, lists, tuples, strings, booleans and integers.

type headerMeta struct {
	fields       []Field
	fortranOrder bool
	shape        []int
}

func parseHeader(s string) (*headerMeta, error) {
	p := &pyParser{s: s}
	v, err := p.value()
	if err != nil {
		return nil, fmt.Errorf("parsing npy header: %w", err)
	}

	dict, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("npy header is not a dict")
	}

	meta := &headerMeta{}

	if fo, ok := dict["fortran_order"].(bool); ok {
		meta.fortranOrder = fo
	}

	shape, ok := dict["shape"].([]any)
	if !ok {
		return nil, fmt.Errorf("npy header has no shape")
	}
	for _, d := range shape {
		n, ok := d.(int)
		if !ok {
			return nil, fmt.Errorf("non-integer dimension in shape")
		}
		if n < 0 {
			return nil, fmt.Errorf("negative dimension %d in shape", n)
		}
		meta.shape = append(meta.shape, n)
	}

	descr, ok := dict["descr"].([]any)
	if !ok {
		return nil, fmt.Errorf("npy descr is not a field list; plain arrays are not valid metadata files")
	}
	for _, entry := range descr {
		field, err := parseField(entry)
		if err != nil {
			return nil, err
		}
		meta.fields = append(meta.fields, field)
	}

	return meta, nil
}

func parseField(entry any) (Field, error) {
	tuple, ok := entry.([]any)
	if !ok || len(tuple) < 2 || len(tuple) > 3 {
		return Field{}, fmt.Errorf("malformed descr entry %v", entry)
	}

	name, ok := tuple[0].(string)
	if !ok {
		return Field{}, fmt.Errorf("descr entry has no field name")
	}
	dtype, ok := tuple[1].(string)
	if !ok {
		return Field{}, fmt.Errorf("field %q has no dtype string", name)
	}

	field, err := parseDtype(dtype)
	if err != nil {
		return Field{}, fmt.Errorf("field %q: %w", name, err)
	}
	field.Name = name

	if len(tuple) == 3 {
		dims, ok := tuple[2].([]any)
		if !ok {
			return Field{}, fmt.Errorf("field %q has a malformed sub-array shape", name)
		}
		for _, d := range dims {
			n, ok := d.(int)
			if !ok {
				return Field{}, fmt.Errorf("field %q has a non-integer sub-array dimension", name)
			}
			if n < 0 {
				return Field{}, fmt.Errorf("field %q has a negative sub-array dimension %d", name, n)
			}
			field.shape = append(field.shape, n)
		}
	}

	return field, nil
}

func parseDtype(dtype string) (Field, error) {
	if dtype == "" {
		return Field{}, fmt.Errorf("empty dtype")
	}

	rest := dtype
	switch rest[0] {
	case '<', '|', '=':
		rest = rest[1:]
	case '>':
		return Field{}, fmt.Errorf("big-endian dtype %q is not supported", dtype)
	}
	if rest == "" {
		return Field{}, fmt.Errorf("malformed dtype %q", dtype)
	}

	kind := rest[0]
	size, err := strconv.Atoi(rest[1:])
	if err != nil || size <= 0 {
		return Field{}, fmt.Errorf("malformed dtype %q", dtype)
	}

	switch kind {
	case 'f', 'i', 'u', 'S':
	case 'b':
		if size != 1 {
			return Field{}, fmt.Errorf("unsupported dtype %q", dtype)
		}
	default:
		return Field{}, fmt.Errorf("unsupported dtype %q", dtype)
	}

	return Field{kind: kind, size: size}, nil
}

// pyParser is a recursive-descent parser over the literal subset.
type pyParser struct {
	s   string
	pos int
}

func (p *pyParser) skipSpace() {
	for p.pos < len(p.s) && unicode.IsSpace(rune(p.s[p.pos])) {
		p.pos++
	}
}

func (p *pyParser) peek() (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return 0, false
	}
	return p.s[p.pos], true
}

func (p *pyParser) value() (any, error) {
	c, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of header")
	}
	switch {
	case c == '{':
		return p.dict()
	case c == '[':
		return p.sequence('[', ']')
	case c == '(':
		return p.sequence('(', ')')
	case c == '\'' || c == '"':
		return p.str()
	case c == '-' || c >= '0' && c <= '9':
		return p.number()
	default:
		return p.ident()
	}
}

func (p *pyParser) dict() (map[string]any, error) {
	p.pos++ // consume '{'
	out := make(map[string]any)
	for {
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated dict")
		}
		if c == '}' {
			p.pos++
			return out, nil
		}

		key, err := p.str()
		if err != nil {
			return nil, err
		}
		if c, ok := p.peek(); !ok || c != ':' {
			return nil, fmt.Errorf("expected ':' after dict key %q", key)
		}
		p.pos++

		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out[key] = v

		if c, ok := p.peek(); ok && c == ',' {
			p.pos++
		}
	}
}

func (p *pyParser) sequence(open, close byte) ([]any, error) {
	p.pos++ // consume opener
	out := []any{}
	for {
		c, ok := p.peek()
		if !ok {
			return nil, fmt.Errorf("unterminated sequence")
		}
		if c == close {
			p.pos++
			return out, nil
		}

		v, err := p.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)

		if c, ok := p.peek(); ok && c == ',' {
			p.pos++
		}
	}
}

func (p *pyParser) str() (string, error) {
	c, ok := p.peek()
	if !ok || (c != '\'' && c != '"') {
		return "", fmt.Errorf("expected string at offset %d", p.pos)
	}
	quote := c
	p.pos++
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] != quote {
		p.pos++
	}
	if p.pos >= len(p.s) {
		return "", fmt.Errorf("unterminated string")
	}
	out := p.s[start:p.pos]
	p.pos++
	return out, nil
}

func (p *pyParser) number() (int, error) {
	p.skipSpace()
	start := p.pos
	if p.pos < len(p.s) && p.s[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	return strconv.Atoi(p.s[start:p.pos])
}

func (p *pyParser) ident() (any, error) {
	p.skipSpace()
	switch {
	case strings.HasPrefix(p.s[p.pos:], "True"):
		p.pos += len("True")
		return true, nil
	case strings.HasPrefix(p.s[p.pos:], "False"):
		p.pos += len("False")
		return false, nil
	case strings.HasPrefix(p.s[p.pos:], "None"):
		p.pos += len("None")
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected token at offset %d", p.pos)
}
