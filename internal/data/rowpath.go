package data

import (
	"strconv"
	"strings"
)

// Path returns the textual reference of r: "/<index>" for root rows,
// followed by "/<child model>/<index>" for each level below.
func (r *DataRow) Path() string {
	var b strings.Builder
	r.writePath(&b)
	return b.String()
}

func (r *DataRow) writePath(b *strings.Builder) {
	if r.parent != nil {
		r.parent.writePath(b)
		b.WriteByte('/')
		b.WriteString(r.model.name)
	}
	b.WriteByte('/')
	b.WriteString(strconv.Itoa(r.index))
}

// ParseRowPath resolves a reference produced by DataRow.Path against ds.
func ParseRowPath(ds *DataSet, path string) (*DataRow, error) {
	p := &pathParser{input: path}
	if !p.consume('/') {
		return nil, p.fail("expected '/'")
	}
	idx, err := p.index()
	if err != nil {
		return nil, err
	}
	if idx >= ds.Len() {
		return nil, &FormatError{Input: path, Pos: p.mark, Message: "row index " + strconv.Itoa(idx) + " out of range"}
	}
	row := ds.rows[idx]
	for !p.done() {
		if !p.consume('/') {
			return nil, p.fail("expected '/'")
		}
		name := p.name()
		if name == "" {
			return nil, p.fail("expected child model name")
		}
		child, ok := row.model.Child(name)
		if !ok {
			return nil, &FormatError{Input: path, Pos: p.mark, Message: "unknown child model " + strconv.Quote(name)}
		}
		if !p.consume('/') {
			return nil, p.fail("expected '/' after child model name")
		}
		idx, err := p.index()
		if err != nil {
			return nil, err
		}
		cs := row.children[child.childOrdinal]
		if idx >= cs.Len() {
			return nil, &FormatError{Input: path, Pos: p.mark, Message: "row index " + strconv.Itoa(idx) + " out of range"}
		}
		row = cs.rows[idx]
	}
	return row, nil
}

// ParseColumnPath resolves a dotted column reference relative to m. Leading
// segments name child models; the last segment names a column.
func ParseColumnPath(m *Model, path string) (AnyColumn, error) {
	p := &pathParser{input: path}
	cur := m
	for {
		name := p.name()
		if name == "" {
			return nil, p.fail("expected name")
		}
		if p.done() {
			c, ok := cur.Column(name)
			if !ok {
				return nil, &FormatError{Input: path, Pos: p.mark, Message: "unknown column " + strconv.Quote(name) + " in " + cur.name}
			}
			return c, nil
		}
		if !p.consume('.') {
			return nil, p.fail("expected '.'")
		}
		child, ok := cur.Child(name)
		if !ok {
			return nil, &FormatError{Input: path, Pos: p.mark, Message: "unknown child model " + strconv.Quote(name) + " in " + cur.name}
		}
		cur = child
	}
}

type pathParser struct {
	input string
	pos   int
	mark  int
}

func (p *pathParser) done() bool { return p.pos >= len(p.input) }

func (p *pathParser) consume(b byte) bool {
	if p.pos < len(p.input) && p.input[p.pos] == b {
		p.pos++
		return true
	}
	return false
}

func (p *pathParser) fail(msg string) *FormatError {
	return &FormatError{Input: p.input, Pos: p.pos, Message: msg}
}

// name scans an identifier-like segment up to the next separator.
func (p *pathParser) name() string {
	p.mark = p.pos
	for p.pos < len(p.input) && p.input[p.pos] != '/' && p.input[p.pos] != '.' {
		p.pos++
	}
	return p.input[p.mark:p.pos]
}

func (p *pathParser) index() (int, error) {
	p.mark = p.pos
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	if p.mark == p.pos {
		return 0, p.fail("expected row index")
	}
	n, err := strconv.Atoi(p.input[p.mark:p.pos])
	if err != nil {
		return 0, &FormatError{Input: p.input, Pos: p.mark, Message: "row index overflows"}
	}
	return n, nil
}
