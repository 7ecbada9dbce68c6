// Package postprocess turns raw trajectories into an analysis-ready columnar
// table with unit conversions, cumulative sums and flattened vectors.
package postprocess

import (
	"fmt"
	"strconv"
)

type Kind int

const (
	Float Kind = iota
	Int
	String
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	case String:
		return "string"
	}
	return "unknown"
}

// Column holds one named series. Only the slice matching Kind is populated.
type Column struct {
	Name    string
	Kind    Kind
	Floats  []float64
	Ints    []int64
	Strings []string
}

func (c *Column) Len() int {
	switch c.Kind {
	case Float:
		return len(c.Floats)
	case Int:
		return len(c.Ints)
	default:
		return len(c.Strings)
	}
}

// Value returns row i as float64, int64 or string.
func (c *Column) Value(i int) any {
	switch c.Kind {
	case Float:
		return c.Floats[i]
	case Int:
		return c.Ints[i]
	default:
		return c.Strings[i]
	}
}

// Format renders row i for text output.
func (c *Column) Format(i int) string {
	switch c.Kind {
	case Float:
		return strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
	case Int:
		return strconv.FormatInt(c.Ints[i], 10)
	default:
		return c.Strings[i]
	}
}

// Table is a set of equal-length columns in insertion order.
type Table struct {
	Columns []*Column
	index   map[string]int
}

func NewTable() *Table {
	return &Table{index: map[string]int{}}
}

func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

func (t *Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.Columns[i], true
}

// Add appends a column. Names must be unique and lengths must agree.
func (t *Table) Add(c *Column) error {
	if _, dup := t.index[c.Name]; dup {
		return fmt.Errorf("duplicate column %q", c.Name)
	}
	if len(t.Columns) > 0 && c.Len() != t.NumRows() {
		return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.NumRows())
	}
	t.index[c.Name] = len(t.Columns)
	t.Columns = append(t.Columns, c)
	return nil
}

func (t *Table) AddFloats(name string, v []float64) error {
	return t.Add(&Column{Name: name, Kind: Float, Floats: v})
}

func (t *Table) AddInts(name string, v []int64) error {
	return t.Add(&Column{Name: name, Kind: Int, Ints: v})
}

func (t *Table) AddStrings(name string, v []string) error {
	return t.Add(&Column{Name: name, Kind: String, Strings: v})
}

// Floats returns a float column or nil.
func (t *Table) Floats(name string) []float64 {
	c, ok := t.Column(name)
	if !ok || c.Kind != Float {
		return nil
	}
	return c.Floats
}

func (t *Table) Ints(name string) []int64 {
	c, ok := t.Column(name)
	if !ok || c.Kind != Int {
		return nil
	}
	return c.Ints
}

func (t *Table) Strings(name string) []string {
	c, ok := t.Column(name)
	if !ok || c.Kind != String {
		return nil
	}
	return c.Strings
}

// Rows materializes row-oriented records, for JSON responses.
func (t *Table) Rows() []map[string]any {
	n := t.NumRows()
	out := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		m := make(map[string]any, len(t.Columns))
		for _, c := range t.Columns {
			m[c.Name] = c.Value(i)
		}
		out[i] = m
	}
	return out
}

// Select returns a table with only the rows for which keep is true.
func (t *Table) Select(keep func(row int) bool) *Table {
	var rows []int
	for i := 0; i < t.NumRows(); i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	out := NewTable()
	for _, c := range t.Columns {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		for _, i := range rows {
			switch c.Kind {
			case Float:
				nc.Floats = append(nc.Floats, c.Floats[i])
			case Int:
				nc.Ints = append(nc.Ints, c.Ints[i])
			default:
				nc.Strings = append(nc.Strings, c.Strings[i])
			}
		}
		out.index[nc.Name] = len(out.Columns)
		out.Columns = append(out.Columns, nc)
	}
	return out
}
