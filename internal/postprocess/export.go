package postprocess

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// WriteCSV writes a header row followed by one line per table row.
func (t *Table) WriteCSV(out io.Writer) error {
	w := csv.NewWriter(out)
	if err := w.Write(t.Names()); err != nil {
		return err
	}
	record := make([]string, len(t.Columns))
	for i := 0; i < t.NumRows(); i++ {
		for j, c := range t.Columns {
			record[j] = c.Format(i)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ArrowSchema maps the table columns to Arrow fields.
func (t *Table) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(t.Columns))
	for i, c := range t.Columns {
		var dt arrow.DataType
		switch c.Kind {
		case Float:
			dt = arrow.PrimitiveTypes.Float64
		case Int:
			dt = arrow.PrimitiveTypes.Int64
		default:
			dt = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{Name: c.Name, Type: dt}
	}
	return arrow.NewSchema(fields, nil)
}

// WriteArrow writes the table as a single-record Arrow IPC stream.
func (t *Table) WriteArrow(out io.Writer) error {
	mem := memory.NewGoAllocator()
	schema := t.ArrowSchema()

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	for i, c := range t.Columns {
		switch c.Kind {
		case Float:
			b.Field(i).(*array.Float64Builder).AppendValues(c.Floats, nil)
		case Int:
			b.Field(i).(*array.Int64Builder).AppendValues(c.Ints, nil)
		default:
			b.Field(i).(*array.StringBuilder).AppendValues(c.Strings, nil)
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	w := ipc.NewWriter(out, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return fmt.Errorf("write arrow record: %w", err)
	}
	return w.Close()
}
