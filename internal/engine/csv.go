package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// WriteTrajectoryCSV writes the raw trajectory table: index columns followed
// by the schema keys in declaration order.
func WriteTrajectoryCSV(path string, res *Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return EncodeTrajectoryCSV(f, res)
}

func EncodeTrajectoryCSV(out io.Writer, res *Result) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	header := []string{"subset", "run", "timestep", "substep"}
	var keys []string
	if res.Schema != nil {
		keys = res.Schema.Keys()
	}
	header = append(header, keys...)
	if err := w.Write(header); err != nil {
		return err
	}

	for _, s := range res.Rows {
		row := []string{
			strconv.Itoa(s.Subset),
			strconv.Itoa(s.Run),
			strconv.Itoa(s.Timestep),
			strconv.Itoa(s.Substep),
		}
		for _, k := range keys {
			row = append(row, fmtValue(s.Get(k)))
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func fmtValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return fmtFloat(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case time.Time:
		return fmtTime(x)
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = fmtFloat(f)
		}
		return strings.Join(parts, "|")
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func fmtFloat(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
