package table

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const (
	exportSheet     = "Sheet1"
	exportBatchSize = 500
)

// xlsxWriter streams records into one sheet under a header row of column names.
type xlsxWriter struct {
	f    *excelize.File
	sw   *excelize.StreamWriter
	s    Schema
	next int
}

func newXLSXWriter(s Schema) (*xlsxWriter, error) {
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "excelize.NewStreamWriter")
	}

	header := make([]interface{}, len(s.Columns))
	for i, c := range s.Columns {
		header[i] = c.Name
	}
	if err := sw.SetRow("A1", header); err != nil {
		_ = f.Close()
		return nil, errors.Wrap(err, "writing header")
	}
	return &xlsxWriter{f: f, sw: sw, s: s, next: 2}, nil
}

func (xw *xlsxWriter) write(rows []Row) error {
	for _, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, xw.next)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(xw.s.Columns))
		for j, c := range xw.s.Columns {
			values[j] = cellValue(row[c.Name])
		}
		if err := xw.sw.SetRow(cell, values); err != nil {
			return errors.Wrapf(err, "writing row %d", xw.next-1)
		}
		xw.next++
	}
	return nil
}

func (xw *xlsxWriter) flush(w io.Writer) error {
	if err := xw.sw.Flush(); err != nil {
		return errors.Wrap(err, "flushing sheet")
	}
	return xw.f.Write(w)
}

func (xw *xlsxWriter) close() { _ = xw.f.Close() }

func cellValue(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case string, bool, int, int32, int64, float32, float64:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
