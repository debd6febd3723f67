package datalogger

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/hirotools/mutlog/pkg/rax"
)

const timeFormat = "2006-01-02 15:04:05.000"

// CSVWriter writes one row per poll cycle: a timestamp column followed
// by one column per requested PID, in request order. The header is
// written on the first row.
type CSVWriter struct {
	cw            *csv.Writer
	order         []int
	headerWritten bool
}

func NewCSVWriter(w io.Writer, pids []int) *CSVWriter {
	return &CSVWriter{
		cw:    csv.NewWriter(w),
		order: append([]int(nil), pids...),
	}
}

func (c *CSVWriter) WriteRow(ts time.Time, values map[int]float64) error {
	if !c.headerWritten {
		if err := c.writeHeader(); err != nil {
			return err
		}
	}
	record := make([]string, 0, len(c.order)+1)
	record = append(record, ts.Format(timeFormat))
	for _, pid := range c.order {
		val, ok := values[pid]
		if !ok {
			record = append(record, "")
			continue
		}
		precision := 2
		if val == math.Trunc(val) {
			precision = 0
		}
		record = append(record, strconv.FormatFloat(val, 'f', precision, 64))
	}
	return c.cw.Write(record)
}

func (c *CSVWriter) writeHeader() error {
	header := make([]string, 0, len(c.order)+1)
	header = append(header, "Time")
	for _, pid := range c.order {
		name := rax.ParamName(pid)
		if name == "" {
			name = "PID" + strconv.Itoa(pid)
		}
		header = append(header, name)
	}
	c.headerWritten = true
	return c.cw.Write(header)
}

func (c *CSVWriter) Close() error {
	c.cw.Flush()
	return c.cw.Error()
}
