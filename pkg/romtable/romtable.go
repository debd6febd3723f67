// Package romtable defines calibration table layouts and reads/writes
// their cells against a ROM image.
//
// The ROM buffer is owned exclusively by the caller. Nothing in this
// package retains a reference across calls and nothing locks: a caller
// that allows concurrent access to the same region must serialize it.
package romtable

import (
	"fmt"

	"github.com/hirotools/mutlog/pkg/bincodec"
)

type AxisKind uint8

const (
	// StaticAxis carries a fixed ordered sequence of physical values
	// and reads nothing from the ROM.
	StaticAxis AxisKind = iota
	// DynamicAxis reads its values from the ROM at load time.
	DynamicAxis
)

// Axis describes one table axis. Axis data is read-only from this
// layer's perspective, it is never written back.
type Axis struct {
	Kind   AxisKind
	Name   string
	Unit   string
	Values []float64 // StaticAxis only

	// DynamicAxis fields.
	Address int
	Length  int
	Type    bincodec.ScalarType
	Endian  bincodec.Endianness
	Scale   float64 // default 1
	Offset  float64
}

// ZData describes where and how a table's body cells live in the ROM.
type ZData struct {
	Address int
	Type    bincodec.ScalarType
	Endian  bincodec.Endianness
	Scale   float64 // default 1
	Offset  float64

	// RowStride and ColStride are byte distances between consecutive
	// rows/columns. Zero means densely packed: ColStride = scalar
	// width, RowStride = Cols*ColStride (scalar width for 1D tables).
	RowStride int
	ColStride int

	// Indexer, when set, overrides stride addressing entirely: it maps
	// (row,col) to the absolute ROM byte offset of that cell.
	Indexer func(row, col int) int
}

type TableKind uint8

const (
	Table1D TableKind = iota
	Table2D
	Table3D
)

func (k TableKind) String() string {
	switch k {
	case Table1D:
		return "1D"
	case Table2D:
		return "2D"
	case Table3D:
		return "3D"
	}
	return "unknown"
}

// Table is a calibration table definition. Table1D holds Rows cells in
// a single row; Table2D holds Rows x Cols; Table3D holds Depth planes
// of Rows x Cols laid out consecutively.
type Table struct {
	Name     string
	Category string
	Kind     TableKind

	Rows  int
	Cols  int
	Depth int

	XAxis *Axis
	YAxis *Axis
	Z     ZData
}

// CellCount returns the number of body cells the definition declares.
func (t *Table) CellCount() int {
	switch t.Kind {
	case Table1D:
		return t.Rows
	case Table2D:
		return t.Rows * t.Cols
	case Table3D:
		return t.Rows * t.Cols * t.Depth
	}
	return 0
}

// DimensionMismatchError reports a write whose value shape disagrees
// with the table definition. Nothing is mutated when it is returned.
type DimensionMismatchError struct {
	Table    string
	WantRows int
	WantCols int
	GotRows  int
	GotCols  int
	Row      int // row index of the offending row for ragged input, -1 otherwise
}

func (e *DimensionMismatchError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("table %q: row %d has %d values, want %d", e.Table, e.Row, e.GotCols, e.WantCols)
	}
	return fmt.Sprintf("table %q: got %dx%d values, want %dx%d", e.Table, e.GotRows, e.GotCols, e.WantRows, e.WantCols)
}

// ReadAxis resolves an axis to physical values. Static axes return
// their stored values verbatim, dynamic axes read Length scalars from
// the ROM and apply scale/offset.
func ReadAxis(rom []byte, ax *Axis) ([]float64, error) {
	if ax == nil {
		return nil, nil
	}
	if ax.Kind == StaticAxis {
		return ax.Values, nil
	}
	scale := ax.Scale
	if scale == 0 {
		scale = 1
	}
	width := ax.Type.Width()
	out := make([]float64, ax.Length)
	for i := 0; i < ax.Length; i++ {
		raw, err := bincodec.DecodeScalar(rom, ax.Address+i*width, ax.Type, ax.Endian)
		if err != nil {
			return nil, fmt.Errorf("axis %q sample %d: %w", ax.Name, i, err)
		}
		out[i] = raw*scale + ax.Offset
	}
	return out, nil
}

// shape returns the extraction shape: number of rows in the output
// matrix and columns per row. 3D tables stack their planes row-wise.
func (t *Table) shape() (rows, cols int) {
	switch t.Kind {
	case Table1D:
		return 1, t.Rows
	case Table2D:
		return t.Rows, t.Cols
	case Table3D:
		return t.Rows * t.Depth, t.Cols
	}
	return 0, 0
}

// cellOffset computes the ROM byte offset of one cell using the
// definition's strides, or its custom indexer when present.
func (t *Table) cellOffset(row, col int) int {
	if t.Z.Indexer != nil {
		return t.Z.Indexer(row, col)
	}
	width := t.Z.Type.Width()
	colStride := t.Z.ColStride
	if colStride == 0 {
		colStride = width
	}
	rowStride := t.Z.RowStride
	if rowStride == 0 {
		if t.Kind == Table1D {
			rowStride = width
		} else {
			rowStride = t.Cols * colStride
		}
	}
	if t.Kind == Table1D {
		// one logical row: samples advance by the row stride
		return t.Z.Address + col*rowStride
	}
	return t.Z.Address + row*rowStride + col*colStride
}

// ExtractTableData reads every body cell and returns physical values
// row-major. Table1D yields a single row of Rows values.
func ExtractTableData(rom []byte, t *Table) ([][]float64, error) {
	rows, cols := t.shape()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("table %q: empty definition", t.Name)
	}
	scale := t.Z.Scale
	if scale == 0 {
		scale = 1
	}
	out := make([][]float64, rows)
	for r := 0; r < rows; r++ {
		out[r] = make([]float64, cols)
		for c := 0; c < cols; c++ {
			raw, err := bincodec.DecodeScalar(rom, t.cellOffset(r, c), t.Z.Type, t.Z.Endian)
			if err != nil {
				return nil, fmt.Errorf("table %q cell (%d,%d): %w", t.Name, r, c, err)
			}
			out[r][c] = raw*scale + t.Z.Offset
		}
	}
	return out, nil
}

// WriteTableData encodes physical values back into the ROM. The value
// shape must match the definition exactly, including the column count
// of every row; a mismatch is rejected before any byte is mutated.
func WriteTableData(rom []byte, t *Table, values [][]float64) error {
	rows, cols := t.shape()
	if len(values) != rows {
		return &DimensionMismatchError{Table: t.Name, WantRows: rows, WantCols: cols, GotRows: len(values), Row: -1}
	}
	for r, rowVals := range values {
		if len(rowVals) != cols {
			return &DimensionMismatchError{Table: t.Name, WantRows: rows, WantCols: cols, GotRows: len(values), GotCols: len(rowVals), Row: r}
		}
	}
	// bounds pass before mutation so a partial write can never corrupt
	// the image
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			off := t.cellOffset(r, c)
			if off < 0 || off+t.Z.Type.Width() > len(rom) {
				return &bincodec.BoundsError{Offset: off, Width: t.Z.Type.Width(), Size: len(rom)}
			}
		}
	}
	scale := t.Z.Scale
	if scale == 0 {
		scale = 1
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if err := bincodec.EncodeScalar(rom, t.cellOffset(r, c), t.Z.Type, t.Z.Endian, values[r][c], scale, t.Z.Offset); err != nil {
				return fmt.Errorf("table %q cell (%d,%d): %w", t.Name, r, c, err)
			}
		}
	}
	return nil
}
