package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Column positions are a contract with the sheet author; header names are
// never consulted.
const (
	ColDate = iota + 1
	ColArtist
	ColEventName
	ColLocation
	ColSeat
	ColImage

	NumColumns = ColImage
)

// ErrNoWorksheet is returned for a workbook without any sheet.
var ErrNoWorksheet = errors.New("sheet: workbook has no worksheets")

// RawCell is what a worksheet cell holds before normalization.
type RawCell struct {
	// Text is the displayed text, or the cached result for a formula cell.
	Text string
	// Formula is the formula source when the cell is computed.
	Formula string
	// Hyperlink is the link target, if the cell carries one.
	Hyperlink string
	// IsDate is set for cells holding a native date/time value; Time is
	// then that value in UTC.
	IsDate bool
	Time   time.Time
}

// Value returns the cell's text: display text first, then the link
// target, then "".
func (c RawCell) Value() string {
	if c.Text != "" {
		return c.Text
	}
	return c.Hyperlink
}

// IsFormula reports whether the cell is computed.
func (c RawCell) IsFormula() bool {
	return c.Formula != ""
}

// RawRow is one data row of the worksheet.
type RawRow struct {
	// Number is the 1-based worksheet row.
	Number int
	Cells  [NumColumns]RawCell
}

// Cell returns the cell at 1-based column col.
func (r RawRow) Cell(col int) RawCell {
	if col < 1 || col > NumColumns {
		return RawCell{}
	}
	return r.Cells[col-1]
}

// ReadRows parses an XLSX payload and returns every data row of the first
// worksheet.
func ReadRows(r io.Reader) ([]RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("sheet: open workbook: %w", err)
	}
	defer f.Close()

	var out []RawRow
	for row, err := range Rows(f) {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// ReadBytes is ReadRows over an in-memory payload.
func ReadBytes(body []byte) ([]RawRow, error) {
	if len(body) == 0 {
		return nil, errors.New("sheet: empty workbook payload")
	}
	return ReadRows(bytes.NewReader(body))
}

// Rows yields the data rows (header excluded) of the first worksheet of f.
// Iteration stops after the first error.
func Rows(f *excelize.File) iter.Seq2[RawRow, error] {
	return func(yield func(RawRow, error) bool) {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			yield(RawRow{}, ErrNoWorksheet)
			return
		}
		name := sheets[0]

		last, err := lastRow(f, name)
		if err != nil {
			yield(RawRow{}, fmt.Errorf("sheet: read %q: %w", name, err))
			return
		}

		r := cellReader{f: f, sheet: name, date1904: uses1904(f)}
		for n := 2; n <= last; n++ {
			row, err := r.row(n)
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// lastRow returns the number of the last row of sheet that has a row
// element. The streaming reader yields gap rows too, so the count of
// iterations equals that row number.
func lastRow(f *excelize.File, sheet string) (int, error) {
	rows, err := f.Rows(sheet)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Error()
}

type cellReader struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func (r *cellReader) row(n int) (RawRow, error) {
	row := RawRow{Number: n}
	for col := 1; col <= NumColumns; col++ {
		ref, err := excelize.CoordinatesToCellName(col, n)
		if err != nil {
			return row, err
		}
		c, err := r.cell(ref)
		if err != nil {
			return row, fmt.Errorf("sheet: cell %s: %w", ref, err)
		}
		row.Cells[col-1] = c
	}
	return row, nil
}

func (r *cellReader) cell(ref string) (RawCell, error) {
	var c RawCell

	text, err := r.f.GetCellValue(r.sheet, ref)
	if err != nil {
		return c, err
	}
	c.Text = text

	if formula, err := r.f.GetCellFormula(r.sheet, ref); err == nil {
		c.Formula = formula
	}
	if ok, target, err := r.f.GetCellHyperLink(r.sheet, ref); err == nil && ok {
		c.Hyperlink = target
	}

	if t, ok := r.dateValue(ref); ok {
		c.IsDate = true
		c.Time = t
	}
	return c, nil
}

// dateValue returns the cell's native date/time value, if it holds one.
func (r *cellReader) dateValue(ref string) (time.Time, bool) {
	raw, err := r.f.GetCellValue(r.sheet, ref, excelize.Options{RawCellValue: true})
	if err != nil || raw == "" {
		return time.Time{}, false
	}

	if typ, err := r.f.GetCellType(r.sheet, ref); err == nil && typ == excelize.CellTypeDate {
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	}

	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, false
	}
	styleID, err := r.f.GetCellStyle(r.sheet, ref)
	if err != nil || !r.isDateStyle(styleID) {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, r.date1904)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC().Round(time.Second), true
}

func (r *cellReader) isDateStyle(id int) bool {
	if id == 0 {
		return false
	}
	if r.styles == nil {
		r.styles = make(map[int]bool)
	}
	if v, ok := r.styles[id]; ok {
		return v
	}
	v := false
	if style, err := r.f.GetStyle(id); err == nil && style != nil {
		v = isDateNumFmt(style.NumFmt)
		if style.CustomNumFmt != nil {
			v = IsDateFormatCode(*style.CustomNumFmt)
		}
	}
	r.styles[id] = v
	return v
}

func uses1904(f *excelize.File) bool {
	props, err := f.GetWorkbookProps()
	if err != nil || props.Date1904 == nil {
		return false
	}
	return *props.Date1904
}

// isDateNumFmt reports whether a built-in number format ID is a date/time.
func isDateNumFmt(id int) bool {
	switch {
	case id >= 14 && id <= 22:
		return true
	case id >= 27 && id <= 36:
		return true
	case id >= 45 && id <= 47:
		return true
	case id >= 50 && id <= 58:
		return true
	}
	return false
}

// IsDateFormatCode reports whether a custom number format code renders a
// date or time ("yyyy.mm.dd", "[h]:mm", ...).
func IsDateFormatCode(code string) bool {
	var b strings.Builder
	inQuote := false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch == '"':
			inQuote = !inQuote
		case inQuote:
		case ch == '\\' || ch == '_' || ch == '*':
			i++ // skip the escaped / padding character
		case ch == '[':
			end := strings.IndexByte(code[i:], ']')
			if end < 0 {
				return false
			}
			inner := strings.ToLower(code[i+1 : i+end])
			// Elapsed-time tokens count; colors and locales do not.
			if inner != "" && strings.Trim(inner, "hms") == "" {
				b.WriteString(inner)
			}
			i += end
		default:
			b.WriteByte(ch)
		}
	}
	s := strings.ToLower(b.String())
	if s == "general" {
		return false
	}
	return strings.ContainsAny(s, "ydhs") || strings.Contains(s, "m")
}
