// Package export writes collected places to CSV and XLSX files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"CrawlerNaverMap/internal/pattern"
	"CrawlerNaverMap/internal/place"
)

// Header is the column order of every export.
var Header = []string{"name", "phone", "phone_normalized", "address", "category", "query", "captured_at"}

const timeLayout = "2006-01-02 15:04:05"

// Row is one exported record with the search it came from.
type Row struct {
	place.Record
	Query      string
	CapturedAt time.Time
}

func (r Row) values() []string {
	return []string{
		r.Name,
		r.Phone,
		pattern.CanonicalPhone(r.Phone),
		r.Address,
		r.Category,
		r.Query,
		r.CapturedAt.Format(timeLayout),
	}
}

// Rows tags records with their query and capture time.
func Rows(query string, at time.Time, records []place.Record) []Row {
	out := make([]Row, 0, len(records))
	for _, r := range records {
		out = append(out, Row{Record: r, Query: query, CapturedAt: at})
	}
	return out
}

// FileName builds "<prefix>_<timestamp>.<ext>".
func FileName(prefix, ext string, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, at.Format("20060102_150405"), ext)
}

// WriteCSV writes rows to path with a UTF-8 BOM so spreadsheet tools
// detect the encoding.
func WriteCSV(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodeCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// EncodeCSV writes the BOM, the header and rows to w.
func EncodeCSV(w io.Writer, rows []Row) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes rows to a single-sheet workbook.
func WriteXLSX(path string, rows []Row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, h := range Header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range rows {
		for c, v := range row.values() {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	for i := 1; i <= len(Header); i++ {
		col, _ := excelize.ColumnNumberToName(i)
		_ = f.SetColWidth(sheet, col, col, 24)
	}
	return f.SaveAs(path)
}
