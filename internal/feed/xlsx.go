package feed

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/dividendlab/screener-cli/internal/model"
)

// XLSXLoader reads the feed from a spreadsheet workbook.
type XLSXLoader struct {
	Path       string
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	Options
}

func (l *XLSXLoader) Load(ctx context.Context) ([]string, []model.Row, error) {
	f, err := xlsx.OpenFile(l.Path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "feed: open xlsx")
	}

	sheet, err := l.sheet(f)
	if err != nil {
		return nil, nil, err
	}

	var header []string
	var records [][]string
	for i, row := range sheet.Rows {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "feed: xlsx read cancelled")
		}
		if i < l.SkipRows {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		if header == nil {
			header = cells
			continue
		}
		records = append(records, cells)
	}

	rows, err := assemble(header, records, l.tickerColumn())
	if err != nil {
		return nil, nil, err
	}
	return header, rows, nil
}

func (l *XLSXLoader) sheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if l.SheetName != "" {
		sheet, ok := f.Sheet[l.SheetName]
		if !ok {
			return nil, eris.Errorf("feed: sheet %q not found", l.SheetName)
		}
		return sheet, nil
	}
	if l.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("feed: sheet index %d out of range (workbook has %d sheets)", l.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[l.SheetIndex], nil
}
