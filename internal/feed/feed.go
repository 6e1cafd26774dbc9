// Package feed loads the candidate universe from tabular sources. Each
// loader produces the same shape: a header naming the feed's columns
// and one row per security, keyed by header cell.
package feed

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/dividendlab/screener-cli/internal/model"
)

// Loader fetches the full candidate feed.
type Loader interface {
	Load(ctx context.Context) (header []string, rows []model.Row, err error)
}

// Options are shared across loaders.
type Options struct {
	SkipRows     int    // banner rows above the header
	TickerColumn string // default "Ticker"
}

func (o Options) tickerColumn() string {
	if o.TickerColumn == "" {
		return "Ticker"
	}
	return o.TickerColumn
}

// assemble maps raw string records onto the header, dropping rows with a
// blank ticker cell. Cells beyond the header width are ignored; short
// rows simply lack the trailing columns.
func assemble(header []string, records [][]string, tickerColumn string) ([]model.Row, error) {
	if len(header) == 0 {
		return nil, eris.New("feed: empty header")
	}
	tickerIdx := -1
	for i, h := range header {
		if h == tickerColumn {
			tickerIdx = i
			break
		}
	}
	if tickerIdx == -1 {
		return nil, eris.Errorf("feed: ticker column %q not in header", tickerColumn)
	}

	rows := make([]model.Row, 0, len(records))
	for _, record := range records {
		if tickerIdx >= len(record) || strings.TrimSpace(record[tickerIdx]) == "" {
			continue
		}
		row := make(model.Row, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			if i < len(record) {
				row[col] = model.StringValue(record[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
