package feed

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/dividendlab/screener-cli/internal/model"
)

// CSVLoader reads the feed from a comma-separated file. The first row
// after any skipped banner rows is the header.
type CSVLoader struct {
	Path      string
	Delimiter rune // default ','
	Options
}

func (l *CSVLoader) Load(ctx context.Context) ([]string, []model.Row, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "feed: open csv")
	}
	defer f.Close()
	return l.read(ctx, f)
}

func (l *CSVLoader) read(ctx context.Context, r io.Reader) ([]string, []model.Row, error) {
	reader := csv.NewReader(r)
	if l.Delimiter != 0 {
		reader.Comma = l.Delimiter
	}
	reader.FieldsPerRecord = -1

	var header []string
	var records [][]string
	line := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "feed: csv read cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, eris.Wrap(err, "feed: read csv row")
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}

		switch {
		case line < l.SkipRows:
		case header == nil:
			header = record
		default:
			records = append(records, record)
		}
		line++
	}

	rows, err := assemble(header, records, l.tickerColumn())
	if err != nil {
		return nil, nil, err
	}
	return header, rows, nil
}
