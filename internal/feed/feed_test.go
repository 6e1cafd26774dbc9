package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func writeTestCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "feed.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestCSVLoaderBasic(t *testing.T) {
	path := writeTestCSV(t, "Ticker,Company,Div. Yield\nKO,Coca-Cola,3.1%\nPG,Procter & Gamble,2.4%\n")

	l := &CSVLoader{Path: path}
	header, rows, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Ticker", "Company", "Div. Yield"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, "KO", rows[0].Ticker("Ticker"))
	assert.Equal(t, "3.1%", rows[0].Get("Div. Yield").String())
}

func TestCSVLoaderSkipRowsAndTrim(t *testing.T) {
	path := writeTestCSV(t, "exported 2026-08-28,,\nTicker, Company ,Yield\nKO , Coca-Cola ,3.1\n")

	l := &CSVLoader{Path: path, Options: Options{SkipRows: 1}}
	header, rows, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Ticker", "Company", "Yield"}, header)
	require.Len(t, rows, 1)
	assert.Equal(t, "KO", rows[0].Ticker("Ticker"))
	assert.Equal(t, "Coca-Cola", rows[0].Get("Company").String())
}

func TestCSVLoaderDropsBlankTickers(t *testing.T) {
	path := writeTestCSV(t, "Ticker,Company\nKO,Coca-Cola\n,Ghost Corp\nPG,Procter\n")

	l := &CSVLoader{Path: path}
	_, rows, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "KO", rows[0].Ticker("Ticker"))
	assert.Equal(t, "PG", rows[1].Ticker("Ticker"))
}

func TestCSVLoaderShortRows(t *testing.T) {
	path := writeTestCSV(t, "Ticker,Company,Yield\nKO,Coca-Cola\n")

	l := &CSVLoader{Path: path}
	_, rows, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Has("Yield"))
}

func TestCSVLoaderMissingTickerColumn(t *testing.T) {
	path := writeTestCSV(t, "Symbol,Company\nKO,Coca-Cola\n")

	l := &CSVLoader{Path: path}
	_, _, err := l.Load(context.Background())
	require.Error(t, err)

	l = &CSVLoader{Path: path, Options: Options{TickerColumn: "Symbol"}}
	_, rows, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestXLSXLoaderBasic(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Screen": {
			{"Ticker", "Company", "Div. Yield"},
			{"KO", "Coca-Cola", "3.1%"},
			{"", "Ghost Corp", "9.9%"},
			{"PG", "Procter", "2.4%"},
		},
	})

	l := &XLSXLoader{Path: path}
	header, rows, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Ticker", "Company", "Div. Yield"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, "PG", rows[1].Ticker("Ticker"))
}

func TestXLSXLoaderSheetByName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Notes":  {{"junk"}},
		"Screen": {{"Ticker"}, {"KO"}},
	})

	l := &XLSXLoader{Path: path, SheetName: "Screen"}
	_, rows, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	l = &XLSXLoader{Path: path, SheetName: "Missing"}
	_, _, err = l.Load(context.Background())
	require.Error(t, err)
}

func TestXLSXLoaderSheetIndexOutOfRange(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Screen": {{"Ticker"}, {"KO"}},
	})

	l := &XLSXLoader{Path: path, SheetIndex: 5}
	_, _, err := l.Load(context.Background())
	require.Error(t, err)
}
