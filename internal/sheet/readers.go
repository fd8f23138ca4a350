package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"
)

// ReadXLSX reads the first worksheet of an Excel workbook
func ReadXLSX(r io.Reader) (Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Sheet{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Sheet{}, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Sheet{}, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return Sheet{Name: sheets[0]}, nil
	}

	slog.Debug("Workbook read", "sheet", sheets[0], "rows", len(rows)-1)
	return build(sheets[0], rows[0], rows[1:]), nil
}

// ReadCSV reads a comma separated sheet with a header line
func ReadCSV(r io.Reader) (Sheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return Sheet{}, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return Sheet{}, nil
	}

	// strip a UTF-8 BOM left by spreadsheet exports
	records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")

	return build("csv", records[0], records[1:]), nil
}

// ReadParquet reads a flat Parquet file. Each leaf column becomes a header.
func ReadParquet(r io.ReaderAt, size int64) (Sheet, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return Sheet{}, fmt.Errorf("failed to open parquet: %w", err)
	}

	columns := pf.Schema().Columns()
	header := make([]string, len(columns))
	for i, path := range columns {
		header[i] = strings.Join(path, ".")
	}

	slog.Debug("Parquet file opened", "num_rows", pf.NumRows(), "columns", len(header))

	var records [][]string
	batch := make([]parquet.Row, 128)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(batch)
			for _, row := range batch[:n] {
				records = append(records, parquetRecord(row, len(header)))
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					rows.Close()
					return Sheet{}, fmt.Errorf("failed to read parquet rows: %w", err)
				}
				break
			}
			if n == 0 {
				break
			}
		}
		rows.Close()
	}

	return build("parquet", header, records), nil
}

func parquetRecord(row parquet.Row, width int) []string {
	rec := make([]string, width)
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= width || v.IsNull() {
			continue
		}
		rec[col] = v.String()
	}
	return rec
}
