package sink

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/tenderwatch/internal/tender"
)

// SheetName is the worksheet holding listings.
const SheetName = "Opportunities"

func encodeXLSX(w io.Writer, listings []tender.Listing) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, l := range listings {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row %d: %w", i+2, err)
		}
		values := make([]any, 0, len(Columns))
		for _, v := range record(l) {
			values = append(values, v)
		}
		values[6] = l.Page
		if l.Confidence != nil {
			values[9] = *l.Confidence
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	for i := range Columns {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("column %d: %w", i+1, err)
		}
		width := 18.0
		if i == 0 || i == 5 {
			width = 48
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set width %s: %w", col, err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func decodeXLSX(r io.Reader) ([]tender.Listing, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := SheetName
	if idx, err := f.GetSheetIndex(SheetName); err != nil || idx < 0 {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	listings := []tender.Listing{}
	if len(rows) == 0 {
		return listings, nil
	}
	index := columnIndex(rows[0])
	for i, row := range rows[1:] {
		l, err := fromRecord(row, index)
		if err != nil {
			return nil, fmt.Errorf("sheet row %d: %w", i+2, err)
		}
		listings = append(listings, l)
	}
	return listings, nil
}
