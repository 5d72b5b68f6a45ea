package core

import (
	"encoding/csv"
	"fmt"
	"io"
)

// ExportFilename is the download name for exported rows.
const ExportFilename = "parsed-invoice-data.csv"

// ExportFields are the CSV header names, in column order.
var ExportFields = []string{"invoiceNumber", "date", "totalAmount"}

// WriteCSV writes a header line followed by one record per row, in order.
// Quoting follows encoding/csv.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(ExportFields); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range rows {
		record := []string{
			row.InvoiceNumber.String(),
			row.Date.String(),
			row.TotalAmount.String(),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
