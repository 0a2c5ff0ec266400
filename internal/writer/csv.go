package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

// CSVWriter writes a document's classified transactions in CSV format.
type CSVWriter struct {
	IncludeHeader bool
}

// WriteToFile writes the export to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, doc *models.StatementDocument, txns []*models.Transaction) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer f.Close()

	return w.Write(f, doc, txns)
}

// Write writes the export to out.
func (w *CSVWriter) Write(out io.Writer, doc *models.StatementDocument, txns []*models.Transaction) error {
	writer := csv.NewWriter(out)

	if w.IncludeHeader && doc != nil {
		meta := [][2]string{
			{"# Document", doc.ID},
			{"# Bank", string(doc.Bank)},
			{"# Account Number", doc.AccountNumber},
			{"# Period", doc.Period},
			{"# Holder", string(doc.Holder)},
			{"# Status", string(doc.Status)},
		}
		if v, ok := doc.Info.Get(models.FieldCustomerName); ok {
			meta = append(meta, [2]string{"# Customer Name", v})
		}
		for _, m := range meta {
			if m[1] == "" {
				continue
			}
			if err := writer.Write(m[:]); err != nil {
				return fmt.Errorf("failed to write CSV metadata: %w", err)
			}
		}
	}

	header := []string{"Seq", "Date", "Description", "Direction", "Amount", "Category", "Transfer"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, txn := range txns {
		row := []string{
			fmt.Sprint(txn.Seq),
			txn.Date.Format(models.DateLayout),
			txn.Description,
			string(txn.Direction),
			txn.Amount.StringFixed(2),
			string(txn.Category),
			txn.TransferID,
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
