package document

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

var exportHeader = []string{"Name", "Vendor", "Total", "VAT", "Confidence"}

// Export writes every document as a CSV row, newest first
func (s *Service) Export(w io.Writer) error {
	docs, err := s.ListDocuments("")
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, doc := range docs {
		row := []string{
			doc.Label,
			doc.VendorName,
			formatAmount(doc.TotalAmount),
			formatAmount(doc.VATAmount),
			formatAmount(doc.ConfidenceScore),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
