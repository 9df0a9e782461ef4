package document

import "github.com/shopspring/decimal"

// Stats summarizes the document store for the dashboard
type Stats struct {
	Invoices          int     `json:"invoices"`
	Receipts          int     `json:"receipts"`
	Completed         int     `json:"completed"`
	Errors            int     `json:"errors"`
	CompletedTotal    float64 `json:"completed_total"`
	AverageConfidence float64 `json:"average_confidence"`
}

// Stats computes dashboard counters. The average confidence only counts
// completed documents with a non-zero score.
func (s *Service) Stats() (Stats, error) {
	docs, err := s.db.ListDocuments()
	if err != nil {
		return Stats{}, err
	}

	var (
		stats      Stats
		total      = decimal.Zero
		confidence = decimal.Zero
		scored     int64
	)
	for _, doc := range docs {
		switch doc.Kind {
		case KindInvoice:
			stats.Invoices++
		case KindReceipt:
			stats.Receipts++
		}

		switch doc.Status {
		case StatusError:
			stats.Errors++
		case StatusCompleted:
			stats.Completed++
			total = total.Add(decimal.NewFromFloat(doc.TotalAmount))
			if doc.ConfidenceScore > 0 {
				confidence = confidence.Add(decimal.NewFromFloat(doc.ConfidenceScore))
				scored++
			}
		}
	}

	stats.CompletedTotal = total.Round(2).InexactFloat64()
	if scored > 0 {
		stats.AverageConfidence = confidence.Div(decimal.NewFromInt(scored)).Round(2).InexactFloat64()
	}
	return stats, nil
}
