package document

import "github.com/zombor/docscan/internal/extract"

const (
	defaultItemName  = "Item"
	defaultTotalName = "Document total"
)

// Reconcile decides the complete line item set a document has after a
// successful run. The result replaces any existing items; it is never merged.
//
// Candidate rows are copied verbatim. Without candidates a non-zero total
// becomes a single fallback line at quantity 1, so a document with a total
// always has at least one line.
func Reconcile(doc *Document, res extract.Result) []LineItem {
	if len(res.Items) > 0 {
		lines := make([]LineItem, 0, len(res.Items))
		for _, item := range res.Items {
			name := item.Name
			if name == "" {
				name = defaultItemName
			}
			lines = append(lines, LineItem{
				Name:      name,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			})
		}
		return lines
	}

	if res.TotalAmount != 0 {
		return []LineItem{{
			Name:      fallbackName(doc, res),
			Quantity:  1,
			UnitPrice: res.TotalAmount,
		}}
	}

	return []LineItem{}
}

func fallbackName(doc *Document, res extract.Result) string {
	switch {
	case res.VendorName != "":
		return res.VendorName + " total"
	case doc != nil && doc.Label != "":
		return doc.Label + " total"
	default:
		return defaultTotalName
	}
}
