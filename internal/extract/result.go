package extract

const (
	// BaseConfidence is the score reported before any heuristic matches.
	BaseConfidence = 0.50
	// MaxConfidence caps the score; extraction never reports certainty.
	MaxConfidence = 0.95
)

// Item is one candidate row found in the document text
type Item struct {
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Result is the field bag produced by one extraction run. Every field has a
// zero default so callers can rely on the full shape being present.
type Result struct {
	VendorName      string  `json:"vendor_name"`
	SupplierName    string  `json:"supplier_name"`
	CustomerName    string  `json:"customer_name"`
	SellerID        string  `json:"seller_id"`
	CompanyIssued   string  `json:"company_issued"`
	TaxID           string  `json:"tax_id"`
	VendorPhone     string  `json:"vendor_phone"`
	VendorAddress   string  `json:"vendor_address"`
	ReferenceNumber string  `json:"reference_number"`
	InvoiceDateRaw  string  `json:"invoice_date_raw"`
	ReceiptNumber   string  `json:"receipt_number"`
	ReceiptDateRaw  string  `json:"receipt_date_raw"`
	SubtotalAmount  float64 `json:"subtotal_amount"`
	DiscountAmount  float64 `json:"discount_amount"`
	VATPercent      float64 `json:"vat_percent"`
	VATAmount       float64 `json:"vat_amount"`
	TotalAmount     float64 `json:"total_amount"`
	Confidence      float64 `json:"confidence"`
	Items           []Item  `json:"items"`
}

func emptyResult() Result {
	return Result{
		Confidence: BaseConfidence,
		Items:      []Item{},
	}
}
