package document

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/docscan/internal/extract"
)

// Kind is the type of uploaded document
type Kind string

const (
	KindInvoice Kind = "invoice"
	KindReceipt Kind = "receipt"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	return k == KindInvoice || k == KindReceipt
}

// Status is the lifecycle state of a document
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Fields holds the header values extracted from a document
type Fields struct {
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
	ConfidenceScore float64 `json:"confidence_score"`
}

// FieldsFrom copies the header values of an extraction result
func FieldsFrom(res extract.Result) Fields {
	return Fields{
		VendorName:      res.VendorName,
		SupplierName:    res.SupplierName,
		CustomerName:    res.CustomerName,
		SellerID:        res.SellerID,
		CompanyIssued:   res.CompanyIssued,
		TaxID:           res.TaxID,
		VendorPhone:     res.VendorPhone,
		VendorAddress:   res.VendorAddress,
		ReferenceNumber: res.ReferenceNumber,
		InvoiceDateRaw:  res.InvoiceDateRaw,
		ReceiptNumber:   res.ReceiptNumber,
		ReceiptDateRaw:  res.ReceiptDateRaw,
		SubtotalAmount:  res.SubtotalAmount,
		DiscountAmount:  res.DiscountAmount,
		VATPercent:      res.VATPercent,
		VATAmount:       res.VATAmount,
		TotalAmount:     res.TotalAmount,
		ConfidenceScore: res.Confidence,
	}
}

// Document is one uploaded source file and its extraction state
type Document struct {
	ID           string    `json:"id"`
	Label        string    `json:"label"`
	Kind         Kind      `json:"kind"`
	Filename     string    `json:"filename"` // Storage key of the source payload
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	UploadedAt   time.Time `json:"uploaded_at"`
	UploadedBy   string    `json:"uploaded_by,omitempty"`
	Status       Status    `json:"status"`
	Progress     int       `json:"progress"`
	Fields
	ExtractedText string    `json:"extracted_text"`
	ExtractionLog string    `json:"extraction_log"`
	BillID        string    `json:"bill_id,omitempty"` // Ledger bill created from this document
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DateRaw returns the raw date matching the document kind
func (d *Document) DateRaw() string {
	if d.Kind == KindReceipt && d.ReceiptDateRaw != "" {
		return d.ReceiptDateRaw
	}
	return d.InvoiceDateRaw
}

// LineItem is one parsed row of a document
type LineItem struct {
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Extension is quantity × unit price, computed from the row itself
func (l LineItem) Extension() float64 {
	return decimal.NewFromFloat(l.Quantity).Mul(decimal.NewFromFloat(l.UnitPrice)).InexactFloat64()
}

// MarshalJSON includes the computed extension
func (l LineItem) MarshalJSON() ([]byte, error) {
	type plain LineItem
	return json.Marshal(struct {
		plain
		Extension float64 `json:"extension"`
	}{plain(l), l.Extension()})
}
