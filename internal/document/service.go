package document

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/docscan/internal/ledger"
	"github.com/zombor/docscan/internal/ocr"
)

// IDGenerator generates unique storage object prefixes
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpaces      = regexp.MustCompile(`\s+`)
)

// Service handles document operations
type Service struct {
	db          DB
	storage     Storage
	pipeline    *Pipeline
	ledger      ledger.Client
	idGenerator IDGenerator
	timeSource  TimeSource

	// billMu serializes CreateBill so two calls cannot both reach the ledger
	billMu sync.Mutex
}

// NewService creates a new Service with default ID generator and time
// source. ledgerClient may be nil when no ledger is configured.
func NewService(db DB, storage Storage, engine ocr.Engine, ledgerClient ledger.Client) *Service {
	return NewServiceWithDeps(db, storage, engine, ledgerClient, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, storage Storage, engine ocr.Engine, ledgerClient ledger.Client, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		storage:     storage,
		pipeline:    NewPipeline(db, storage, engine, timeSrc),
		ledger:      ledgerClient,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// Pipeline returns the pipeline the service runs documents through
func (s *Service) Pipeline() *Pipeline {
	return s.pipeline
}

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = filenameSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	// 50 chars for base, plus extension
	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "document"
	}

	return base + ext
}

// UploadRequest describes a new source file
type UploadRequest struct {
	Name        string // Label; generated when empty
	Kind        Kind
	Filename    string
	ContentType string
	Data        []byte
	UploadedBy  string
}

// Upload stores a source file and creates its document in the uploaded state
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*Document, error) {
	kind := req.Kind
	if kind == "" {
		kind = KindInvoice
	}
	if !kind.Valid() {
		return nil, invalid("unknown document kind %q", kind)
	}
	if len(req.Data) == 0 {
		return nil, invalid("please upload a non-empty file")
	}

	label := strings.TrimSpace(req.Name)
	if label == "" {
		var err error
		label, err = s.db.NextLabel()
		if err != nil {
			return nil, fmt.Errorf("generating label: %w", err)
		}
	}

	now := s.timeSource.Now()
	objectName := fmt.Sprintf("%s_%s", s.idGenerator.Generate(), sanitizeFilename(req.Filename))

	savedPath, err := s.storage.Save(ctx, objectName, req.Data)
	if err != nil {
		return nil, fmt.Errorf("saving file: %w", err)
	}

	doc := &Document{
		Label:        label,
		Kind:         kind,
		Filename:     savedPath,
		OriginalName: req.Filename,
		ContentType:  req.ContentType,
		UploadedAt:   now,
		UploadedBy:   req.UploadedBy,
		Status:       StatusUploaded,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.CreateDocument(doc); err != nil {
		// Clean up file if database save fails
		if delErr := s.storage.Delete(ctx, savedPath); delErr != nil {
			slog.Warn("Failed to delete file", "filename", savedPath, "error", delErr)
		}
		return nil, fmt.Errorf("saving document to database: %w", err)
	}

	slog.Info("Document uploaded", "document_id", doc.ID, "label", doc.Label, "kind", doc.Kind)
	return doc, nil
}

// GetDocument retrieves a document by ID
func (s *Service) GetDocument(id string) (*Document, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return doc, nil
}

// LineItems returns the line items of a document
func (s *Service) LineItems(id string) ([]LineItem, error) {
	lines, err := s.db.LineItems(id)
	if err != nil {
		return nil, fmt.Errorf("getting line items: %w", err)
	}
	return lines, nil
}

// ListDocuments returns documents newest first. An empty status returns all.
func (s *Service) ListDocuments(status Status) ([]*Document, error) {
	docs, err := s.db.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	if status != "" {
		filtered := docs[:0]
		for _, doc := range docs {
			if doc.Status == status {
				filtered = append(filtered, doc)
			}
		}
		docs = filtered
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// GetDocumentFile retrieves the source payload of a document
func (s *Service) GetDocumentFile(ctx context.Context, id string) ([]byte, string, error) {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting document: %w", err)
	}
	if doc.Filename == "" {
		return nil, "", fmt.Errorf("%w: no file for document %s", ErrNotFound, id)
	}

	data, err := s.storage.Get(ctx, doc.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting document file: %w", err)
	}

	return data, doc.ContentType, nil
}

// DeleteDocument removes a document, its line items and its file
func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	doc, err := s.db.GetDocument(id)
	if err != nil {
		return fmt.Errorf("getting document for deletion: %w", err)
	}

	if err := s.db.DeleteDocument(id); err != nil {
		return fmt.Errorf("deleting document from database: %w", err)
	}

	if doc.Filename != "" {
		if err := s.storage.Delete(ctx, doc.Filename); err != nil {
			// The record is gone; an orphaned file is only logged
			slog.Warn("Failed to delete file", "filename", doc.Filename, "error", err)
		}
	}
	return nil
}

// Run runs OCR and extraction on a document
func (s *Service) Run(ctx context.Context, id string) (*Document, error) {
	return s.pipeline.Run(ctx, id)
}

// Rerun clears the previous diagnostics and runs again
func (s *Service) Rerun(ctx context.Context, id string) (*Document, error) {
	return s.pipeline.Rerun(ctx, id)
}

// Review holds header values confirmed by a person
type Review struct {
	VendorName     string  `json:"vendor_name"`
	InvoiceDateRaw string  `json:"invoice_date_raw"`
	TotalAmount    float64 `json:"total_amount"`
	VATAmount      float64 `json:"vat_amount"`
}

// Review writes reviewed header values and marks the document completed
func (s *Service) Review(_ context.Context, id string, review Review) (*Document, error) {
	if review.TotalAmount < 0 || review.VATAmount < 0 {
		return nil, invalid("amounts cannot be negative")
	}

	doc, err := s.db.Update(id, func(d *Document) error {
		if d.Status == StatusProcessing {
			return ErrRunInProgress
		}
		d.VendorName = strings.TrimSpace(review.VendorName)
		d.InvoiceDateRaw = strings.TrimSpace(review.InvoiceDateRaw)
		if d.Kind == KindReceipt {
			d.ReceiptDateRaw = d.InvoiceDateRaw
		}
		d.TotalAmount = review.TotalAmount
		d.VATAmount = review.VATAmount
		d.Status = StatusCompleted
		d.Progress = 100
		d.ExtractionLog = appendLog(d.ExtractionLog, "Reviewed: "+d.VendorName)
		d.UpdatedAt = s.timeSource.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// CreateBill creates a ledger bill from a document and links it
func (s *Service) CreateBill(ctx context.Context, id string) (*Document, error) {
	s.billMu.Lock()
	defer s.billMu.Unlock()

	doc, err := s.db.GetDocument(id)
	if err != nil {
		return nil, err
	}
	if err := checkBillable(doc); err != nil {
		return nil, err
	}
	if s.ledger == nil {
		return nil, ErrLedgerUnavailable
	}

	lines, err := s.db.LineItems(id)
	if err != nil {
		return nil, fmt.Errorf("getting line items: %w", err)
	}

	bill := ledger.Bill{
		Vendor:    doc.VendorName,
		Date:      doc.DateRaw(),
		Reference: doc.ReferenceNumber,
		Lines:     make([]ledger.Line, 0, len(lines)),
	}
	for _, line := range lines {
		bill.Lines = append(bill.Lines, ledger.Line(line))
	}

	billID, err := s.ledger.CreateBill(ctx, bill)
	if err != nil {
		return nil, fmt.Errorf("creating ledger bill: %w", err)
	}

	doc, err = s.db.Update(id, func(d *Document) error {
		if err := checkBillable(d); err != nil {
			return err
		}
		d.BillID = billID
		d.UpdatedAt = s.timeSource.Now()
		return nil
	})
	if err != nil {
		slog.Error("Ledger bill created but not linked", "document_id", id, "bill_id", billID, "error", err)
		return nil, err
	}

	slog.Info("Ledger bill created", "document_id", id, "bill_id", billID)
	RecordBillCreated()
	return doc, nil
}

func checkBillable(doc *Document) error {
	if doc.BillID != "" {
		return &ValidationError{Message: "a bill has already been created for this document", Err: ErrAlreadyLinked}
	}
	if doc.VendorName == "" {
		return invalid("vendor is required to create a bill")
	}
	return nil
}
