package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/zombor/docscan/internal/extract"
	"github.com/zombor/docscan/internal/ocr"
)

// startProgress is reported while the OCR engine runs
const startProgress = 10

// Pipeline drives a document through OCR, extraction and reconciliation.
//
// uploaded → processing → completed | error. Entering processing is a
// compare-and-swap in the store, so at most one run per document is in
// flight; a concurrent run gets ErrRunInProgress. The outcome of a run is
// written in a single transaction.
type Pipeline struct {
	db         DB
	storage    Storage
	engine     ocr.Engine
	timeSource TimeSource
}

// NewPipeline creates a pipeline
func NewPipeline(db DB, storage Storage, engine ocr.Engine, timeSrc TimeSource) *Pipeline {
	return &Pipeline{
		db:         db,
		storage:    storage,
		engine:     engine,
		timeSource: timeSrc,
	}
}

// Run processes a document. Engine failures are recorded on the document
// (status error) and are not returned as errors.
func (p *Pipeline) Run(ctx context.Context, id string) (*Document, error) {
	return p.run(ctx, id, false)
}

// Rerun clears the previous run's raw text and log, then runs again.
// Header fields and line items are only replaced by a successful run.
func (p *Pipeline) Rerun(ctx context.Context, id string) (*Document, error) {
	return p.run(ctx, id, true)
}

func (p *Pipeline) run(ctx context.Context, id string, rerun bool) (*Document, error) {
	doc, err := p.db.GetDocument(id)
	if err != nil {
		return nil, err
	}

	payload, err := p.loadPayload(ctx, doc)
	if err != nil {
		return nil, err
	}

	doc, err = p.db.Update(id, func(d *Document) error {
		if d.Status == StatusProcessing {
			return ErrRunInProgress
		}
		d.Status = StatusProcessing
		d.Progress = startProgress
		if rerun {
			d.ExtractedText = ""
			d.ExtractionLog = ""
		}
		d.UpdatedAt = p.timeSource.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := ocr.KindFor(doc.ContentType, doc.OriginalName)
	slog.Info("Running OCR",
		"document_id", id,
		"engine", p.engine.Name(),
		"kind", kind,
		"rerun", rerun,
	)

	start := time.Now()
	text, ocrErr := p.recognize(ctx, payload, kind)
	RecordOCRDuration(p.engine.Name(), time.Since(start).Seconds())

	if ocrErr != nil {
		return p.fail(id, doc.Kind, ocr.FailureText(ocrErr))
	}
	return p.complete(id, doc, text)
}

// recognize calls the engine and reports a panic as an engine failure, so
// the document never stays in processing after a crashed decoder
func (p *Pipeline) recognize(ctx context.Context, payload []byte, kind ocr.Kind) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("OCR engine panicked", "engine", p.engine.Name(), "panic", r)
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	return p.engine.Recognize(ctx, payload, kind)
}

// loadPayload validates that a source payload is attached
func (p *Pipeline) loadPayload(ctx context.Context, doc *Document) ([]byte, error) {
	if doc.Filename == "" {
		return nil, invalid("please upload a file before running OCR")
	}
	payload, err := p.storage.Get(ctx, doc.Filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &ValidationError{Message: "the uploaded file is missing; please upload it again", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("loading source file: %w", err)
	}
	if len(payload) == 0 {
		return nil, invalid("the uploaded file is empty")
	}
	return payload, nil
}

// fail records an engine failure. Header fields and line items from an
// earlier run are left untouched.
func (p *Pipeline) fail(id string, kind Kind, message string) (*Document, error) {
	slog.Warn("OCR failed", "document_id", id, "error", message)

	doc, err := p.db.Update(id, func(d *Document) error {
		d.Status = StatusError
		d.Progress = 100
		d.ExtractionLog = appendLog(d.ExtractionLog, message)
		d.UpdatedAt = p.timeSource.Now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("recording OCR failure: %w", err)
	}
	RecordRun(kind, StatusError)
	return doc, nil
}

// complete extracts fields from text and commits header, raw text, log and
// line items together
func (p *Pipeline) complete(id string, doc *Document, text string) (*Document, error) {
	res := extract.Extract(text)
	lines := Reconcile(doc, res)
	entry := extractionLog(p.engine.Name(), res, text, len(lines))

	updated, err := p.db.UpdateWithLines(id, func(d *Document) error {
		d.Fields = FieldsFrom(res)
		d.ExtractedText = text
		d.ExtractionLog = appendLog(d.ExtractionLog, entry)
		d.Status = StatusCompleted
		d.Progress = 100
		d.UpdatedAt = p.timeSource.Now()
		return nil
	}, lines)
	if err != nil {
		// Leave the document re-runnable rather than stuck in processing
		if _, failErr := p.fail(id, doc.Kind, "saving extraction: "+err.Error()); failErr != nil {
			slog.Error("Failed to record extraction failure", "document_id", id, "error", failErr)
		}
		return nil, fmt.Errorf("saving extraction: %w", err)
	}

	slog.Info("OCR completed",
		"document_id", id,
		"vendor", res.VendorName,
		"total", res.TotalAmount,
		"confidence", res.Confidence,
		"lines", len(lines),
	)
	RecordRun(doc.Kind, StatusCompleted)
	return updated, nil
}

// RecoverInterrupted marks documents left in processing by a previous
// process as failed so they can be re-run. Call it before serving requests.
func (p *Pipeline) RecoverInterrupted() (int, error) {
	docs, err := p.db.ListDocuments()
	if err != nil {
		return 0, fmt.Errorf("listing documents: %w", err)
	}

	recovered := 0
	for _, doc := range docs {
		if doc.Status != StatusProcessing {
			continue
		}
		_, err := p.db.Update(doc.ID, func(d *Document) error {
			if d.Status != StatusProcessing {
				return nil
			}
			d.Status = StatusError
			d.Progress = 100
			d.ExtractionLog = appendLog(d.ExtractionLog, "run interrupted before completion")
			d.UpdatedAt = p.timeSource.Now()
			return nil
		})
		if err != nil {
			return recovered, fmt.Errorf("recovering document %s: %w", doc.ID, err)
		}
		recovered++
	}
	return recovered, nil
}

func extractionLog(engine string, res extract.Result, text string, lines int) string {
	entries := []string{
		"=== OCR Extraction ===",
		"Engine: " + engine,
		"Vendor: " + res.VendorName,
		fmt.Sprintf("Total: %.2f", res.TotalAmount),
		fmt.Sprintf("VAT: %.2f", res.VATAmount),
		fmt.Sprintf("Confidence: %.2f", res.Confidence),
	}
	if res.InvoiceDateRaw != "" {
		entries = append(entries, "Raw date: "+res.InvoiceDateRaw)
	}
	entries = append(entries,
		"Matched: "+strings.Join(extract.Matched(text), ", "),
		fmt.Sprintf("Line items: %d", lines),
	)
	return strings.Join(entries, "\n")
}

func appendLog(log, entry string) string {
	return strings.TrimSpace(log + "\n" + entry)
}
