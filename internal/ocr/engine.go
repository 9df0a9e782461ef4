// Package ocr adapts optical character recognition providers to a single
// bytes-in, text-out contract. An empty string is a valid result meaning no
// text was found; engine failures are reported as errors.
package ocr

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// Kind hints the layout of the payload handed to an engine
type Kind string

const (
	// KindImage is a single raster image (JPEG, PNG, GIF, HEIC).
	KindImage Kind = "image"
	// KindDocument is a paginated document (PDF) recognized page by page.
	KindDocument Kind = "document"
)

// FailurePrefix marks engine failures recorded in extraction logs.
const FailurePrefix = "OCR ERROR: "

// ErrUnsupportedKind is returned by engines that only accept raster images.
var ErrUnsupportedKind = errors.New("unsupported payload kind")

// Engine converts a payload into raw text.
type Engine interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Recognize returns the text found in payload. The engine imposes no
	// deadline of its own; callers bound latency through ctx.
	Recognize(ctx context.Context, payload []byte, kind Kind) (string, error)
	// Close releases provider resources.
	Close() error
}

// KindFor picks the payload kind from a MIME type, falling back to the
// file extension when the type is missing or generic.
func KindFor(contentType, filename string) Kind {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "application/pdf" {
		return KindDocument
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		if strings.EqualFold(filepath.Ext(filename), ".pdf") {
			return KindDocument
		}
	}
	return KindImage
}

// FailureText renders an engine error the way it is stored in the log.
func FailureText(err error) string {
	return FailurePrefix + err.Error()
}
