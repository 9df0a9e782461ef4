package ocr

import (
	"context"
	"fmt"
	"strings"
)

// PageMarker separates page texts so the raw OCR output keeps page provenance.
const PageMarker = "--- Page %d ---"

// Paged recognizes paginated documents one page at a time with an image
// engine and concatenates the page texts. Images pass straight through.
type Paged struct {
	engine   Engine
	renderer Renderer
}

// NewPaged wraps engine so it also accepts KindDocument payloads
func NewPaged(engine Engine, renderer Renderer) *Paged {
	return &Paged{engine: engine, renderer: renderer}
}

func (p *Paged) Name() string { return p.engine.Name() }

// Recognize implements Engine
func (p *Paged) Recognize(ctx context.Context, payload []byte, kind Kind) (string, error) {
	if kind != KindDocument {
		return p.engine.Recognize(ctx, payload, kind)
	}

	pages, err := p.renderer.Render(payload)
	if err != nil {
		return "", fmt.Errorf("rendering document: %w", err)
	}

	var b strings.Builder
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := p.engine.Recognize(ctx, page, KindImage)
		if err != nil {
			return "", fmt.Errorf("recognizing page %d: %w", i+1, err)
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, PageMarker+"\n", i+1)
		b.WriteString(text)
	}
	return b.String(), nil
}

func (p *Paged) Close() error { return p.engine.Close() }
