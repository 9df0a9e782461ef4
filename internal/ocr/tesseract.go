package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract implements Engine with a local Tesseract installation
type Tesseract struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewTesseract creates a Tesseract engine. With no languages it uses English
// and Thai trained data.
func NewTesseract(languages ...string) *Tesseract {
	if len(languages) == 0 {
		languages = []string{"eng", "tha"}
	}
	return &Tesseract{
		languages:     languages,
		clientFactory: gosseract.NewClient,
	}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Recognize runs Tesseract on a single image
func (t *Tesseract) Recognize(ctx context.Context, payload []byte, kind Kind) (string, error) {
	if kind != KindImage {
		return "", fmt.Errorf("tesseract: %w: %s", ErrUnsupportedKind, kind)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	pngData, err := ToPNG(payload)
	if err != nil {
		return "", err
	}

	c := t.clientFactory()
	defer c.Close()

	if err := c.SetLanguage(t.languages...); err != nil {
		return "", fmt.Errorf("setting languages: %w", err)
	}
	if err := c.SetImageFromBytes(pngData); err != nil {
		return "", fmt.Errorf("setting image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognizing text: %w", err)
	}
	return text, nil
}

// Close is a no-op; a client is created per call.
func (t *Tesseract) Close() error {
	return nil
}
