package ocr

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"
)

// Enhance prepares a scan for recognition: grayscale, stronger contrast and
// a light sharpen. The output is PNG.
func Enhance(imageData []byte) ([]byte, error) {
	src, err := decodeImage(imageData)
	if err != nil {
		return nil, err
	}

	img := imaging.Grayscale(src)
	img = imaging.AdjustContrast(img, 30)
	img = imaging.Sharpen(img, 1.5)
	img = imaging.AdjustGamma(img, 1.2)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encoding enhanced image: %w", err)
	}
	return buf.Bytes(), nil
}

// Enhancing runs Enhance on image payloads before handing them to engine
type Enhancing struct {
	engine Engine
}

// NewEnhancing wraps engine with image enhancement
func NewEnhancing(engine Engine) *Enhancing {
	return &Enhancing{engine: engine}
}

func (e *Enhancing) Name() string { return e.engine.Name() }

// Recognize implements Engine
func (e *Enhancing) Recognize(ctx context.Context, payload []byte, kind Kind) (string, error) {
	if kind == KindImage {
		enhanced, err := Enhance(payload)
		if err != nil {
			return "", fmt.Errorf("enhancing image: %w", err)
		}
		payload = enhanced
	}
	return e.engine.Recognize(ctx, payload, kind)
}

func (e *Enhancing) Close() error { return e.engine.Close() }
