package ocr

import (
	"context"
	"time"
)

// Bounded limits every Recognize call of the wrapped engine to a fixed
// duration. Engines themselves never time out.
type Bounded struct {
	engine  Engine
	timeout time.Duration
}

// WithTimeout wraps engine so each call is cancelled after timeout. A zero
// or negative timeout returns engine unchanged.
func WithTimeout(engine Engine, timeout time.Duration) Engine {
	if timeout <= 0 {
		return engine
	}
	return &Bounded{engine: engine, timeout: timeout}
}

func (b *Bounded) Name() string { return b.engine.Name() }

func (b *Bounded) Recognize(ctx context.Context, payload []byte, kind Kind) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.engine.Recognize(ctx, payload, kind)
}

func (b *Bounded) Close() error { return b.engine.Close() }
