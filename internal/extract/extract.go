// Package extract turns noisy OCR text from invoices and receipts into a
// structured field bag using ordered regular-expression heuristics.
//
// Extraction is best effort: it never fails, every field has a zero default,
// and the confidence score is an additive estimate capped at MaxConfidence.
package extract

import "math"

// Extract runs every heuristic over the normalized text and folds the
// matches into a Result. Empty input yields the default result.
func Extract(text string) Result {
	res := emptyResult()
	text = Normalize(text)
	if text == "" {
		return res
	}

	for _, h := range heuristics {
		apply, ok := h.match(text)
		if !ok {
			continue
		}
		res = apply(res)
		res.Confidence += h.delta
	}

	res.Confidence = math.Max(0, math.Min(res.Confidence, MaxConfidence))
	return res
}

// Matched reports the names of the heuristics that fired for text, in
// evaluation order. It is used for the extraction log.
func Matched(text string) []string {
	text = Normalize(text)
	names := make([]string, 0, len(heuristics))
	if text == "" {
		return names
	}
	for _, h := range heuristics {
		if _, ok := h.match(text); ok {
			names = append(names, h.name)
		}
	}
	return names
}
