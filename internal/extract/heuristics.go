package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// update is a partial result produced by a single heuristic.
type update func(Result) Result

// rule is one alternative pattern within a heuristic family.
type rule struct {
	pattern *regexp.Regexp
	apply   func(match []string) update
}

// heuristic is an independent extraction step. delta is added to the
// confidence when match reports success.
type heuristic struct {
	name  string
	delta float64
	match func(text string) (update, bool)
}

// amount matches a decimal with exactly two fraction digits.
const amount = `([0-9][0-9,]*\.[0-9]{2})\b`

// firstOf tries rules in order and stops at the first one that matches.
func firstOf(rules ...rule) func(string) (update, bool) {
	return func(text string) (update, bool) {
		for _, r := range rules {
			if m := r.pattern.FindStringSubmatch(text); m != nil {
				return r.apply(m), true
			}
		}
		return nil, false
	}
}

func setString(set func(*Result, string)) func([]string) update {
	return func(m []string) update {
		v := strings.TrimSpace(m[1])
		return func(r Result) Result {
			set(&r, v)
			return r
		}
	}
}

func setAmount(set func(*Result, float64)) func([]string) update {
	return func(m []string) update {
		v := parseAmount(m[1])
		return func(r Result) Result {
			set(&r, v)
			return r
		}
	}
}

// parseAmount strips thousands separators; anything unparsable is 0.
func parseAmount(raw string) float64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}

var vendorRules = []rule{
	{
		pattern: regexp.MustCompile(`(?m)^((?:บริษัท|ห้างหุ้นส่วน|ร้าน)[^\n]{2,})`),
		apply:   setString(func(r *Result, v string) { r.VendorName = v }),
	},
	{
		pattern: regexp.MustCompile(`(?m)^([A-Za-z][A-Za-z0-9 &.\-]{4,})`),
		apply:   setString(func(r *Result, v string) { r.VendorName = v }),
	},
}

var dateRules = []rule{
	{
		pattern: regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`),
		apply: setString(func(r *Result, v string) {
			r.InvoiceDateRaw = v
			r.ReceiptDateRaw = v
		}),
	},
}

var totalRules = []rule{
	{
		pattern: regexp.MustCompile(`(?:ยอดรวมสุทธิ|รวมทั้งสิ้น|ยอดสุทธิ|ยอดรวม)\s*[:\-]?\s*` + amount),
		apply:   setAmount(func(r *Result, v float64) { r.TotalAmount = v }),
	},
	{
		pattern: regexp.MustCompile(`(?i)\bgrand\s*total\s*[:\-]?\s*` + amount),
		apply:   setAmount(func(r *Result, v float64) { r.TotalAmount = v }),
	},
	{
		pattern: regexp.MustCompile(`(?i)\b(?:total\s*amount|total|amount\s*due)\s*[:\-]?\s*` + amount),
		apply:   setAmount(func(r *Result, v float64) { r.TotalAmount = v }),
	},
}

var vatRules = []rule{
	{
		pattern: regexp.MustCompile(`(?:ภาษีมูลค่าเพิ่ม|ภาษี)\s*(?:\d{1,2}(?:\.\d+)?\s*%)?\s*[:\-]?\s*` + amount),
		apply:   setAmount(func(r *Result, v float64) { r.VATAmount = v }),
	},
	{
		pattern: regexp.MustCompile(`(?i)\b(?:vat|tax)\b\s*(?:\d{1,2}(?:\.\d+)?\s*%)?\s*[:\-]?\s*` + amount),
		apply:   setAmount(func(r *Result, v float64) { r.VATAmount = v }),
	},
}

var discountRules = []rule{
	{
		pattern: regexp.MustCompile(`(?i)(?:\bdiscount|ส่วนลด)\s*[:\-]?\s*-?\s*` + amount),
		apply:   setAmount(func(r *Result, v float64) { r.DiscountAmount = v }),
	},
}

var subtotalRules = []rule{
	{
		pattern: regexp.MustCompile(`(?i)(?:\bsub\s*-?\s*total|รวมเงิน)\s*[:\-]?\s*` + amount),
		apply:   setAmount(func(r *Result, v float64) { r.SubtotalAmount = v }),
	},
}

var vatPercentRules = []rule{
	{
		pattern: regexp.MustCompile(`(?i)(?:\bvat|ภาษีมูลค่าเพิ่ม)\s*(\d{1,2}(?:\.\d+)?)\s*%`),
		apply:   setAmount(func(r *Result, v float64) { r.VATPercent = v }),
	},
}

var taxIDRules = []rule{
	{
		pattern: regexp.MustCompile(`(?i)(?:เลขประจำตัวผู้เสียภาษี(?:อากร)?|\btax\s*id)\s*(?:no\.?)?\s*[:\-]?\s*(\d[\d\-]{8,16}\d)`),
		apply:   setString(func(r *Result, v string) { r.TaxID = v }),
	},
}

var phoneRules = []rule{
	{
		pattern: regexp.MustCompile(`(?i)(?:โทร(?:ศัพท์)?|\btel|\bphone)\.?\s*[:\-]?\s*(\+?\d[\d \-]{6,}\d)`),
		apply:   setString(func(r *Result, v string) { r.VendorPhone = v }),
	},
}

var referenceRules = []rule{
	{
		pattern: regexp.MustCompile(`(?i)\breceipt\s*(?:number|no\b|#)\.?\s*[:#\-]?\s*([A-Za-z0-9][A-Za-z0-9\-/]*)`),
		apply: setString(func(r *Result, v string) {
			r.ReceiptNumber = v
			r.ReferenceNumber = v
		}),
	},
	{
		pattern: regexp.MustCompile(`(?i)(?:เลขที่|\binvoice\s*(?:number|no\b|#)|\bref(?:erence)?\b\s*(?:no\b)?)\.?\s*[:#\-]?\s*([A-Za-z0-9][A-Za-z0-9\-/]*)`),
		apply:   setString(func(r *Result, v string) { r.ReferenceNumber = v }),
	},
}

// itemRow matches one line only; quantity, description and price must share it.
var itemRow = regexp.MustCompile(`(?m)^(\d{1,4})[ \t]*[xX]?[ \t]+(\S.*?)[ \t]+([0-9][0-9,]*\.[0-9]{2})[ \t]*$`)

// matchItems collects every quantity/description/price row in the text.
func matchItems(text string) (update, bool) {
	matches := itemRow.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, false
	}
	items := make([]Item, 0, len(matches))
	for _, m := range matches {
		qty, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			qty = 1
		}
		items = append(items, Item{
			Name:      strings.TrimSpace(m[2]),
			Quantity:  qty,
			UnitPrice: parseAmount(m[3]),
		})
	}
	return func(r Result) Result {
		r.Items = items
		return r
	}, true
}

// heuristics run in this order; order within a family is precedence.
var heuristics = []heuristic{
	{name: "vendor", delta: 0.10, match: firstOf(vendorRules...)},
	{name: "date", match: firstOf(dateRules...)},
	{name: "total", delta: 0.15, match: firstOf(totalRules...)},
	{name: "vat", delta: 0.05, match: firstOf(vatRules...)},
	{name: "discount", match: firstOf(discountRules...)},
	{name: "subtotal", match: firstOf(subtotalRules...)},
	{name: "vat_percent", match: firstOf(vatPercentRules...)},
	{name: "tax_id", match: firstOf(taxIDRules...)},
	{name: "phone", match: firstOf(phoneRules...)},
	{name: "reference", match: firstOf(referenceRules...)},
	{name: "items", delta: 0.10, match: matchItems},
}
