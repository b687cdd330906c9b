package reconcile

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tm-acme-shop/acme-shop-order-reconciler/internal/logging"
)

var priceLogger = logging.NewLoggerV2("price-resolver")

// Unit-flavoured keys come first; total-flavoured keys are divided by quantity.
var unitPriceKeys = []string{
	"unitMinor", "unit_minor", "unitPriceMinor", "unit_price_minor", "priceMinor", "price_minor",
	"unitPrice", "unit_price", "unit_amount", "price", "amount", "cost",
	"totalMinor", "total_minor", "lineTotalMinor", "line_total_minor",
	"lineTotal", "line_total", "subtotal", "total", "amount_total",
}

var lineTotalKeys = []string{
	"totalMinor", "total_minor", "lineTotalMinor", "line_total_minor",
	"lineTotal", "line_total", "subtotal", "total", "amount_total",
}

var (
	totalKeyPattern = regexp.MustCompile(`(?i)total`)
	minorKeyPattern = regexp.MustCompile(`(?i)minor|pence|cents`)
	nonNumeric      = regexp.MustCompile(`[^0-9.,\-]`)
)

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
)

// ToMinor converts a price in any supported representation to integer minor
// units. Integers of 100 or more are taken to be minor units already; anything
// else is treated as major units. Unparseable input yields 0.
func ToMinor(value interface{}) int64 {
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return fromDecimal(decimal.NewFromFloat(v), v == math.Trunc(v))
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return 0
		}
		return fromDecimal(d, !strings.ContainsAny(v.String(), ".eE"))
	case int:
		return fromDecimal(decimal.NewFromInt(int64(v)), true)
	case int64:
		return fromDecimal(decimal.NewFromInt(v), true)
	case string:
		d, integral, ok := parseMoneyString(v)
		if !ok {
			priceLogger.Debug("Unparseable price", logging.Fields{"value": v})
			return 0
		}
		return fromDecimal(d, integral)
	}
	return 0
}

// MinorFromMinorField reads a value that is already expressed in minor units.
func MinorFromMinorField(value interface{}) int64 {
	var d decimal.Decimal
	switch v := value.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		d = decimal.NewFromFloat(v)
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return 0
		}
		d = parsed
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case string:
		parsed, _, ok := parseMoneyString(v)
		if !ok {
			return 0
		}
		d = parsed
	default:
		return 0
	}
	return clampMinor(d.Round(0))
}

func fromDecimal(d decimal.Decimal, integral bool) int64 {
	if integral && d.GreaterThanOrEqual(hundred) {
		return clampMinor(d)
	}
	return clampMinor(d.Mul(hundred).Round(0))
}

// clampMinor converts whole minor units to int64. Negative amounts and
// amounts that do not fit are treated as unparseable.
func clampMinor(d decimal.Decimal) int64 {
	if d.IsNegative() {
		return 0
	}
	if d.GreaterThan(maxMinor) {
		priceLogger.Debug("Price out of range", logging.Fields{"value": d.String()})
		return 0
	}
	return d.IntPart()
}

// mulMinor multiplies a unit price by a quantity, saturating at MaxInt64.
func mulMinor(unit int64, quantity int) int64 {
	if unit <= 0 || quantity <= 0 {
		return 0
	}
	if unit > math.MaxInt64/int64(quantity) {
		return math.MaxInt64
	}
	return unit * int64(quantity)
}

// parseMoneyString strips symbols and resolves comma/dot conventions. A
// string with an explicit decimal separator is always major units.
func parseMoneyString(s string) (decimal.Decimal, bool, bool) {
	cleaned := nonNumeric.ReplaceAllString(s, "")
	if cleaned == "" {
		return decimal.Zero, false, false
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case hasComma && strings.Count(cleaned, ",") > 1:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case hasComma:
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false, false
	}
	return d, !strings.Contains(cleaned, "."), true
}

// priceAt resolves one candidate key to minor units.
func priceAt(raw Raw, key string) (int64, bool) {
	v, ok := lookup(raw, key)
	if !ok || v == nil {
		return 0, false
	}
	var minor int64
	if minorKeyPattern.MatchString(key) {
		minor = MinorFromMinorField(v)
	} else {
		minor = ToMinor(v)
	}
	return minor, minor > 0
}

// echoesOrderTotal reports whether a line-level amount is really the whole
// order total copied onto one of several lines.
func echoesOrderTotal(v int64, lc LineContext) bool {
	return lc.ItemCount > 1 && lc.OrderTotalMinor > 0 && v == lc.OrderTotalMinor
}

// ResolveLinePrice derives the per-unit price and line total of one item.
//
// Unit candidates equal to the order total on a multi-line order are skipped.
// A unit taken from a total-like key is divided by quantity. An explicit line
// total distinct from the order total is authoritative: when it disagrees with
// unit*quantity the unit is back-derived from it, as long as it is not smaller
// than a single unit.
func ResolveLinePrice(raw Raw, quantity int, lc LineContext) (unit, total int64) {
	if quantity < 1 {
		quantity = 1
	}

	for _, key := range unitPriceKeys {
		v, ok := priceAt(raw, key)
		if !ok {
			continue
		}
		if echoesOrderTotal(v, lc) {
			priceLogger.Debug("Rejected unit candidate equal to order total", logging.Fields{"key": key, "value": v})
			continue
		}
		if totalKeyPattern.MatchString(key) {
			unit = roundDiv(v, int64(quantity))
		} else {
			unit = v
		}
		break
	}

	var lineTotal int64
	for _, key := range lineTotalKeys {
		v, ok := priceAt(raw, key)
		if !ok || echoesOrderTotal(v, lc) {
			continue
		}
		lineTotal = v
		break
	}

	switch {
	case lineTotal > 0 && unit == 0:
		return roundDiv(lineTotal, int64(quantity)), lineTotal
	case lineTotal > 0 && (quantity == 1 || lineTotal >= unit):
		if mulMinor(unit, quantity) != lineTotal {
			unit = roundDiv(lineTotal, int64(quantity))
		}
		return unit, lineTotal
	default:
		return unit, mulMinor(unit, quantity)
	}
}

func roundDiv(v, q int64) int64 {
	if q <= 1 {
		return v
	}
	quo, rem := v/q, v%q
	if rem >= q-rem {
		quo++
	}
	return quo
}
