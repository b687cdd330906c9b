// Package reconcile turns order data from several shape-inconsistent producers
// into one canonical, deduplicated list of orders.
//
// Nothing in this package returns an error. Malformed input degrades to
// neutral defaults so the caller always has something to show.
package reconcile

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Raw is one decoded JSON record of unknown shape.
type Raw = map[string]interface{}

// Candidate key lists, in priority order. Dotted keys address nested objects.
var (
	nameKeys      = []string{"name", "title", "product_name", "productName", "treatment", "treatment_name", "product", "item", "description"}
	variationKeys = []string{"variations", "variation", "optionLabel", "option_label", "label", "strength", "dose", "variant_title", "variantTitle", "variant"}
	quantityKeys  = []string{"qty", "quantity", "count", "qty_ordered"}
	skuKeys       = []string{"sku", "SKU", "product_sku", "variant_id", "variantId", "product_id", "productId"}

	topLevelItemKeys = []string{"items", "order_items", "orderItems", "products", "line_items", "lineItems", "lines"}
	metaKeys         = []string{"meta", "metadata", "meta_data"}
)

const maxNestedDepth = 4

// nestedItemKey matches container names searched inside freeform metadata.
var nestedItemKey = regexp.MustCompile(`(?i)items|lines|products|components`)

// PartialLineItem is what FieldExtractor recovers from one raw item record,
// before name/variation cleanup.
type PartialLineItem struct {
	SKU        string
	Name       string
	Variation  string
	Quantity   int
	UnitMinor  int64
	TotalMinor int64
}

// LineContext carries the order-level facts price disambiguation needs.
type LineContext struct {
	OrderTotalMinor int64
	ItemCount       int
}

// Extract reads every logical attribute of a raw item record.
func Extract(raw Raw, lc LineContext) PartialLineItem {
	item := PartialLineItem{
		SKU:       firstString(raw, skuKeys),
		Name:      firstString(raw, nameKeys),
		Variation: firstString(raw, variationKeys),
		Quantity:  firstQuantity(raw),
	}
	item.UnitMinor, item.TotalMinor = ResolveLinePrice(raw, item.Quantity, lc)
	return item
}

// lookup finds key in raw, descending through dotted paths and falling back
// to a case-insensitive match.
func lookup(raw Raw, key string) (interface{}, bool) {
	if raw == nil {
		return nil, false
	}
	if v, ok := raw[key]; ok {
		return v, true
	}
	if head, rest, found := strings.Cut(key, "."); found {
		child, ok := lookup(raw, head)
		if !ok {
			return nil, false
		}
		obj := asObject(child)
		if obj == nil {
			return nil, false
		}
		return lookup(obj, rest)
	}
	for k, v := range raw {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func firstString(raw Raw, keys []string) string {
	s, _ := firstStringKey(raw, keys)
	return s
}

func firstStringKey(raw Raw, keys []string) (string, string) {
	for _, key := range keys {
		v, ok := lookup(raw, key)
		if !ok {
			continue
		}
		if s := textOf(v); s != "" {
			return s, key
		}
	}
	return "", ""
}

func firstQuantity(raw Raw) int {
	for _, key := range quantityKeys {
		v, ok := lookup(raw, key)
		if !ok {
			continue
		}
		if q := intOf(v); q > 0 {
			return q
		}
	}
	return 1
}

// textOf coerces a scalar, a list of labels, or a labelled object to text.
func textOf(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			if s := textOf(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.TrimSpace(strings.Join(t, ", "))
	case map[string]interface{}:
		return firstString(t, []string{"label", "name", "title", "value"})
	default:
		return ""
	}
}

var leadingDigits = regexp.MustCompile(`^\s*(\d+)`)

func intOf(v interface{}) int {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return int(math.Round(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return int(math.Round(f))
	case int:
		return t
	case int64:
		return int(t)
	case string:
		if m := leadingDigits.FindStringSubmatch(t); m != nil {
			n, _ := strconv.Atoi(m[1])
			return n
		}
	}
	return 0
}

// asObject accepts a map or a JSON-encoded object string.
func asObject(v interface{}) Raw {
	switch t := v.(type) {
	case map[string]interface{}:
		return t
	case string:
		s := strings.TrimSpace(t)
		if !strings.HasPrefix(s, "{") {
			return nil
		}
		var obj Raw
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil
		}
		return obj
	}
	return nil
}

// MetaOf returns the order's freeform metadata object, decoding it when it was
// stored as a JSON string.
func MetaOf(order Raw) Raw {
	for _, key := range metaKeys {
		if v, ok := lookup(order, key); ok {
			if obj := asObject(v); obj != nil {
				return obj
			}
		}
	}
	return nil
}

// FindItemRecords locates the item records of an order: first a top-level
// items array, then any items/lines/products/components container nested in
// the order's metadata.
func FindItemRecords(order Raw) []Raw {
	for _, key := range topLevelItemKeys {
		if v, ok := lookup(order, key); ok {
			if records := itemsFrom(v); len(records) > 0 {
				return records
			}
		}
	}
	if meta := MetaOf(order); meta != nil {
		return searchNested(meta, 0)
	}
	return nil
}

func searchNested(obj Raw, depth int) []Raw {
	if depth > maxNestedDepth {
		return nil
	}
	keys := sortedKeys(obj)
	for _, k := range keys {
		if !nestedItemKey.MatchString(k) {
			continue
		}
		if records := itemsFrom(obj[k]); len(records) > 0 {
			return records
		}
	}
	for _, k := range keys {
		if child := asObject(obj[k]); child != nil {
			if records := searchNested(child, depth+1); len(records) > 0 {
				return records
			}
		}
	}
	return nil
}

// itemsFrom understands an array of records, a map of name to quantity, a map
// of id to record, and a delimiter-separated string.
func itemsFrom(v interface{}) []Raw {
	switch t := v.(type) {
	case []interface{}:
		records := make([]Raw, 0, len(t))
		for _, e := range t {
			switch el := e.(type) {
			case map[string]interface{}:
				records = append(records, el)
			case string:
				if r := parseItemString(el); r != nil {
					records = append(records, r)
				}
			}
		}
		return records
	case []map[string]interface{}:
		records := make([]Raw, 0, len(t))
		for _, el := range t {
			records = append(records, el)
		}
		return records
	case map[string]interface{}:
		return itemsFromMap(t)
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
			var decoded interface{}
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return nil
			}
			return itemsFrom(decoded)
		}
		return itemsFromDelimited(s)
	}
	return nil
}

func itemsFromMap(m Raw) []Raw {
	if len(m) == 0 {
		return nil
	}
	if firstString(m, nameKeys) != "" {
		return []Raw{m}
	}
	keys := sortedKeys(m)

	quantities := true
	for _, k := range keys {
		if intOf(m[k]) <= 0 {
			quantities = false
			break
		}
	}
	if quantities {
		records := make([]Raw, 0, len(keys))
		for _, k := range keys {
			records = append(records, Raw{"name": k, "qty": intOf(m[k])})
		}
		return records
	}

	var records []Raw
	for _, k := range keys {
		if rec, ok := m[k].(map[string]interface{}); ok {
			records = append(records, rec)
		}
	}
	return records
}

func itemsFromDelimited(s string) []Raw {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == ',' || r == '•' || r == '·'
	})
	records := make([]Raw, 0, len(parts))
	for _, p := range parts {
		if r := parseItemString(p); r != nil {
			records = append(records, r)
		}
	}
	return records
}

var (
	trailingQty = regexp.MustCompile(`(?i)^(.+?)\s*[x×]\s*(\d+)$`)
	leadingQty  = regexp.MustCompile(`(?i)^(\d+)\s*[x×]\s+(.+)$`)
)

// parseItemString reads "Name", "Name x2" or "2 x Name".
func parseItemString(s string) Raw {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if m := leadingQty.FindStringSubmatch(s); m != nil {
		q, _ := strconv.Atoi(m[1])
		return Raw{"name": strings.TrimSpace(m[2]), "qty": q}
	}
	if m := trailingQty.FindStringSubmatch(s); m != nil {
		q, _ := strconv.Atoi(m[2])
		return Raw{"name": strings.TrimSpace(m[1]), "qty": q}
	}
	return Raw{"name": s, "qty": 1}
}

func sortedKeys(m Raw) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DecodeRaw decodes one JSON object. Malformed input yields an empty record.
func DecodeRaw(data []byte) Raw {
	var raw Raw
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return Raw{}
	}
	return raw
}

// DecodeRawList decodes a JSON array of records, or an envelope object that
// holds one under orders/data/results/items. Malformed input yields nil.
func DecodeRawList(data []byte) []Raw {
	var decoded interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil
	}
	return rawList(decoded)
}

func rawList(v interface{}) []Raw {
	switch t := v.(type) {
	case []interface{}:
		out := make([]Raw, 0, len(t))
		for _, e := range t {
			if rec, ok := e.(map[string]interface{}); ok {
				out = append(out, rec)
			}
		}
		return out
	case map[string]interface{}:
		for _, key := range []string{"orders", "data", "results", "items"} {
			if inner, ok := t[key]; ok {
				return rawList(inner)
			}
		}
	}
	return nil
}
