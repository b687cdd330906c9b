package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_Defaults(t *testing.T) {
	p := Extract(Raw{}, LineContext{})

	assert.Equal(t, 1, p.Quantity)
	assert.Equal(t, int64(0), p.UnitMinor)
	assert.Empty(t, p.Variation)
}

func TestExtract_Synonyms(t *testing.T) {
	tests := []struct {
		name              string
		raw               Raw
		expectedName      string
		expectedVariation string
		expectedQty       int
	}{
		{"snake case", Raw{"product_name": "Wegovy", "variant_title": "1mg", "quantity": float64(2)}, "Wegovy", "1mg", 2},
		{"camel case", Raw{"productName": "Wegovy", "optionLabel": "1mg", "qty": "3"}, "Wegovy", "1mg", 3},
		{"treatment and dose", Raw{"treatment": "Mounjaro", "dose": "5mg"}, "Mounjaro", "5mg", 1},
		{"strength", Raw{"title": "Saxenda", "strength": "6mg/ml"}, "Saxenda", "6mg/ml", 1},
		{"plural variations list", Raw{"name": "Mounjaro", "variations": []interface{}{"7.5mg"}}, "Mounjaro", "7.5mg", 1},
		{"variation object", Raw{"name": "Mounjaro", "variation": map[string]interface{}{"label": "10mg"}}, "Mounjaro", "10mg", 1},
		{"case-insensitive key", Raw{"Name": "Ozempic", "QTY": float64(1)}, "Ozempic", "", 1},
		{"zero quantity defaults", Raw{"name": "Swabs", "qty": float64(0)}, "Swabs", "", 1},
		{"malformed quantity defaults", Raw{"name": "Swabs", "qty": "lots"}, "Swabs", "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Extract(tt.raw, LineContext{})
			assert.Equal(t, tt.expectedName, p.Name)
			assert.Equal(t, tt.expectedVariation, p.Variation)
			assert.Equal(t, tt.expectedQty, p.Quantity)
		})
	}
}

func TestFindItemRecords_TopLevel(t *testing.T) {
	order := Raw{"order_items": []interface{}{
		map[string]interface{}{"name": "Mounjaro"},
		map[string]interface{}{"name": "Needles"},
	}}

	records := FindItemRecords(order)

	require.Len(t, records, 2)
	assert.Equal(t, "Needles", records[1]["name"])
}

func TestFindItemRecords_NestedMeta(t *testing.T) {
	tests := []struct {
		name     string
		order    Raw
		expected []string
	}{
		{
			name: "array of records in meta",
			order: Raw{"meta": map[string]interface{}{
				"lines": []interface{}{map[string]interface{}{"name": "Wegovy 1mg"}},
			}},
			expected: []string{"Wegovy 1mg"},
		},
		{
			name:     "json-encoded meta string",
			order:    Raw{"meta": `{"cart":{"products":[{"name":"Mounjaro 5mg"}]}}`},
			expected: []string{"Mounjaro 5mg"},
		},
		{
			name: "map of name to quantity",
			order: Raw{"metadata": map[string]interface{}{
				"basket_items": map[string]interface{}{"Swabs": float64(2), "Needles": float64(1)},
			}},
			expected: []string{"Needles", "Swabs"},
		},
		{
			name:     "delimited string",
			order:    Raw{"meta": map[string]interface{}{"components": "Mounjaro 2.5mg\nNeedles • Sharps Bin, Swabs"}},
			expected: []string{"Mounjaro 2.5mg", "Needles", "Sharps Bin", "Swabs"},
		},
		{
			name:     "quantity markers in strings",
			order:    Raw{"meta": map[string]interface{}{"items": "Wegovy 0.25mg x2 · 3 x Swabs"}},
			expected: []string{"Wegovy 0.25mg", "Swabs"},
		},
		{
			name:     "json array string under items key",
			order:    Raw{"meta": map[string]interface{}{"items": `[{"title":"Saxenda"}]`}},
			expected: []string{"Saxenda"},
		},
		{
			name:     "no container",
			order:    Raw{"meta": map[string]interface{}{"note": "hello"}},
			expected: nil,
		},
		{
			name:     "malformed meta string",
			order:    Raw{"meta": `{"items": [`},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := FindItemRecords(tt.order)
			var names []string
			for _, r := range records {
				names = append(names, firstString(r, nameKeys))
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestParseItemString_Quantities(t *testing.T) {
	assert.Equal(t, Raw{"name": "Wegovy 0.25mg", "qty": 2}, parseItemString("Wegovy 0.25mg x2"))
	assert.Equal(t, Raw{"name": "Swabs", "qty": 3}, parseItemString("3 x Swabs"))
	assert.Equal(t, Raw{"name": "Needles", "qty": 1}, parseItemString(" Needles "))
	assert.Nil(t, parseItemString("  "))
}

func TestDecodeRaw_Malformed(t *testing.T) {
	assert.Equal(t, Raw{}, DecodeRaw([]byte("{not json")))
	assert.Equal(t, Raw{}, DecodeRaw([]byte("null")))
}

func TestDecodeRawList(t *testing.T) {
	assert.Len(t, DecodeRawList([]byte(`[{"id":"A"},{"id":"B"},3]`)), 2)
	assert.Len(t, DecodeRawList([]byte(`{"data":{"orders":[{"id":"A"}]}}`)), 1)
	assert.Nil(t, DecodeRawList([]byte(`oops`)))
}
