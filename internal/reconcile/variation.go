package reconcile

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// variationRule pulls a variation label off the tail of a combined product name.
// These rules are approximate: they only run when the record carries no
// structured variation field.
type variationRule struct {
	name    string
	pattern *regexp.Regexp
}

// Ordered by priority. Group 1 is the base, group 2 the variation.
var variationRules = []variationRule{
	{
		name:    "dose",
		pattern: regexp.MustCompile(`(?i)^(.+?)\s+(\d+(?:[.,]\d+)?\s?(?:mg|mcg|ml|units?)\b.*)$`),
	},
	{
		name:    "pack",
		pattern: regexp.MustCompile(`(?i)^(.+?)\s+((?:starter\s+pack|maintenance\s+plan|needles?|swabs?|sharps\s+bin|pack\s+of\s+\d+)\b.*)$`),
	},
	{
		name:    "accessory",
		pattern: regexp.MustCompile(`(?i)^(.+?)\s+((?:novofine|bd\s+micro-?fine|clickfine|omnican)\b.*)$`),
	},
}

// Split separates a combined name such as "Mounjaro 2.5mg Starter Pack" into
// base "Mounjaro" and variation "2.5mg Starter Pack". When no rule matches the
// variation is empty and base is the input unchanged.
func Split(rawName string) (base, variation string) {
	trimmed := strings.TrimSpace(rawName)
	for _, rule := range variationRules {
		m := rule.pattern.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		base = strings.TrimSpace(m[1])
		variation = strings.TrimSpace(m[2])
		if base == "" || variation == "" {
			continue
		}
		return base, variation
	}
	return rawName, ""
}

const maxVariationLength = 48

var whitespaceRun = regexp.MustCompile(`\s+`)

const leadingPunctuation = " \t-–—:;,.·•/|"

// CleanVariation tidies a known variation label: it drops a repeated base
// name, keeps only the first segment when several items were run together,
// strips leading punctuation, collapses whitespace and caps the length.
func CleanVariation(variation, base string) string {
	v := variation
	if b := strings.TrimSpace(base); b != "" {
		v = replaceFold(v, b, " ")
	}
	if i := firstSeparator(v); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimLeft(v, leadingPunctuation)
	v = strings.TrimSpace(whitespaceRun.ReplaceAllString(v, " "))
	v = strings.TrimRight(v, leadingPunctuation)
	return truncate(v, maxVariationLength)
}

// firstSeparator finds the first comma, bullet or en-dash. A comma between
// two digits is a decimal comma ("2,5mg") and does not count.
func firstSeparator(s string) int {
	var prev rune
	for i, r := range s {
		switch r {
		case '•', '·', '–':
			return i
		case ',':
			next, _ := utf8.DecodeRuneInString(s[i+1:])
			if !(unicode.IsDigit(prev) && unicode.IsDigit(next)) {
				return i
			}
		}
		prev = r
	}
	return -1
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}

// defaultItemName stands in when stripping the variation leaves no name.
const defaultItemName = "Item"

// stripVariation removes the variation text from name, so the two are never
// stored concatenated.
func stripVariation(name, variation string) string {
	if variation == "" || !containsFold(name, variation) {
		return name
	}
	stripped := replaceFold(name, variation, " ")
	stripped = strings.Trim(whitespaceRun.ReplaceAllString(stripped, " "), leadingPunctuation)
	if stripped == "" {
		return defaultItemName
	}
	return stripped
}

// replaceFold replaces every case-insensitive occurrence of sub in s.
func replaceFold(s, sub, repl string) string {
	n := utf8.RuneCountInString(sub)
	if n == 0 {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); {
		j, k := i, 0
		for k < n && j < len(s) {
			_, size := utf8.DecodeRuneInString(s[j:])
			j += size
			k++
		}
		if k == n && strings.EqualFold(s[i:j], sub) {
			b.WriteString(repl)
			i = j
			continue
		}
		_, size := utf8.DecodeRuneInString(s[i:])
		b.WriteString(s[i : i+size])
		i += size
	}
	return b.String()
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// SplitNameVariation applies the explicit variation when present and the
// heuristic split otherwise, returning a name that never contains its variation.
func SplitNameVariation(name, variation string) (string, string) {
	name = strings.TrimSpace(name)
	if variation != "" {
		variation = CleanVariation(variation, name)
	}
	if variation == "" {
		if base, v := Split(name); v != "" {
			name, variation = base, CleanVariation(v, base)
		}
	}
	name = stripVariation(name, variation)
	if variation != "" && containsFold(name, variation) {
		variation = ""
	}
	return name, variation
}
