package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Shared pattern toolkit. These are heuristic by design: false positives and
// negatives are acceptable product behavior, not defects.
var (
	EmailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	// IdentifierPattern matches business references like "order-12345",
	// "INVOICE_2024-001" or "ticket 98765".
	IdentifierPattern = regexp.MustCompile(`(?i)\b(order|invoice|ticket|id)[\s_-]?#?([0-9][0-9a-zA-Z-]*)`)

	// AmountPattern matches monetary amounts with a leading symbol or a
	// trailing currency word.
	AmountPattern = regexp.MustCompile(`(?i)(?:[$€£]\s?[0-9][0-9.,]*)|(?:[0-9][0-9.,]*\s?(?:usd|eur|gbp|dollars?|euros?|pounds?))`)

	PhonePattern = regexp.MustCompile(`\+?[0-9][0-9\s().-]{7,}[0-9]`)

	DatePattern = regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|\d{1,2}\.\d{1,2}\.\d{2,4})\b`)

	// CapitalizedNamePattern matches adjacent capitalized word pairs, a
	// coarse proxy for person names.
	CapitalizedNamePattern = regexp.MustCompile(`\b[A-Z][a-z]+\s+[A-Z][a-z]+\b`)
)

// ParseAmount converts a matched monetary string to a positive float.
// Returns false for unparseable or non-positive values.
func ParseAmount(raw string) (float64, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	for _, junk := range []string{"$", "€", "£", "usd", "eur", "gbp", "dollars", "dollar", "euros", "euro", "pounds", "pound", " "} {
		cleaned = strings.ReplaceAll(cleaned, junk, "")
	}

	// "1.234,56" and "1,234.56" both appear in the wild: whichever separator
	// comes last is the decimal one.
	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case lastComma >= 0 && lastDot >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case lastComma >= 0:
		// A lone comma with exactly two trailing digits reads as decimal.
		if len(cleaned)-lastComma-1 == 2 {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}
