package fetcher

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"pricetracker/internal/models"
)

var (
	errNoDigits       = errors.New("no digits in price text")
	errNegative       = errors.New("negative amount")
	errMultipleAmount = errors.New("more than one amount in price text")
)

// ParsePrice extracts a non-negative amount from displayed price text.
// Only the first run of digits and separators is read, so currency text
// such as "Rs." never contributes a separator. Among '.' and ',' the last
// separator is the decimal point when at most two digits follow it; every
// other separator is grouping. "₹1,234.50" → 1234.50, "1.234,5" → 1234.50,
// "12,345" → 12345.00. A second amount after the first is rejected.
func ParsePrice(text string) (decimal.Decimal, error) {
	runes := []rune(text)
	first := -1
	for i, r := range runes {
		if isDigit(r) {
			first = i
			break
		}
	}
	if first < 0 {
		return decimal.Zero, NewParseError(text, errNoDigits)
	}

	start := first
	if start > 0 && isSeparator(runes[start-1]) && (start == 1 || unicode.IsSpace(runes[start-2])) {
		start--
	}
	if negativePrefix(runes[:start]) {
		return decimal.Zero, NewParseError(text, errNegative)
	}

	end := first
	for end < len(runes) && (isDigit(runes[end]) || isSeparator(runes[end])) {
		end++
	}
	for _, r := range runes[end:] {
		if isDigit(r) {
			return decimal.Zero, NewParseError(text, errMultipleAmount)
		}
	}

	run := string(runes[start:end])
	s := strings.TrimRight(run, ".,")
	trailingSep := len(s) < len(run)

	intPart, fracPart := s, ""
	if !trailingSep {
		if i := strings.LastIndexAny(s, ".,"); i >= 0 && len(s)-i-1 <= 2 {
			intPart, fracPart = s[:i], s[i+1:]
		}
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}

	normalized := intPart
	if fracPart != "" {
		normalized += "." + fracPart
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, NewParseError(text, err)
	}
	return models.NormalizePrice(d), nil
}

// negativePrefix reports whether a minus sign precedes the amount, looking
// back over whitespace and currency text such as "₹" or "Rs.".
func negativePrefix(prefix []rune) bool {
	for i := len(prefix) - 1; i >= 0; i-- {
		r := prefix[i]
		switch {
		case r == '-' || r == '−':
			return true
		case unicode.IsSpace(r), unicode.Is(unicode.Sc, r), unicode.IsLetter(r), r == '.':
			continue
		default:
			return false
		}
	}
	return false
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isSeparator(r rune) bool { return r == '.' || r == ',' }
