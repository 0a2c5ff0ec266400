package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrBadAmount is returned for amount strings that do not normalize.
	ErrBadAmount = errors.New("malformed amount")
	// ErrBadDate is returned for date strings no layout accepts.
	ErrBadDate = errors.New("malformed date")
)

// Date layouts tried after a template's own layouts.
// Layouts without a year are completed from the reference date.
var fallbackDateLayouts = []string{
	"2006-01-02",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2 Jan 2006",
	"2 January 2006",
	"2-Jan-2006",
	"2Jan2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 06",
	"2-Jan-06",
	"2/1/06",
	"2 Jan",
	"2Jan",
	"2 January",
	"Jan 2",
	"2/1",
}

var plainAmount = regexp.MustCompile(`^-?\d+(?:\.\d{1,2})?$`)

// ParseAmount converts a statement amount like "RM 1,234.56", "(25.00)" or
// "£1,234.56" into a decimal. Parentheses and a trailing minus mean negative.
// More than two fractional digits is rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	raw := s
	s = strings.TrimSpace(s)
	for _, sym := range []string{"MYR", "RM", "£", "$", "€", ",", " ", "\u00a0", "\u200b"} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.ReplaceAll(strings.ReplaceAll(s, "myr", ""), "rm", "")

	neg := false
	if strings.HasPrefix(s, "(") || strings.HasSuffix(s, ")") {
		if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrBadAmount, raw)
		}
		neg = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		neg = !neg
		s = strings.TrimSuffix(s, "-")
	}
	if !plainAmount.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrBadAmount, raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrBadAmount, raw)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// normalizeDate parses s with the given layouts, then the fallbacks.
// Year-less layouts take the reference year, or the previous year when the
// month is after the reference month (a December purchase on a January statement).
func normalizeDate(s string, layouts []string, ref time.Time) (time.Time, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrBadDate)
	}
	try := func(list []string) (time.Time, bool) {
		for _, layout := range list {
			t, err := time.Parse(layout, s)
			if err != nil {
				continue
			}
			if !hasYear(layout) {
				if t, err = withReferenceYear(t, ref); err != nil {
					continue
				}
			} else if t.Year() < 100 {
				continue
			}
			return t, true
		}
		return time.Time{}, false
	}
	if t, ok := try(layouts); ok {
		return t, nil
	}
	if t, ok := try(fallbackDateLayouts); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, s)
}

func hasYear(layout string) bool {
	return strings.Contains(layout, "2006") || strings.Contains(layout, "06")
}

// withReferenceYear places a year-less date in the reference year. A day
// that does not exist in that year, such as 29 February, is rejected rather
// than rolled into the next month.
func withReferenceYear(t, ref time.Time) (time.Time, error) {
	if ref.IsZero() {
		ref = time.Now().UTC()
	}
	year := ref.Year()
	if t.Month() > ref.Month() {
		year--
	}
	d := time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if d.Month() != t.Month() || d.Day() != t.Day() {
		return time.Time{}, fmt.Errorf("%w: %d has no %d %s", ErrBadDate, year, t.Day(), t.Month())
	}
	return d, nil
}

// normalizeLine cleans PDF artefacts without touching tab cell separators.
func normalizeLine(line string) string {
	line = strings.ReplaceAll(line, "\u200b", "")
	line = strings.ReplaceAll(line, "\u00a0", " ")
	return strings.Trim(line, " \r")
}

var (
	accountNumberPattern = regexp.MustCompile(`\b(\d{8})\b`)
	sortCodePattern      = regexp.MustCompile(`\b(\d{2}-\d{2}-\d{2})\b`)
	cardNumberValue      = regexp.MustCompile(`^[0-9Xx*]{4,20}$`)
	countValue           = regexp.MustCompile(`^\d{1,5}$`)
	amountToken          = regexp.MustCompile(`\d\.\d{2}\b`)
)

// findAccountNumber finds a bare 8 digit account number.
func findAccountNumber(text string) (string, bool) {
	m := accountNumberPattern.FindString(text)
	return m, m != ""
}

// findSortCode finds a UK sort code (XX-XX-XX).
func findSortCode(text string) (string, bool) {
	m := sortCodePattern.FindString(text)
	return m, m != ""
}

func normalizeCardNumber(s string) (string, error) {
	s = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))
	if !cardNumberValue.MatchString(s) {
		return "", fmt.Errorf("malformed card or account number %q", s)
	}
	return strings.ToUpper(s), nil
}

func normalizeCount(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !countValue.MatchString(s) {
		return "", fmt.Errorf("malformed count %q", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(n), nil
}

func containsTransactionHeader(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "date") &&
		(strings.Contains(lower, "description") || strings.Contains(lower, "transaction") ||
			strings.Contains(lower, "details") || strings.Contains(lower, "paid")) &&
		(strings.Contains(lower, "amount") || strings.Contains(lower, "paid") ||
			strings.Contains(lower, "balance") || strings.Contains(lower, "money"))
}

var summaryPrefixes = []string{
	"opening balance", "closing balance", "previous balance", "current balance",
	"new balance", "balance b/f", "balance c/f", "balance brought forward",
	"balance carried forward", "total", "minimum payment", "credit limit",
	"statement date", "payment due", "statement period", "page ", "continued",
}

// isSummaryLine reports lines that restate statement totals rather than
// record a transaction.
func isSummaryLine(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	for _, kw := range summaryPrefixes {
		if strings.HasPrefix(lower, kw) {
			return true
		}
	}
	return false
}
