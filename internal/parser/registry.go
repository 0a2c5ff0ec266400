package parser

import (
	"regexp"
	"strings"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

// SignRule says how a template marks money flowing back to the card or account.
type SignRule int

const (
	// SignColumns: separate debit and credit columns.
	SignColumns SignRule = iota
	// SignSuffix: a trailing marker (usually "CR") flags credits.
	SignSuffix
	// SignNegative: credits are printed negative or in parentheses.
	SignNegative
)

func (r SignRule) String() string {
	switch r {
	case SignColumns:
		return "columns"
	case SignSuffix:
		return "suffix"
	case SignNegative:
		return "negative"
	}
	return "unknown"
}

// BalanceRule selects the round-trip identity used in reconciliation.
type BalanceRule int

const (
	// BalanceCard: previous + debits - credits = current.
	BalanceCard BalanceRule = iota
	// BalanceAccount: opening - debits + credits = closing.
	BalanceAccount
)

// Anchor is a phrase that identifies a bank's statements.
type Anchor struct {
	Phrase string
	Weight int
}

// FieldPattern pulls one raw value out of the statement text.
type FieldPattern func(text string) (string, bool)

// LinePattern matches one transaction line. Recognised group names are
// date, post, description, amount, debit, credit, balance, marker and points.
type LinePattern struct {
	Name string
	Re   *regexp.Regexp
}

// Template describes one bank layout.
type Template struct {
	ID           models.BankType
	Name         string
	Anchors      []Anchor
	DateLayouts  []string
	Sign         SignRule
	CreditMarker string
	Balance      BalanceRule
	Required     []models.Field
	Fields       map[models.Field][]FieldPattern
	Lines        []LinePattern
	// Continuation appends wrapped description lines to the previous transaction.
	Continuation bool
}

// MinScore is the lowest detection score that selects a template.
const MinScore = 3

var registry = []Template{
	maybankTemplate,
	cimbTemplate,
	publicBankTemplate,
	rhbTemplate,
	hongLeongTemplate,
	ambankTemplate,
	uobTemplate,
	ocbcTemplate,
	hsbcTemplate,
	standardCharteredTemplate,
	allianceTemplate,
	affinTemplate,
	citibankTemplate,
	barclaysTemplate,
	metroTemplate,
}

// Templates returns the registered templates in declaration order.
// The universal fallback is not included.
func Templates() []Template {
	out := make([]Template, len(registry))
	copy(out, registry)
	return out
}

// Lookup returns the template for id, including the universal fallback.
func Lookup(id models.BankType) (*Template, bool) {
	if id == models.BankUniversal {
		t := universalTemplate
		return &t, true
	}
	for i := range registry {
		if registry[i].ID == id {
			t := registry[i]
			return &t, true
		}
	}
	return nil, false
}

// Field pattern constructors.

func labelAlternation(labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(l), " ", `[ \t]+`)
	}
	return strings.Join(quoted, "|")
}

// label matches "Label: value" where the label starts a line or a column
// and the value runs to the end of the line or the next column gap.
func label(labels ...string) FieldPattern {
	re := regexp.MustCompile(`(?im)(?:^|\t|[ \t]{2,})[ \t]*(?:` + labelAlternation(labels) +
		`)[ \t]*:?[ \t]*([^\t\n]+?)[ \t]*(?:\t|[ \t]{2,}|$)`)
	return regexpField(re)
}

// below matches a label alone on its line with the value on the next line.
func below(labels ...string) FieldPattern {
	re := regexp.MustCompile(`(?im)^[ \t]*(?:` + labelAlternation(labels) +
		`)[ \t]*:?[ \t]*\n[ \t]*([^\t\n]+?)[ \t]*$`)
	return regexpField(re)
}

// periodEnd takes the closing date of a "period ... to DATE" line.
func periodEnd() FieldPattern {
	re := regexp.MustCompile(`(?im)(?:statement period|for the period|period)[^\n]*?\bto\b[ \t]*([^\t\n]+?)[ \t]*$`)
	return regexpField(re)
}

func regexpField(re *regexp.Regexp) FieldPattern {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil || strings.TrimSpace(m[1]) == "" {
			return "", false
		}
		return strings.TrimSpace(m[1]), true
	}
}

// Line pattern constructors.

const (
	dateDayMon      = `\d{1,2}\s?[A-Za-z]{3}`
	dateMonDay      = `[A-Za-z]{3}\s\d{1,2}`
	dateSlashDM     = `\d{1,2}/\d{1,2}`
	dateSlashDMY    = `\d{1,2}/\d{1,2}/\d{2,4}`
	dateDashDMY     = `\d{1,2}-\d{1,2}-\d{2,4}`
	dateDayMonYear  = `\d{1,2}\s[A-Za-z]{3}\s\d{2,4}`
	amountUnsigned  = `[\d,]+\.\d{2}`
	amountSigned    = `\(?-?[\d,]+\.\d{2}\)?-?`
	descriptionBody = `(?P<description>.+?)`
)

// suffixLine builds "[date] [post] description amount [marker]". When
// postFirst is set the posting date precedes the transaction date.
func suffixLine(name, date, marker string, postFirst bool) LinePattern {
	dates := `(?P<date>` + date + `)(?:\s+(?P<post>` + date + `))?`
	if postFirst {
		dates = `(?:(?P<post>` + date + `)\s+)?(?P<date>` + date + `)`
	}
	return LinePattern{
		Name: name,
		Re: regexp.MustCompile(`(?i)^` + dates + `\s+` + descriptionBody +
			`\s+(?P<amount>` + amountUnsigned + `)(?:\s*(?P<marker>` + regexp.QuoteMeta(marker) + `))?$`),
	}
}

// negativeLine builds "date description signed-amount", optionally
// followed by a loyalty points column.
func negativeLine(name, date string, points bool) LinePattern {
	tail := `$`
	if points {
		tail = `\s+(?P<points>\d+)(?:\s*pts)?$`
	}
	return LinePattern{
		Name: name,
		Re: regexp.MustCompile(`(?i)^(?P<date>` + date + `)\s+` + descriptionBody +
			`\s+(?P<amount>` + amountSigned + `)` + tail),
	}
}

// tabColumns matches tab separated "date, description, debit, credit[, balance]" rows.
var tabColumns = LinePattern{
	Name: "tab-separated",
	Re:   regexp.MustCompile(`^(?P<date>[^\t]+)\t(?P<description>[^\t]+)\t(?P<debit>[^\t]*)\t(?P<credit>[^\t]*)(?:\t(?P<balance>[^\t]*))?$`),
}

// runningBalanceLine matches "date description amount balance"; the
// direction comes from the balance movement.
func runningBalanceLine(name, date string) LinePattern {
	return LinePattern{
		Name: name,
		Re: regexp.MustCompile(`(?i)^(?P<date>` + date + `)\s+` + descriptionBody +
			`\s+(?P<amount>` + amountUnsigned + `)\s+(?P<balance>-?` + amountUnsigned + `)$`),
	}
}
