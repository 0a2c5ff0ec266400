package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

// ErrUnparsable means no template, including the universal fallback,
// could read the statement.
var ErrUnparsable = errors.New("statement layout not recognised")

// Options tune a single extraction.
type Options struct {
	// Hint names the bank when the caller already knows it. A hint that is
	// not registered is ignored and reported in Extraction.Warnings.
	Hint models.BankType
	// ReferenceDate completes year-less dates when the statement date is
	// missing. Zero means today.
	ReferenceDate time.Time
}

// Extraction is the result of reading one statement.
type Extraction struct {
	Bank         models.BankType         `json:"bank"`
	Template     string                  `json:"template"`
	Score        int                     `json:"score"`
	Balance      BalanceRule             `json:"-"`
	Info         *models.StatementInfo   `json:"info"`
	Transactions []models.RawTransaction `json:"transactions"`
	Warnings     []string                `json:"warnings,omitempty"`
}

// DeclaredCount returns the transaction count printed on the statement.
func (e *Extraction) DeclaredCount() (int, bool) {
	v, ok := e.Info.Get(models.FieldTransactionCount)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// DetectAndExtract identifies the bank layout of the page text and pulls
// out the statement fields and transaction lines. A registered hint skips
// detection. Structural problems such as missing fields are reported in the
// result; only an unreadable layout is an error.
func DetectAndExtract(pages []string, opts Options) (*Extraction, error) {
	text := strings.ReplaceAll(strings.Join(pages, "\n"), "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text", ErrUnparsable)
	}

	var (
		tmpl     *Template
		warnings []string
		sc       int
	)
	if opts.Hint != "" {
		hint := models.BankType(strings.ToLower(strings.TrimSpace(string(opts.Hint))))
		if t, ok := Lookup(hint); ok {
			tmpl = t
			sc = score(t, strings.ToLower(text), strings.Split(text, "\n"))
		} else {
			warnings = append(warnings, fmt.Sprintf("unknown bank hint %q ignored", opts.Hint))
		}
	}
	if tmpl == nil {
		id, s := Detect(text)
		if id != "" {
			tmpl, _ = Lookup(id)
			sc = s
		}
	}

	if tmpl == nil {
		t := universalTemplate
		info, txns := Extract(&t, text, opts.ReferenceDate)
		if len(info.Missing) > 0 || len(txns) == 0 {
			return nil, ErrUnparsable
		}
		return &Extraction{
			Bank:         t.ID,
			Template:     t.Name,
			Balance:      t.Balance,
			Info:         info,
			Transactions: txns,
			Warnings:     warnings,
		}, nil
	}

	info, txns := Extract(tmpl, text, opts.ReferenceDate)
	return &Extraction{
		Bank:         tmpl.ID,
		Template:     tmpl.Name,
		Score:        sc,
		Balance:      tmpl.Balance,
		Info:         info,
		Transactions: txns,
		Warnings:     warnings,
	}, nil
}

// fieldOrder puts the statement date first so later dates can borrow its year.
var fieldOrder = []models.Field{
	models.FieldStatementDate,
	models.FieldCustomerName,
	models.FieldCardNumber,
	models.FieldSortCode,
	models.FieldDueDate,
	models.FieldPreviousBalance,
	models.FieldCreditLimit,
	models.FieldCurrentBalance,
	models.FieldMinimumPayment,
	models.FieldTransactionCount,
	models.FieldTotalDebits,
	models.FieldTotalCredits,
}

// Extract reads fields and transactions from text with a known template.
func Extract(t *Template, text string, ref time.Time) (*models.StatementInfo, []models.RawTransaction) {
	info := extractFields(t, text, ref)
	if d, ok := info.Date(models.FieldStatementDate); ok {
		ref = d
	}
	var opening *decimal.Decimal
	if d, ok := info.Amount(models.FieldPreviousBalance); ok {
		opening = &d
	}
	return info, extractTransactions(t, text, ref, opening)
}

func extractFields(t *Template, text string, ref time.Time) *models.StatementInfo {
	info := &models.StatementInfo{Bank: t.ID, Fields: map[models.Field]string{}}
	for _, f := range fieldOrder {
		for _, pattern := range t.Fields[f] {
			raw, ok := pattern(text)
			if !ok {
				continue
			}
			v, err := normalizeField(t, f, raw, ref)
			if err != nil {
				continue
			}
			info.Fields[f] = v
			if f == models.FieldStatementDate {
				ref, _ = time.Parse(models.DateLayout, v)
			}
			break
		}
	}
	for _, f := range t.Required {
		if _, ok := info.Fields[f]; !ok {
			info.Missing = append(info.Missing, f)
		}
	}
	return info
}

func normalizeField(t *Template, f models.Field, raw string, ref time.Time) (string, error) {
	switch f {
	case models.FieldStatementDate, models.FieldDueDate:
		d, err := normalizeDate(raw, t.DateLayouts, ref)
		if err != nil {
			return "", err
		}
		return d.Format(models.DateLayout), nil
	case models.FieldPreviousBalance, models.FieldCurrentBalance, models.FieldCreditLimit,
		models.FieldMinimumPayment, models.FieldTotalDebits, models.FieldTotalCredits:
		return normalizeFieldAmount(raw)
	case models.FieldTransactionCount:
		return normalizeCount(raw)
	case models.FieldCardNumber:
		return normalizeCardNumber(raw)
	case models.FieldSortCode:
		if !sortCodePattern.MatchString(raw) {
			return "", fmt.Errorf("malformed sort code %q", raw)
		}
		return sortCodePattern.FindString(raw), nil
	default:
		v := strings.Join(strings.Fields(raw), " ")
		if !strings.ContainsAny(strings.ToLower(v), "abcdefghijklmnopqrstuvwxyz") {
			return "", fmt.Errorf("malformed text %q", raw)
		}
		return v, nil
	}
}

// normalizeFieldAmount accepts a trailing CR (credit balance, shown negative)
// or DR marker on statement totals.
func normalizeFieldAmount(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	upper := strings.ToUpper(s)
	neg := false
	switch {
	case strings.HasSuffix(upper, "CR"):
		neg = true
		s = strings.TrimSpace(s[:len(s)-2])
	case strings.HasSuffix(upper, "DR"):
		s = strings.TrimSpace(s[:len(s)-2])
	}
	d, err := ParseAmount(s)
	if err != nil {
		return "", err
	}
	if neg {
		d = d.Neg()
	}
	return d.StringFixed(2), nil
}

func extractTransactions(t *Template, text string, ref time.Time, opening *decimal.Decimal) []models.RawTransaction {
	var (
		txns    []models.RawTransaction
		running = opening
		lastTxn bool
	)
	for i, rawLine := range strings.Split(text, "\n") {
		line := normalizeLine(rawLine)
		if strings.TrimSpace(line) == "" {
			continue
		}
		if containsTransactionHeader(line) || isSummaryLine(line) {
			lastTxn = false
			continue
		}

		if txn, bal, ok := matchLine(t, line, ref, running); ok {
			txn.Line = i + 1
			txns = append(txns, txn)
			if bal != nil {
				running = bal
			}
			lastTxn = true
			continue
		}

		// Wrapped description text carries no amount.
		if t.Continuation && lastTxn && !amountToken.MatchString(line) {
			last := &txns[len(txns)-1]
			last.Description += " " + strings.Join(strings.Fields(line), " ")
			continue
		}
		lastTxn = false
	}
	return txns
}

// matchLine tries the template's line patterns in order. The first pattern
// whose date and amount both normalize wins. The returned balance is the
// running balance printed on the line, if any.
func matchLine(t *Template, line string, ref time.Time, running *decimal.Decimal) (models.RawTransaction, *decimal.Decimal, bool) {
	for _, lp := range t.Lines {
		m := lp.Re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		g := groups(lp.Re, m)

		date, err := normalizeDate(g["date"], t.DateLayouts, ref)
		if err != nil {
			continue
		}
		desc := strings.Join(strings.Fields(g["description"]), " ")
		if desc == "" {
			continue
		}

		var balance *decimal.Decimal
		if b := strings.TrimSpace(g["balance"]); b != "" {
			if d, err := ParseAmount(b); err == nil {
				balance = &d
			}
		}

		amount, dir, ok := resolveSign(t, lp.Re, g, running, balance)
		if !ok {
			continue
		}
		return models.RawTransaction{
			Date:        date,
			Description: desc,
			Amount:      amount,
			Direction:   dir,
			Points:      g["points"],
			ParseMethod: lp.Name,
		}, balance, true
	}
	return models.RawTransaction{}, nil, false
}

func groups(re *regexp.Regexp, m []string) map[string]string {
	out := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(m) {
			out[name] = m[i]
		}
	}
	return out
}

// resolveSign applies the template's sign rule and returns the unsigned
// amount with its direction. Zero amounts are not transactions.
func resolveSign(t *Template, re *regexp.Regexp, g map[string]string, running, balance *decimal.Decimal) (decimal.Decimal, models.Direction, bool) {
	if re.SubexpIndex("debit") >= 0 {
		return columnAmount(g["debit"], g["credit"])
	}

	amount, err := ParseAmount(g["amount"])
	if err != nil || amount.IsZero() {
		return decimal.Zero, "", false
	}

	switch t.Sign {
	case SignSuffix:
		if g["marker"] != "" && strings.EqualFold(strings.TrimSpace(g["marker"]), t.CreditMarker) {
			return amount.Abs(), models.Credit, true
		}
		if amount.IsNegative() {
			return amount.Abs(), models.Credit, true
		}
		return amount, models.Debit, true
	case SignNegative:
		if amount.IsNegative() {
			return amount.Abs(), models.Credit, true
		}
		return amount, models.Debit, true
	default:
		// a single amount on a columns layout: the printed balance says
		// which column it belongs to
		dir, ok := directionByBalance(amount, running, balance)
		return amount, dir, ok
	}
}

// columnAmount reads a debit/credit cell pair. Exactly one cell must hold
// a non-zero amount.
func columnAmount(debitCell, creditCell string) (decimal.Decimal, models.Direction, bool) {
	parse := func(cell string) (decimal.Decimal, bool) {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			return decimal.Zero, false
		}
		d, err := ParseAmount(cell)
		if err != nil || d.IsZero() {
			return decimal.Zero, false
		}
		return d.Abs(), true
	}
	debit, hasDebit := parse(debitCell)
	credit, hasCredit := parse(creditCell)
	switch {
	case hasDebit && !hasCredit:
		return debit, models.Debit, true
	case hasCredit && !hasDebit:
		return credit, models.Credit, true
	}
	return decimal.Zero, "", false
}

// directionByBalance decides debit or credit from the movement of the
// running balance. A line whose printed balance is not running ± amount
// has no direction.
func directionByBalance(amount decimal.Decimal, running, balance *decimal.Decimal) (models.Direction, bool) {
	if running == nil || balance == nil {
		return "", false
	}
	switch {
	case running.Sub(amount).Equal(*balance):
		return models.Debit, true
	case running.Add(amount).Equal(*balance):
		return models.Credit, true
	}
	return "", false
}
