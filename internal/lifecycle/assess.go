package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/parser"
)

// Outcome is the verdict on an extracted statement.
type Outcome struct {
	Action Action // ActionValidate or ActionFail
	Reason string
}

// OK reports whether the statement may be validated.
func (o Outcome) OK() bool { return o.Action == ActionValidate }

// Totals are the parsed sums used in reconciliation.
type Totals struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

// Sum adds up the debit and credit magnitudes of txns.
func Sum(txns []models.RawTransaction) Totals {
	var t Totals
	for _, txn := range txns {
		if txn.Direction == models.Credit {
			t.Credits = t.Credits.Add(txn.Amount)
		} else {
			t.Debits = t.Debits.Add(txn.Amount)
		}
	}
	return t
}

// Assess decides whether an extraction can be validated. Checks run in a
// fixed order and the first failure is reported: unreadable layout,
// mandatory fields, declared count, declared totals, balance round trip,
// empty statement.
func Assess(ext *parser.Extraction, extractErr error) Outcome {
	if extractErr != nil {
		if errors.Is(extractErr, parser.ErrUnparsable) {
			return fail("unparsable: %v", extractErr)
		}
		return fail("extraction failed: %v", extractErr)
	}
	if ext == nil || ext.Info == nil {
		return fail("unparsable: no extraction result")
	}

	if len(ext.Info.Missing) > 0 {
		names := make([]string, len(ext.Info.Missing))
		for i, f := range ext.Info.Missing {
			names[i] = string(f)
		}
		return fail("missing mandatory fields: %s", strings.Join(names, ", "))
	}

	parsed := len(ext.Transactions)
	declared, hasDeclared := ext.DeclaredCount()
	if hasDeclared && declared != parsed {
		return fail("transaction count mismatch: statement declares %d, parsed %d", declared, parsed)
	}

	totals := Sum(ext.Transactions)
	if v, ok := ext.Info.Amount(models.FieldTotalDebits); ok && !v.Equal(totals.Debits) {
		return fail("total debits mismatch: statement declares %s, parsed %s", v.StringFixed(2), totals.Debits.StringFixed(2))
	}
	if v, ok := ext.Info.Amount(models.FieldTotalCredits); ok && !v.Equal(totals.Credits) {
		return fail("total credits mismatch: statement declares %s, parsed %s", v.StringFixed(2), totals.Credits.StringFixed(2))
	}

	prev, okPrev := ext.Info.Amount(models.FieldPreviousBalance)
	curr, okCurr := ext.Info.Amount(models.FieldCurrentBalance)
	if okPrev && okCurr {
		expected := RoundTrip(ext.Balance, prev, totals)
		if !expected.Equal(curr.Round(2)) {
			return fail("balance mismatch: previous %s, debits %s, credits %s give %s, statement shows %s",
				prev.StringFixed(2), totals.Debits.StringFixed(2), totals.Credits.StringFixed(2),
				expected.StringFixed(2), curr.StringFixed(2))
		}
	}

	if parsed == 0 && !(hasDeclared && declared == 0) {
		return fail("no transactions found")
	}

	return Outcome{Action: ActionValidate}
}

// RoundTrip computes the closing balance implied by the opening balance
// and the parsed totals under the template's balance rule.
func RoundTrip(rule parser.BalanceRule, previous decimal.Decimal, t Totals) decimal.Decimal {
	if rule == parser.BalanceAccount {
		return previous.Sub(t.Debits).Add(t.Credits).Round(2)
	}
	return previous.Add(t.Debits).Sub(t.Credits).Round(2)
}

func fail(format string, args ...any) Outcome {
	return Outcome{Action: ActionFail, Reason: fmt.Sprintf(format, args...)}
}
