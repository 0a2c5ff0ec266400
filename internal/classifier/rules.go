// Package classifier assigns every statement transaction to an
// ownership/category bucket.
package classifier

import (
	"regexp"
	"strings"
	"time"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

// Account is the statement context a transaction is classified in.
type Account struct {
	CustomerID string
	Holder     models.Holder
	// PeriodEnd bounds which advance transfers a payment may draw down.
	PeriodEnd time.Time
	// SignAssumed marks statements read without a bank layout, whose credit
	// convention is a guess. Their credits are never offered to the ledger.
	SignAssumed bool
}

// Rule names which classification rule fired.
type Rule string

const (
	RuleSupplier Rule = "supplier"
	RulePayment  Rule = "payment"
	RuleFee      Rule = "fee"
	RuleDefault  Rule = "default"
	RuleExisting Rule = "existing"
)

// Decision is the outcome of the pure classification rules. A payment
// decision carries CategoryOwnerPayment until an allocation succeeds.
type Decision struct {
	Category models.Category
	Rule     Rule
	Supplier string
	// Allocate is set when the ledger should try to match the payment.
	Allocate bool
}

var (
	paymentVocabulary = regexp.MustCompile(`(?i)\b(?:PAYMENTS?|PYMT|PAYMT|PMT|RECEIVED|THANK\s+YOU|BAYARAN|DUITNOW|IBG|GIRO)\b`)
	feeVocabulary     = regexp.MustCompile(`(?i)\b(?:FEES?|INTEREST|CHARGES?|FINANCE\s+CHG|LATE|SST|SERVICE\s+TAX|STAMP\s+DUTY|CAJ|FAEDAH|PENALTY)\b`)
)

// Decide applies the rules in order: supplier, payment, fee, default.
// A supplier match wins even when the description also reads as a payment.
func Decide(txn models.Transaction, acct Account, allowlist []string) Decision {
	gz := acct.Holder == models.HolderGZ

	if !txn.Amount.IsZero() {
		if name, ok := matchSupplier(txn.Description, allowlist); ok {
			return Decision{Category: pick(gz, models.CategorySupplierGZ, models.CategorySupplierOwner), Rule: RuleSupplier, Supplier: name}
		}
	}

	// Only money flowing back to the card is a payment. A debit worded like
	// a payment (autopay, card payment) is spend and falls through.
	credit := txn.Direction == models.Credit || txn.Amount.IsNegative()
	if credit && (txn.Amount.IsNegative() || paymentVocabulary.MatchString(txn.Description)) {
		return Decision{Category: models.CategoryOwnerPayment, Rule: RulePayment, Allocate: !acct.SignAssumed}
	}

	if feeVocabulary.MatchString(txn.Description) {
		return Decision{Category: pick(gz, models.CategoryFeeGZ, models.CategoryFeeOwner), Rule: RuleFee}
	}

	return Decision{Category: pick(gz, models.CategoryExpenseGZ, models.CategoryExpenseOwner), Rule: RuleDefault}
}

// matchSupplier reports the first allowlisted name contained in desc,
// compared case-insensitively.
func matchSupplier(desc string, allowlist []string) (string, bool) {
	upper := strings.ToUpper(desc)
	for _, name := range allowlist {
		n := strings.ToUpper(strings.TrimSpace(name))
		if n != "" && strings.Contains(upper, n) {
			return name, true
		}
	}
	return "", false
}

func pick(gz bool, gzCategory, ownerCategory models.Category) models.Category {
	if gz {
		return gzCategory
	}
	return ownerCategory
}
