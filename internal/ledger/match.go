package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

// MatchKind says how a payment was matched to a transfer.
type MatchKind string

const (
	MatchNone    MatchKind = "none"
	MatchExact   MatchKind = "exact"
	MatchPartial MatchKind = "partial"
)

// SelectTransfer picks the transfer a payment should draw down. Candidates
// must already be in FIFO order. An exact remaining-balance match wins over
// an earlier transfer that merely covers the payment. A payment no single
// transfer can cover matches nothing and is never split.
func SelectTransfer(amount decimal.Decimal, candidates []*models.AdvanceTransfer) (int, MatchKind) {
	amount = amount.Abs().Round(2)
	if !amount.IsPositive() {
		return -1, MatchNone
	}
	for i, t := range candidates {
		if t.RemainingBalance.Round(2).Equal(amount) {
			return i, MatchExact
		}
	}
	for i, t := range candidates {
		if t.RemainingBalance.Round(2).GreaterThanOrEqual(amount) {
			return i, MatchPartial
		}
	}
	return -1, MatchNone
}

// PeriodEnd returns the last day of a YYYY-MM statement period.
func PeriodEnd(period string) (t time.Time, ok bool) {
	start, err := time.Parse("2006-01", period)
	if err != nil {
		return time.Time{}, false
	}
	return start.AddDate(0, 1, -1), true
}
