package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/repository"
)

// Drift is a transfer whose cached remaining balance disagrees with the
// balance derived from its allocation links.
type Drift struct {
	TransferID string          `json:"transferId"`
	CustomerID string          `json:"customerId"`
	Amount     decimal.Decimal `json:"amount"`
	Allocated  decimal.Decimal `json:"allocated"`
	Cached     decimal.Decimal `json:"cached"`
	Derived    decimal.Decimal `json:"derived"`
}

// OverAllocated reports whether the links exceed the transfer amount.
func (d Drift) OverAllocated() bool { return d.Derived.IsNegative() }

// Verify re-derives every transfer's remaining balance from its links and
// reports the ones that drifted. An empty customerID checks all customers.
func (l *Ledger) Verify(ctx context.Context, customerID string) ([]Drift, error) {
	transfers, err := l.store.ListTransfers(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("ledger: verify: %w", err)
	}

	var drifts []Drift
	for _, t := range transfers {
		d, err := derive(ctx, l.store, t)
		if err != nil {
			return nil, fmt.Errorf("ledger: verify: %w", err)
		}
		if !d.Cached.Equal(d.Derived) {
			drifts = append(drifts, d)
		}
	}

	if len(drifts) > 0 {
		l.log.Warn().Int("transfers", len(transfers)).Int("drifted", len(drifts)).Msg("transfer balances drifted from allocation links")
	} else {
		l.log.Info().Int("transfers", len(transfers)).Msg("transfer balances verified")
	}
	return drifts, nil
}

// Rebuild rewrites each drifted remaining balance from the allocation
// links and returns what it repaired. Over-allocated transfers are left
// untouched and reported as ErrOverAllocated.
func (l *Ledger) Rebuild(ctx context.Context, customerID string) ([]Drift, error) {
	transfers, err := l.store.ListTransfers(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("ledger: rebuild: %w", err)
	}

	var repaired []Drift
	for _, t := range transfers {
		d, changed, err := l.rebuildOne(ctx, t.ID)
		if err != nil {
			return repaired, fmt.Errorf("ledger: rebuild: %w", err)
		}
		if changed {
			repaired = append(repaired, d)
			l.log.Info().
				Str("transfer_id", d.TransferID).
				Str("cached", d.Cached.StringFixed(2)).
				Str("derived", d.Derived.StringFixed(2)).
				Msg("remaining balance rebuilt")
		}
	}
	return repaired, nil
}

func (l *Ledger) rebuildOne(ctx context.Context, transferID string) (Drift, bool, error) {
	unlock := l.locks.Lock("transfer:" + transferID)
	defer unlock()

	var (
		d       Drift
		changed bool
	)
	err := l.store.WithTx(ctx, func(q repository.Queries) error {
		t, err := q.LockTransfer(ctx, transferID)
		if err != nil {
			return err
		}
		if d, err = derive(ctx, q, t); err != nil {
			return err
		}
		if d.OverAllocated() {
			return fmt.Errorf("%w: %s has %s allocated against %s", ErrOverAllocated,
				t.ID, d.Allocated.StringFixed(2), t.Amount.StringFixed(2))
		}
		if d.Cached.Equal(d.Derived) {
			return nil
		}
		changed = true
		return q.SetRemainingBalance(ctx, t.ID, d.Derived.StringFixed(2))
	})
	return d, changed, err
}

type linkLister interface {
	ListLinks(ctx context.Context, transferID string) ([]*models.AllocationLink, error)
}

func derive(ctx context.Context, q linkLister, t *models.AdvanceTransfer) (Drift, error) {
	links, err := q.ListLinks(ctx, t.ID)
	if err != nil {
		return Drift{}, err
	}
	allocated := decimal.Zero
	for _, link := range links {
		allocated = allocated.Add(link.Amount)
	}
	return Drift{
		TransferID: t.ID,
		CustomerID: t.CustomerID,
		Amount:     t.Amount,
		Allocated:  allocated,
		Cached:     t.RemainingBalance,
		Derived:    t.Amount.Sub(allocated).Round(2),
	}, nil
}
