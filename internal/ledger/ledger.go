// Package ledger owns the remaining balance of advance transfers. Every
// write to that balance goes through Allocate, Reverse or Rebuild.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/keylock"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/lifecycle"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/metrics"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/repository"
)

var (
	// ErrPeriodClosed is returned when a change would touch a posted or
	// archived statement.
	ErrPeriodClosed = errors.New("ledger: statement period is closed")

	// ErrOverAllocated means the links on a transfer exceed its amount.
	ErrOverAllocated = errors.New("ledger: transfer over-allocated")

	// ErrInvalidTransfer rejects a transfer with no customer, a non-positive
	// amount or no transfer date.
	ErrInvalidTransfer = errors.New("ledger: invalid transfer")

	// errStale signals that a candidate's balance moved between selection
	// and the locked re-read.
	errStale = errors.New("ledger: stale transfer balance")
)

// AllocationRequest asks the ledger to match one payment transaction.
type AllocationRequest struct {
	TransactionID string
	CustomerID    string
	// PeriodEnd bounds the candidate transfers by transfer date.
	PeriodEnd time.Time
	// Amount is the payment magnitude; the sign is ignored.
	Amount decimal.Decimal
}

type Ledger struct {
	store   repository.Store
	locks   *keylock.Locker
	retries int
	log     zerolog.Logger
	now     func() time.Time
}

// New builds a ledger. retries bounds how often a payment is re-matched
// after losing a race on its chosen transfer.
func New(store repository.Store, log zerolog.Logger, retries int) *Ledger {
	if retries < 0 {
		retries = 0
	}
	return &Ledger{
		store:   store,
		locks:   keylock.New(),
		retries: retries,
		log:     log.With().Str("component", "ledger").Logger(),
		now:     time.Now,
	}
}

// Allocate matches a payment against the customer's open transfers. It
// returns the link on a match and nil when the payment stays an owner
// payment. A transaction that already has a link gets that link back and
// nothing is written.
func (l *Ledger) Allocate(ctx context.Context, req AllocationRequest) (*models.AllocationLink, error) {
	amount := req.Amount.Abs().Round(2)

	unlockTxn := l.locks.Lock("txn:" + req.TransactionID)
	defer unlockTxn()

	for attempt := 0; attempt <= l.retries; attempt++ {
		existing, err := l.store.GetLinkByTransaction(ctx, req.TransactionID)
		if err == nil {
			metrics.Allocations.WithLabelValues("existing").Inc()
			return existing, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("ledger: allocate: %w", err)
		}

		candidates, err := l.store.OpenTransfers(ctx, req.CustomerID, req.PeriodEnd)
		if err != nil {
			return nil, fmt.Errorf("ledger: allocate: %w", err)
		}
		idx, kind := SelectTransfer(amount, candidates)
		if idx < 0 {
			metrics.Allocations.WithLabelValues(string(MatchNone)).Inc()
			l.log.Debug().
				Str("transaction_id", req.TransactionID).
				Str("amount", amount.StringFixed(2)).
				Int("candidates", len(candidates)).
				Msg("no transfer covers payment")
			return nil, nil
		}

		chosen := candidates[idx]
		link, err := l.commit(ctx, req.TransactionID, chosen, amount)
		if errors.Is(err, errStale) {
			l.log.Debug().Str("transfer_id", chosen.ID).Int("attempt", attempt+1).Msg("transfer balance moved, re-selecting")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ledger: allocate: %w", err)
		}

		metrics.Allocations.WithLabelValues(string(kind)).Inc()
		l.log.Info().
			Str("transaction_id", req.TransactionID).
			Str("transfer_id", chosen.ID).
			Str("amount", amount.StringFixed(2)).
			Str("match", string(kind)).
			Msg("payment allocated")
		return link, nil
	}

	metrics.Allocations.WithLabelValues("conflict").Inc()
	l.log.Warn().Str("transaction_id", req.TransactionID).Int("retries", l.retries).Msg("allocation retries exhausted, treating as owner payment")
	return nil, nil
}

// commit writes the link, the decrement and the classification in one
// transaction while holding the transfer's lock.
func (l *Ledger) commit(ctx context.Context, transactionID string, chosen *models.AdvanceTransfer, amount decimal.Decimal) (*models.AllocationLink, error) {
	unlock := l.locks.Lock("transfer:" + chosen.ID)
	defer unlock()

	var link *models.AllocationLink
	err := l.store.WithTx(ctx, func(q repository.Queries) error {
		if err := checkOpen(ctx, q, transactionID); err != nil {
			return err
		}
		if existing, err := q.GetLinkByTransaction(ctx, transactionID); err == nil {
			link = existing
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		fresh, err := q.LockTransfer(ctx, chosen.ID)
		if err != nil {
			return err
		}
		if !fresh.RemainingBalance.Equal(chosen.RemainingBalance) {
			return errStale
		}
		remaining := fresh.RemainingBalance.Sub(amount)
		if remaining.IsNegative() {
			return errStale
		}

		link = &models.AllocationLink{
			ID:            uuid.New().String(),
			TransactionID: transactionID,
			TransferID:    fresh.ID,
			Amount:        amount,
			CreatedAt:     l.now(),
		}
		if err := q.InsertLink(ctx, link); err != nil {
			return err
		}
		if err := q.SetRemainingBalance(ctx, fresh.ID, remaining.StringFixed(2)); err != nil {
			return err
		}
		return q.SetClassification(ctx, transactionID, models.CategoryGZIndirectPayment, fresh.ID)
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// Reverse removes a transaction's allocation link, restores the transfer
// balance and reclassifies the payment as an owner payment.
func (l *Ledger) Reverse(ctx context.Context, transactionID string) error {
	link, err := l.store.GetLinkByTransaction(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("ledger: reverse %s: %w", transactionID, err)
	}

	unlockTxn := l.locks.Lock("txn:" + transactionID)
	defer unlockTxn()
	unlock := l.locks.Lock("transfer:" + link.TransferID)
	defer unlock()

	err = l.store.WithTx(ctx, func(q repository.Queries) error {
		if err := checkOpen(ctx, q, transactionID); err != nil {
			return err
		}
		current, err := q.GetLinkByTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		transfer, err := q.LockTransfer(ctx, current.TransferID)
		if err != nil {
			return err
		}
		restored := transfer.RemainingBalance.Add(current.Amount)
		if restored.GreaterThan(transfer.Amount) {
			return fmt.Errorf("%w: restoring %s to %s exceeds amount %s", ErrOverAllocated,
				current.Amount.StringFixed(2), transfer.ID, transfer.Amount.StringFixed(2))
		}
		if err := q.DeleteLink(ctx, current.ID); err != nil {
			return err
		}
		if err := q.SetRemainingBalance(ctx, transfer.ID, restored.StringFixed(2)); err != nil {
			return err
		}
		return q.SetClassification(ctx, transactionID, models.CategoryOwnerPayment, "")
	})
	if err != nil {
		return fmt.Errorf("ledger: reverse %s: %w", transactionID, err)
	}

	metrics.Allocations.WithLabelValues("reversed").Inc()
	l.log.Info().Str("transaction_id", transactionID).Str("transfer_id", link.TransferID).Msg("allocation reversed")
	return nil
}

// checkOpen refuses changes to transactions of posted or archived statements.
func checkOpen(ctx context.Context, q repository.Queries, transactionID string) error {
	txn, err := q.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	doc, err := q.GetDocument(ctx, txn.DocumentID)
	if err != nil {
		return err
	}
	if !lifecycle.Mutable(doc.Status) {
		return fmt.Errorf("%w: document %s is %s", ErrPeriodClosed, doc.ID, doc.Status)
	}
	return nil
}

// TransferInput describes a new advance transfer.
type TransferInput struct {
	CustomerID   string
	Amount       decimal.Decimal
	TransferDate time.Time
	FromAccount  string
	ToAccount    string
	Purpose      string
}

// RecordTransfer stores a new advance transfer with its full amount open.
func (l *Ledger) RecordTransfer(ctx context.Context, in TransferInput) (*models.AdvanceTransfer, error) {
	if strings.TrimSpace(in.CustomerID) == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrInvalidTransfer)
	}
	amount := in.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidTransfer, in.Amount)
	}
	if in.TransferDate.IsZero() {
		return nil, fmt.Errorf("%w: transfer date is required", ErrInvalidTransfer)
	}

	t := &models.AdvanceTransfer{
		ID:               uuid.New().String(),
		CustomerID:       in.CustomerID,
		Amount:           amount,
		TransferDate:     in.TransferDate,
		FromAccount:      in.FromAccount,
		ToAccount:        in.ToAccount,
		Purpose:          in.Purpose,
		RemainingBalance: amount,
		CreatedAt:        l.now(),
	}
	if err := l.store.InsertTransfer(ctx, t); err != nil {
		return nil, fmt.Errorf("ledger: record transfer: %w", err)
	}
	l.log.Info().Str("transfer_id", t.ID).Str("customer_id", t.CustomerID).Str("amount", amount.StringFixed(2)).Msg("advance transfer recorded")
	return t, nil
}

// Transfer returns one advance transfer with its cached remaining balance.
func (l *Ledger) Transfer(ctx context.Context, id string) (*models.AdvanceTransfer, error) {
	t, err := l.store.GetTransfer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ledger: transfer %s: %w", id, err)
	}
	return t, nil
}

// Transfers lists a customer's advance transfers, oldest first.
func (l *Ledger) Transfers(ctx context.Context, customerID string) ([]*models.AdvanceTransfer, error) {
	ts, err := l.store.ListTransfers(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("ledger: transfers: %w", err)
	}
	return ts, nil
}

// Links lists the allocations drawn against a transfer.
func (l *Ledger) Links(ctx context.Context, transferID string) ([]*models.AllocationLink, error) {
	if _, err := l.store.GetTransfer(ctx, transferID); err != nil {
		return nil, fmt.Errorf("ledger: links %s: %w", transferID, err)
	}
	links, err := l.store.ListLinks(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("ledger: links %s: %w", transferID, err)
	}
	return links, nil
}
