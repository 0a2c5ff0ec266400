package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

const transferColumns = `id, customer_id, amount, transfer_date, from_account, to_account,
	purpose, remaining_balance, created_at`

func (q *queries) InsertTransfer(ctx context.Context, t *models.AdvanceTransfer) error {
	_, err := q.exec(ctx, `
		INSERT INTO advance_transfers (`+transferColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CustomerID, t.Amount.StringFixed(2), formatDate(t.TransferDate), t.FromAccount,
		t.ToAccount, t.Purpose, t.RemainingBalance.StringFixed(2), formatTimestamp(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("repository: insert transfer %s: %w", t.ID, err)
	}
	return nil
}

func (q *queries) GetTransfer(ctx context.Context, id string) (*models.AdvanceTransfer, error) {
	row := q.queryRow(ctx, `SELECT `+transferColumns+` FROM advance_transfers WHERE id = ?`, id)
	t, err := scanTransfer(row)
	if err != nil {
		return nil, fmt.Errorf("repository: get transfer %s: %w", id, err)
	}
	return t, nil
}

func (q *queries) LockTransfer(ctx context.Context, id string) (*models.AdvanceTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM advance_transfers WHERE id = ?`
	if q.driver == "postgres" {
		query += ` FOR UPDATE`
	}
	t, err := scanTransfer(q.queryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("repository: lock transfer %s: %w", id, err)
	}
	return t, nil
}

func (q *queries) OpenTransfers(ctx context.Context, customerID string, asOf time.Time) ([]*models.AdvanceTransfer, error) {
	all, err := q.listTransfers(ctx, `
		SELECT `+transferColumns+` FROM advance_transfers
		WHERE customer_id = ? AND transfer_date <= ?
		ORDER BY transfer_date, created_at, id`, customerID, formatDate(asOf))
	if err != nil {
		return nil, fmt.Errorf("repository: open transfers of %s: %w", customerID, err)
	}
	// Balances are stored as text, so the positivity filter runs here.
	open := all[:0]
	for _, t := range all {
		if t.RemainingBalance.IsPositive() {
			open = append(open, t)
		}
	}
	return open, nil
}

// ListTransfers returns every transfer for customerID, or all transfers
// when customerID is empty.
func (q *queries) ListTransfers(ctx context.Context, customerID string) ([]*models.AdvanceTransfer, error) {
	var (
		out []*models.AdvanceTransfer
		err error
	)
	if customerID == "" {
		out, err = q.listTransfers(ctx, `
			SELECT `+transferColumns+` FROM advance_transfers
			ORDER BY customer_id, transfer_date, created_at, id`)
	} else {
		out, err = q.listTransfers(ctx, `
			SELECT `+transferColumns+` FROM advance_transfers
			WHERE customer_id = ?
			ORDER BY transfer_date, created_at, id`, customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("repository: list transfers: %w", err)
	}
	return out, nil
}

func (q *queries) SetRemainingBalance(ctx context.Context, id string, remaining string) error {
	err := mustAffect(q.exec(ctx,
		`UPDATE advance_transfers SET remaining_balance = ? WHERE id = ?`, remaining, id))
	if err != nil {
		return fmt.Errorf("repository: set remaining balance of %s: %w", id, err)
	}
	return nil
}

func (q *queries) listTransfers(ctx context.Context, query string, args ...any) ([]*models.AdvanceTransfer, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.AdvanceTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransfer(s scanner) (*models.AdvanceTransfer, error) {
	var (
		t                                  models.AdvanceTransfer
		amount, date, remaining, createdAt string
	)
	err := s.Scan(&t.ID, &t.CustomerID, &amount, &date, &t.FromAccount, &t.ToAccount,
		&t.Purpose, &remaining, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if t.RemainingBalance, err = decimal.NewFromString(remaining); err != nil {
		return nil, err
	}
	if t.TransferDate, err = parseDate(date); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	return &t, nil
}
