package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

const transactionColumns = `id, document_id, seq, txn_date, description, amount, direction,
	points, category, transfer_id, created_at`

func (q *queries) InsertTransactions(ctx context.Context, txns []*models.Transaction) error {
	for _, t := range txns {
		_, err := q.exec(ctx, `
			INSERT INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.DocumentID, t.Seq, formatDate(t.Date), t.Description, t.Amount.StringFixed(2),
			string(t.Direction), t.Points, string(t.Category), t.TransferID, formatTimestamp(t.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("repository: insert transaction %d of %s: %w", t.Seq, t.DocumentID, err)
		}
	}
	return nil
}

func (q *queries) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	row := q.queryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("repository: get transaction %s: %w", id, err)
	}
	return t, nil
}

// ListTransactions returns a document's transactions in statement order.
func (q *queries) ListTransactions(ctx context.Context, documentID string) ([]*models.Transaction, error) {
	rows, err := q.query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE document_id = ?
		ORDER BY seq`, documentID)
	if err != nil {
		return nil, fmt.Errorf("repository: list transactions of %s: %w", documentID, err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: list transactions of %s: %w", documentID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SetClassification stamps the category and allocation link target of a
// transaction.
func (q *queries) SetClassification(ctx context.Context, id string, category models.Category, transferID string) error {
	err := mustAffect(q.exec(ctx,
		`UPDATE transactions SET category = ?, transfer_id = ? WHERE id = ?`,
		string(category), transferID, id))
	if err != nil {
		return fmt.Errorf("repository: classify transaction %s: %w", id, err)
	}
	return nil
}

func scanTransaction(s scanner) (*models.Transaction, error) {
	var (
		t                            models.Transaction
		date, amount, direction, cat string
		createdAt                    string
	)
	err := s.Scan(&t.ID, &t.DocumentID, &t.Seq, &date, &t.Description, &amount, &direction,
		&t.Points, &cat, &t.TransferID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Date, err = parseDate(date); err != nil {
		return nil, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	t.Direction = models.Direction(direction)
	t.Category = models.Category(cat)
	return &t, nil
}
