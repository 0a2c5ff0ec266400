package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

const linkColumns = `id, transaction_id, transfer_id, amount, created_at`

func (q *queries) InsertLink(ctx context.Context, link *models.AllocationLink) error {
	_, err := q.exec(ctx, `
		INSERT INTO allocation_links (`+linkColumns+`)
		VALUES (?, ?, ?, ?, ?)`,
		link.ID, link.TransactionID, link.TransferID, link.Amount.StringFixed(2),
		formatTimestamp(link.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("repository: insert allocation link for %s: %w", link.TransactionID, err)
	}
	return nil
}

func (q *queries) GetLinkByTransaction(ctx context.Context, transactionID string) (*models.AllocationLink, error) {
	row := q.queryRow(ctx, `SELECT `+linkColumns+` FROM allocation_links WHERE transaction_id = ?`, transactionID)
	link, err := scanLink(row)
	if err != nil {
		return nil, fmt.Errorf("repository: get allocation link for %s: %w", transactionID, err)
	}
	return link, nil
}

func (q *queries) ListLinks(ctx context.Context, transferID string) ([]*models.AllocationLink, error) {
	rows, err := q.query(ctx, `
		SELECT `+linkColumns+` FROM allocation_links
		WHERE transfer_id = ?
		ORDER BY created_at, id`, transferID)
	if err != nil {
		return nil, fmt.Errorf("repository: list allocation links of %s: %w", transferID, err)
	}
	defer rows.Close()

	var out []*models.AllocationLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: list allocation links of %s: %w", transferID, err)
		}
		out = append(out, link)
	}
	return out, rows.Err()
}

func (q *queries) DeleteLink(ctx context.Context, id string) error {
	if err := mustAffect(q.exec(ctx, `DELETE FROM allocation_links WHERE id = ?`, id)); err != nil {
		return fmt.Errorf("repository: delete allocation link %s: %w", id, err)
	}
	return nil
}

func scanLink(s scanner) (*models.AllocationLink, error) {
	var (
		link              models.AllocationLink
		amount, createdAt string
	)
	err := s.Scan(&link.ID, &link.TransactionID, &link.TransferID, &amount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if link.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if link.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, err
	}
	return &link, nil
}

// ListSuppliers returns the supplier allowlist in name order.
func (q *queries) ListSuppliers(ctx context.Context) ([]string, error) {
	rows, err := q.query(ctx, `SELECT name FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("repository: list suppliers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("repository: list suppliers: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// AddSupplier inserts a supplier name; existing names are left alone.
func (q *queries) AddSupplier(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	_, err := q.exec(ctx,
		`INSERT INTO suppliers (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		name, formatTimestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("repository: add supplier %q: %w", name, err)
	}
	return nil
}
