// Package repository persists statements, transactions, advance transfers
// and allocation links behind the Store interface.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

// ErrNotFound is returned when a lookup by id or key matches no row.
var ErrNotFound = errors.New("repository: not found")

// Queries is the set of operations available both on the store and inside
// a transaction.
type Queries interface {
	InsertDocument(ctx context.Context, doc *models.StatementDocument) error
	UpdateDocument(ctx context.Context, doc *models.StatementDocument) error
	GetDocument(ctx context.Context, id string) (*models.StatementDocument, error)
	// FindPrimary returns the oldest validated, active or posted document
	// holding key, ignoring excludeID.
	FindPrimary(ctx context.Context, key models.DuplicateKey, excludeID string) (*models.StatementDocument, error)

	InsertTransactions(ctx context.Context, txns []*models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, documentID string) ([]*models.Transaction, error)
	SetClassification(ctx context.Context, id string, category models.Category, transferID string) error

	InsertTransfer(ctx context.Context, t *models.AdvanceTransfer) error
	GetTransfer(ctx context.Context, id string) (*models.AdvanceTransfer, error)
	// LockTransfer reads a transfer for update; on PostgreSQL the row is
	// locked until the surrounding transaction ends.
	LockTransfer(ctx context.Context, id string) (*models.AdvanceTransfer, error)
	// OpenTransfers lists the customer's transfers dated on or before asOf
	// with a positive remaining balance, oldest first.
	OpenTransfers(ctx context.Context, customerID string, asOf time.Time) ([]*models.AdvanceTransfer, error)
	ListTransfers(ctx context.Context, customerID string) ([]*models.AdvanceTransfer, error)
	SetRemainingBalance(ctx context.Context, id string, remaining string) error

	InsertLink(ctx context.Context, link *models.AllocationLink) error
	GetLinkByTransaction(ctx context.Context, transactionID string) (*models.AllocationLink, error)
	ListLinks(ctx context.Context, transferID string) ([]*models.AllocationLink, error)
	DeleteLink(ctx context.Context, id string) error

	ListSuppliers(ctx context.Context) ([]string, error)
	AddSupplier(ctx context.Context, name string) error
}

// Store is the persistence interface injected into the ledger, classifier
// and ingestion service.
type Store interface {
	Queries
	// WithTx runs fn inside one database transaction, committing when fn
	// returns nil. Calls must not be nested.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store on database/sql for SQLite and PostgreSQL.
type SQLStore struct {
	*queries
	db *sql.DB
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{queries: &queries{ex: db, driver: driver}, db: db}
}

func (s *SQLStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ex: tx, driver: s.driver}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("repository: commit: %w", err)
	}
	return nil
}

type queries struct {
	ex     execer
	driver string
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (q *queries) rebind(query string) string {
	if q.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.ex.ExecContext(ctx, q.rebind(query), args...)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.ex.QueryContext(ctx, q.rebind(query), args...)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.ex.QueryRowContext(ctx, q.rebind(query), args...)
}

// mustAffect turns a zero-row update into ErrNotFound.
func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

func formatDate(t time.Time) string {
	return t.Format(models.DateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(models.DateLayout, s)
}
