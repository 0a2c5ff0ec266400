package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/database"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.OpenMigrated(database.DriverSQLite, ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db, database.DriverSQLite)
}

func testDocument(id string, status models.Status, created time.Time) *models.StatementDocument {
	return &models.StatementDocument{
		ID:            id,
		CustomerID:    "cust-1",
		AccountNumber: "1234",
		Holder:        models.HolderOwner,
		Period:        "2025-01",
		StorageRef:    id + ".pdf",
		Checksum:      "abc",
		Status:        status,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestRebind(t *testing.T) {
	pg := &queries{driver: "postgres"}
	assert.Equal(t, "SELECT a FROM b WHERE c = $1 AND d IN ($2, $3)", pg.rebind("SELECT a FROM b WHERE c = ? AND d IN (?, ?)"))

	lite := &queries{driver: "sqlite"}
	assert.Equal(t, "WHERE c = ?", lite.rebind("WHERE c = ?"))
}

func TestDocuments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

	doc := testDocument("doc-1", models.StatusUploaded, now)
	require.NoError(t, s.InsertDocument(ctx, doc))

	_, err := s.FindPrimary(ctx, doc.Key(), "")
	assert.True(t, errors.Is(err, ErrNotFound))

	declared := 2
	doc.Status = models.StatusValidated
	doc.Bank = models.BankMaybank
	doc.DeclaredCount = &declared
	doc.ParsedCount = 2
	doc.Info = &models.StatementInfo{Bank: models.BankMaybank, Fields: map[models.Field]string{models.FieldCardNumber: "1234"}}
	require.NoError(t, s.UpdateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusValidated, got.Status)
	require.NotNil(t, got.DeclaredCount)
	assert.Equal(t, 2, *got.DeclaredCount)
	assert.Equal(t, "1234", got.Info.Fields[models.FieldCardNumber])
	assert.True(t, got.CreatedAt.Equal(now))

	second := testDocument("doc-2", models.StatusUploaded, now.Add(time.Minute))
	require.NoError(t, s.InsertDocument(ctx, second))

	primary, err := s.FindPrimary(ctx, second.Key(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", primary.ID)

	_, err = s.GetDocument(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTransactionsAndLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()
	require.NoError(t, s.InsertDocument(ctx, testDocument("doc-1", models.StatusValidated, now)))

	txns := []*models.Transaction{
		{ID: "t2", DocumentID: "doc-1", Seq: 2, Date: time.Date(2025, 1, 9, 0, 0, 0, 0, time.UTC), Description: "PAYMENT", Amount: decimal.RequireFromString("-400"), Direction: models.Credit, CreatedAt: now},
		{ID: "t1", DocumentID: "doc-1", Seq: 1, Date: time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC), Description: "SHOP", Amount: decimal.RequireFromString("12.5"), Direction: models.Debit, CreatedAt: now},
	}
	require.NoError(t, s.InsertTransactions(ctx, txns))

	list, err := s.ListTransactions(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "t1", list[0].ID)
	assert.Equal(t, "12.50", list[0].Amount.StringFixed(2))
	assert.True(t, list[1].Amount.Equal(decimal.RequireFromString("-400")))

	transfer := &models.AdvanceTransfer{
		ID: "tr-1", CustomerID: "cust-1", Amount: decimal.RequireFromString("1000"),
		TransferDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), RemainingBalance: decimal.RequireFromString("1000"), CreatedAt: now,
	}
	require.NoError(t, s.InsertTransfer(ctx, transfer))

	err = s.WithTx(ctx, func(q Queries) error {
		if err := q.InsertLink(ctx, &models.AllocationLink{ID: "l1", TransactionID: "t2", TransferID: "tr-1", Amount: decimal.RequireFromString("400"), CreatedAt: now}); err != nil {
			return err
		}
		if err := q.SetRemainingBalance(ctx, "tr-1", "600.00"); err != nil {
			return err
		}
		return q.SetClassification(ctx, "t2", models.CategoryGZIndirectPayment, "tr-1")
	})
	require.NoError(t, err)

	link, err := s.GetLinkByTransaction(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "400.00", link.Amount.StringFixed(2))

	got, err := s.GetTransfer(ctx, "tr-1")
	require.NoError(t, err)
	assert.Equal(t, "600.00", got.RemainingBalance.StringFixed(2))

	// second link for the same transaction violates the unique constraint
	err = s.InsertLink(ctx, &models.AllocationLink{ID: "l2", TransactionID: "t2", TransferID: "tr-1", Amount: decimal.RequireFromString("1"), CreatedAt: now})
	assert.Error(t, err)

	txn, err := s.GetTransaction(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryGZIndirectPayment, txn.Category)
	assert.Equal(t, "tr-1", txn.TransferID)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(q Queries) error {
		if err := q.InsertDocument(ctx, testDocument("doc-1", models.StatusUploaded, time.Now())); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	_, err = s.GetDocument(ctx, "doc-1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestOpenTransfers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()
	day := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

	for _, tr := range []*models.AdvanceTransfer{
		{ID: "late", CustomerID: "c", Amount: decimal.NewFromInt(100), RemainingBalance: decimal.NewFromInt(100), TransferDate: day(20), CreatedAt: now},
		{ID: "spent", CustomerID: "c", Amount: decimal.NewFromInt(100), RemainingBalance: decimal.Zero, TransferDate: day(2), CreatedAt: now},
		{ID: "old", CustomerID: "c", Amount: decimal.NewFromInt(100), RemainingBalance: decimal.NewFromInt(50), TransferDate: day(5), CreatedAt: now},
		{ID: "future", CustomerID: "c", Amount: decimal.NewFromInt(100), RemainingBalance: decimal.NewFromInt(100), TransferDate: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), CreatedAt: now},
		{ID: "other", CustomerID: "d", Amount: decimal.NewFromInt(100), RemainingBalance: decimal.NewFromInt(100), TransferDate: day(1), CreatedAt: now},
	} {
		require.NoError(t, s.InsertTransfer(ctx, tr))
	}

	open, err := s.OpenTransfers(ctx, "c", day(31))
	require.NoError(t, err)
	var ids []string
	for _, tr := range open {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{"old", "late"}, ids)
}

func TestSuppliers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.AddSupplier(ctx, "XYZ Hardware"))
	require.NoError(t, s.AddSupplier(ctx, "ABC Trading"))
	require.NoError(t, s.AddSupplier(ctx, "ABC Trading"))
	require.NoError(t, s.AddSupplier(ctx, "  "))

	names, err := s.ListSuppliers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC Trading", "XYZ Hardware"}, names)
}
