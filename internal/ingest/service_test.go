package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/classifier"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/database"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/ledger"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/lifecycle"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/repository"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/storage"
)

type env struct {
	ctx    context.Context
	store  *repository.SQLStore
	blobs  *storage.FileStore
	ledger *ledger.Ledger
	svc    *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.OpenMigrated(database.DriverSQLite, ":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := repository.NewSQLStore(db, database.DriverSQLite)
	blobs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	l := ledger.New(store, zerolog.Nop(), 3)
	cls := classifier.New(store, l, time.Minute, zerolog.Nop())
	require.NoError(t, cls.AddSuppliers(context.Background(), "ABC Trading"))

	return &env{
		ctx:    context.Background(),
		store:  store,
		blobs:  blobs,
		ledger: l,
		svc:    New(store, blobs, cls, zerolog.Nop()),
	}
}

type stmtLine struct {
	day    int
	desc   string
	amount string
	credit bool
}

// maybankText renders a January 2025 card statement whose closing balance
// reconciles with its lines.
func maybankText(previous string, declared int, lines []stmtLine) string {
	balance := decimal.RequireFromString(previous)
	var body strings.Builder
	for _, l := range lines {
		amt := decimal.RequireFromString(l.amount)
		suffix := ""
		if l.credit {
			balance = balance.Sub(amt)
			suffix = " CR"
		} else {
			balance = balance.Add(amt)
		}
		fmt.Fprintf(&body, "%02d/01  %02d/01  %s  %s%s\n", l.day, l.day, l.desc, amt.StringFixed(2), suffix)
	}

	return fmt.Sprintf(`MALAYAN BANKING BERHAD
Maybank Credit Card Statement
Name: TAN AH KOW
Card Number: 5239 1234 5678 9012
Statement Date: 31 Jan 2025
Payment Due Date: 20 Feb 2025
Previous Balance: RM %s
Credit Limit: RM 10000.00
Current Balance: RM %s
Minimum Payment Due: RM 50.00
Number of Transactions: %d
Posting Date  Transaction Date  Description  Amount (RM)
%sPage 1 of 1
`, decimal.RequireFromString(previous).StringFixed(2), balance.StringFixed(2), declared, body.String())
}

func request(text string) Request {
	return Request{
		Data:          []byte(text),
		Filename:      "maybank-2025-01.txt",
		CustomerID:    "cust-1",
		AccountNumber: "1234",
		Period:        "2025-01",
		Holder:        models.HolderOwner,
		BankName:      "Maybank",
	}
}

var basicLines = []stmtLine{
	{3, "SHELL PETROL KL", "100.00", false},
	{6, "ABC TRADING SDN BHD", "500.00", false},
	{9, "PAYMENT - THANK YOU", "500.00", true},
	{12, "LATE CHARGE", "50.00", false},
}

func TestImport_ActivatesAndClassifies(t *testing.T) {
	e := newEnv(t)

	resp, err := e.svc.Import(e.ctx, request(maybankText("1000.00", 4, basicLines)))
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, models.StatusActive, resp.Status, resp.Reason)
	assert.Equal(t, models.BankMaybank, resp.Bank)
	assert.Equal(t, 4, resp.Imported)
	assert.Equal(t, 0, resp.Matched)
	assert.Equal(t, lifecycle.Actions(models.StatusActive), resp.NextActions)

	txns, err := e.svc.Transactions(e.ctx, resp.DocumentID)
	require.NoError(t, err)
	require.Len(t, txns, 4)
	var cats []models.Category
	for _, txn := range txns {
		cats = append(cats, txn.Category)
	}
	assert.Equal(t, []models.Category{
		models.CategoryExpenseOwner,
		models.CategorySupplierOwner,
		models.CategoryOwnerPayment,
		models.CategoryFeeOwner,
	}, cats)
	assert.Equal(t, "-500.00", txns[2].Amount.StringFixed(2))

	doc, err := e.svc.Document(e.ctx, resp.DocumentID)
	require.NoError(t, err)
	require.NotNil(t, doc.DeclaredCount)
	assert.Equal(t, 4, *doc.DeclaredCount)
	assert.Equal(t, 4, doc.ParsedCount)
}

func TestImport_SecondUploadIsDuplicate(t *testing.T) {
	e := newEnv(t)
	text := maybankText("1000.00", 4, basicLines)

	first, err := e.svc.Import(e.ctx, request(text))
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, first.Status, first.Reason)

	second, err := e.svc.Import(e.ctx, request(text))
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, models.StatusDuplicate, second.Status)
	assert.Equal(t, first.DocumentID, second.DuplicateOf)
	assert.NotEqual(t, first.DocumentID, second.DocumentID)
	assert.Contains(t, second.NextActions, string(lifecycle.ActionViewPrimary))

	// both documents stay queryable
	for _, id := range []string{first.DocumentID, second.DocumentID} {
		_, err := e.svc.Document(e.ctx, id)
		assert.NoError(t, err)
	}
	txns, err := e.svc.Transactions(e.ctx, second.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestImport_ConcurrentUploadsOfSameSlot(t *testing.T) {
	e := newEnv(t)
	text := maybankText("1000.00", 4, basicLines)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		count = map[models.Status]int{}
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := e.svc.Import(e.ctx, request(text))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			count[resp.Status]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, count[models.StatusActive])
	assert.Equal(t, 3, count[models.StatusDuplicate])
}

func TestImport_CountMismatchFails(t *testing.T) {
	e := newEnv(t)
	lines := make([]stmtLine, 55)
	for i := range lines {
		lines[i] = stmtLine{day: 1 + i%28, desc: fmt.Sprintf("MERCHANT %02d", i), amount: "10.00"}
	}

	resp, err := e.svc.Import(e.ctx, request(maybankText("0.00", 57, lines)))
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Equal(t, "transaction count mismatch: statement declares 57, parsed 55", resp.Reason)
	assert.Equal(t, []string{"view_exceptions", "reprocess", "download_original"}, resp.NextActions)

	doc, err := e.svc.Document(e.ctx, resp.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 55, doc.ParsedCount)
	original, err := e.blobs.Get(doc.StorageRef)
	require.NoError(t, err)
	assert.Contains(t, string(original), "Number of Transactions: 57")

	txns, err := e.svc.Transactions(e.ctx, resp.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestImport_UnparsableFails(t *testing.T) {
	e := newEnv(t)
	req := request("hello there, nothing to see")

	resp, err := e.svc.Import(e.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Contains(t, resp.Reason, "unparsable")
}

func TestImport_InvalidRequest(t *testing.T) {
	e := newEnv(t)
	text := maybankText("1000.00", 4, basicLines)

	for name, mutate := range map[string]func(*Request){
		"no customer": func(r *Request) { r.CustomerID = " " },
		"no data":     func(r *Request) { r.Data = nil },
		"bad holder":  func(r *Request) { r.Holder = "bank" },
		"bad period":  func(r *Request) { r.Period = "Jan 2025" },
	} {
		t.Run(name, func(t *testing.T) {
			req := request(text)
			mutate(&req)
			_, err := e.svc.Import(e.ctx, req)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
		})
	}
}

func TestImport_DerivesAccountAndPeriod(t *testing.T) {
	e := newEnv(t)
	req := request(maybankText("1000.00", 4, basicLines))
	req.AccountNumber = ""
	req.Period = ""

	resp, err := e.svc.Import(e.ctx, req)
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, resp.Status, resp.Reason)

	doc, err := e.svc.Document(e.ctx, resp.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "5239123456789012", doc.AccountNumber)
	assert.Equal(t, "2025-01", doc.Period)
}

func TestImport_AllocatesPaymentsAgainstTransfer(t *testing.T) {
	e := newEnv(t)
	tr, err := e.ledger.RecordTransfer(e.ctx, ledger.TransferInput{
		CustomerID:   "cust-1",
		Amount:       decimal.RequireFromString("1000.00"),
		TransferDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		Purpose:      "card settlement",
	})
	require.NoError(t, err)

	text := maybankText("2000.00", 5, []stmtLine{
		{4, "SHELL PETROL KL", "150.00", false},
		{10, "PAYMENT RECEIVED", "400.00", true},
		{15, "PAYMENT RECEIVED", "300.00", true},
		{20, "PAYMENT RECEIVED", "300.00", true},
		{25, "PAYMENT RECEIVED", "200.00", true},
	})
	resp, err := e.svc.Import(e.ctx, request(text))
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, resp.Status, resp.Reason)
	assert.Equal(t, 5, resp.Imported)
	assert.Equal(t, 3, resp.Matched)

	got, err := e.store.GetTransfer(e.ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", got.RemainingBalance.StringFixed(2))

	txns, err := e.svc.Transactions(e.ctx, resp.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryGZIndirectPayment, txns[1].Category)
	assert.Equal(t, models.CategoryGZIndirectPayment, txns[3].Category)
	assert.Equal(t, models.CategoryOwnerPayment, txns[4].Category)
	assert.Empty(t, txns[4].TransferID)
}

func TestImport_OverpaymentStaysOwnerPayment(t *testing.T) {
	e := newEnv(t)
	tr, err := e.ledger.RecordTransfer(e.ctx, ledger.TransferInput{
		CustomerID:   "cust-1",
		Amount:       decimal.RequireFromString("100.00"),
		TransferDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	text := maybankText("1000.00", 1, []stmtLine{{10, "PAYMENT RECEIVED", "500.00", true}})
	resp, err := e.svc.Import(e.ctx, request(text))
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, resp.Status, resp.Reason)
	assert.Equal(t, 0, resp.Matched)

	got, err := e.store.GetTransfer(e.ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", got.RemainingBalance.StringFixed(2))
}

func TestImport_DebitWithPaymentWordingLeavesTransferAlone(t *testing.T) {
	e := newEnv(t)
	tr, err := e.ledger.RecordTransfer(e.ctx, ledger.TransferInput{
		CustomerID:   "cust-1",
		Amount:       decimal.RequireFromString("200.00"),
		TransferDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	text := maybankText("1000.00", 2, []stmtLine{
		{4, "SHELL PETROL KL", "80.00", false},
		{8, "AUTOPAY INSURANCE PREMIUM", "200.00", false},
	})
	resp, err := e.svc.Import(e.ctx, request(text))
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, resp.Status, resp.Reason)
	assert.Equal(t, 0, resp.Matched)

	got, err := e.store.GetTransfer(e.ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", got.RemainingBalance.StringFixed(2))

	txns, err := e.svc.Transactions(e.ctx, resp.DocumentID)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, models.Debit, txns[1].Direction)
	assert.Equal(t, models.CategoryExpenseOwner, txns[1].Category)
	assert.Empty(t, txns[1].TransferID)
}

func TestImport_UniversalLayoutCreditsAreNotAllocated(t *testing.T) {
	e := newEnv(t)
	tr, err := e.ledger.RecordTransfer(e.ctx, ledger.TransferInput{
		CustomerID:   "cust-1",
		Amount:       decimal.RequireFromString("20.00"),
		TransferDate: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	text := `Acme Credit Union
Statement Date: 31 Jan 2025
Previous Balance: 100.00
Current Balance: 150.00
05/01/2025 GROCERIES 70.00
12/01/2025 DEPOSIT -20.00`
	req := request(text)
	req.Filename = "acme-2025-01.txt"
	req.BankName = ""
	resp, err := e.svc.Import(e.ctx, req)
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, resp.Status, resp.Reason)
	assert.Equal(t, models.BankUniversal, resp.Bank)
	assert.Equal(t, 0, resp.Matched)

	got, err := e.store.GetTransfer(e.ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", got.RemainingBalance.StringFixed(2))
}

func TestApply(t *testing.T) {
	e := newEnv(t)
	resp, err := e.svc.Import(e.ctx, request(maybankText("1000.00", 4, basicLines)))
	require.NoError(t, err)
	id := resp.DocumentID

	_, err = e.svc.Apply(e.ctx, id, lifecycle.ActionActivate)
	assert.True(t, errors.Is(err, lifecycle.ErrInvalidTransition))

	posted, err := e.svc.Apply(e.ctx, id, lifecycle.ActionPost)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPosted, posted.Status)
	assert.Equal(t, 4, posted.Imported)

	_, err = e.svc.Apply(e.ctx, id, lifecycle.ActionReprocess)
	assert.True(t, errors.Is(err, lifecycle.ErrInvalidTransition))

	_, err = e.svc.Apply(e.ctx, id, lifecycle.ActionValidate)
	assert.True(t, errors.Is(err, lifecycle.ErrInvalidTransition))

	archived, err := e.svc.Apply(e.ctx, id, lifecycle.ActionArchive)
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, archived.Status)

	_, err = e.svc.Apply(e.ctx, "missing", lifecycle.ActionPost)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestReprocess_FailedRunsAgainFromOriginal(t *testing.T) {
	e := newEnv(t)
	text := maybankText("0.00", 3, basicLines[:2])

	resp, err := e.svc.Import(e.ctx, request(text))
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, resp.Status)

	again, err := e.svc.Reprocess(e.ctx, resp.DocumentID, "maybank")
	require.NoError(t, err)
	assert.Equal(t, resp.DocumentID, again.DocumentID)
	assert.Equal(t, models.StatusFailed, again.Status)
	assert.Equal(t, "transaction count mismatch: statement declares 3, parsed 2", again.Reason)
}

func TestReprocess_UnknownHintIsReported(t *testing.T) {
	e := newEnv(t)
	resp, err := e.svc.Import(e.ctx, request(maybankText("0.00", 3, basicLines[:2])))
	require.NoError(t, err)

	again, err := e.svc.Reprocess(e.ctx, resp.DocumentID, "bank-of-nowhere")
	require.NoError(t, err)
	assert.Equal(t, models.BankMaybank, again.Bank)
	require.NotEmpty(t, again.Warnings)
	assert.Contains(t, strings.Join(again.Warnings, "\n"), "bank-of-nowhere")
}
