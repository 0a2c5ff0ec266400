package lifecycle

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/parser"
)

var allStatuses = []models.Status{
	models.StatusUploaded, models.StatusValidated, models.StatusFailed, models.StatusDuplicate,
	models.StatusActive, models.StatusPosted, models.StatusArchived,
}

func TestNext(t *testing.T) {
	tests := []struct {
		from    models.Status
		action  Action
		want    models.Status
		wantErr bool
	}{
		{models.StatusUploaded, ActionValidate, models.StatusValidated, false},
		{models.StatusUploaded, ActionFail, models.StatusFailed, false},
		{models.StatusUploaded, ActionMarkDuplicate, models.StatusDuplicate, false},
		{models.StatusFailed, ActionReprocess, models.StatusUploaded, false},
		{models.StatusValidated, ActionActivate, models.StatusActive, false},
		{models.StatusActive, ActionPost, models.StatusPosted, false},
		{models.StatusPosted, ActionArchive, models.StatusArchived, false},
		{models.StatusDuplicate, ActionArchive, models.StatusArchived, false},
		{models.StatusUploaded, ActionPost, "", true},
		{models.StatusPosted, ActionActivate, "", true},
		{models.StatusDuplicate, ActionActivate, "", true},
		{models.StatusValidated, ActionReprocess, "", true},
		{models.StatusArchived, ActionReprocess, "", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.from, tt.action), func(t *testing.T) {
			got, err := Next(tt.from, tt.action)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArchivedIsTerminal(t *testing.T) {
	for _, to := range allStatuses {
		assert.False(t, CanTransition(models.StatusArchived, to), "archived -> %s", to)
	}
}

func TestFailedOnlyReturnsToUploadedByReprocess(t *testing.T) {
	for action, to := range Transitions[models.StatusFailed] {
		if to == models.StatusUploaded {
			assert.Equal(t, ActionReprocess, action)
		}
	}
	for _, from := range allStatuses {
		if from == models.StatusFailed {
			continue
		}
		assert.False(t, CanTransition(from, models.StatusUploaded), "%s -> uploaded", from)
	}
}

func TestTablesCoverEveryStatus(t *testing.T) {
	for _, s := range allStatuses {
		_, hasTransitions := Transitions[s]
		assert.True(t, hasTransitions, "transitions for %s", s)
		assert.NotEmpty(t, NextActions[s], "next actions for %s", s)
		assert.NotEmpty(t, Notes[s], "note for %s", s)
	}
	assert.Equal(t, []string{"view_exceptions", "reprocess", "download_original"}, Actions(models.StatusFailed))
	assert.False(t, Mutable(models.StatusPosted))
	assert.True(t, Mutable(models.StatusActive))
}

func cardExtraction(prev, curr string, declared string, txns ...models.RawTransaction) *parser.Extraction {
	fields := map[models.Field]string{
		models.FieldCardNumber:      "5239123456789012",
		models.FieldStatementDate:   "2024-01-15",
		models.FieldPreviousBalance: prev,
		models.FieldCurrentBalance:  curr,
	}
	if declared != "" {
		fields[models.FieldTransactionCount] = declared
	}
	return &parser.Extraction{
		Bank:         models.BankMaybank,
		Balance:      parser.BalanceCard,
		Info:         &models.StatementInfo{Bank: models.BankMaybank, Fields: fields},
		Transactions: txns,
	}
}

func raw(amount string, dir models.Direction) models.RawTransaction {
	return models.RawTransaction{
		Date:        time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
		Description: "X",
		Amount:      decimal.RequireFromString(amount),
		Direction:   dir,
	}
}

func TestAssess(t *testing.T) {
	buy := raw("650.00", models.Debit)
	pay := raw("500.00", models.Credit)

	t.Run("reconciled statement validates", func(t *testing.T) {
		out := Assess(cardExtraction("1000.00", "1150.00", "2", buy, pay), nil)
		assert.True(t, out.OK(), out.Reason)
	})

	t.Run("unparsable", func(t *testing.T) {
		out := Assess(nil, parser.ErrUnparsable)
		assert.False(t, out.OK())
		assert.Contains(t, out.Reason, "unparsable")
	})

	t.Run("missing mandatory fields", func(t *testing.T) {
		ext := cardExtraction("1000.00", "1150.00", "", buy, pay)
		ext.Info.Missing = []models.Field{models.FieldCardNumber, models.FieldStatementDate}
		out := Assess(ext, nil)
		assert.Equal(t, ActionFail, out.Action)
		assert.Equal(t, "missing mandatory fields: card_number, statement_date", out.Reason)
	})

	t.Run("count mismatch", func(t *testing.T) {
		txns := make([]models.RawTransaction, 55)
		for i := range txns {
			txns[i] = raw("1.00", models.Debit)
		}
		out := Assess(cardExtraction("0.00", "55.00", "57", txns...), nil)
		assert.Equal(t, "transaction count mismatch: statement declares 57, parsed 55", out.Reason)
	})

	t.Run("balance mismatch", func(t *testing.T) {
		out := Assess(cardExtraction("1000.00", "1200.00", "", buy, pay), nil)
		assert.False(t, out.OK())
		assert.Contains(t, out.Reason, "balance mismatch")
		assert.Contains(t, out.Reason, "1150.00")
	})

	t.Run("account rule", func(t *testing.T) {
		ext := cardExtraction("1000.00", "850.00", "", buy, pay)
		ext.Balance = parser.BalanceAccount
		out := Assess(ext, nil)
		assert.True(t, out.OK(), out.Reason)
	})

	t.Run("declared totals", func(t *testing.T) {
		ext := cardExtraction("1000.00", "1150.00", "", buy, pay)
		ext.Info.Fields[models.FieldTotalDebits] = "600.00"
		out := Assess(ext, nil)
		assert.Equal(t, "total debits mismatch: statement declares 600.00, parsed 650.00", out.Reason)
	})

	t.Run("empty statement", func(t *testing.T) {
		out := Assess(cardExtraction("0.00", "0.00", ""), nil)
		assert.Equal(t, "no transactions found", out.Reason)
	})

	t.Run("declared empty statement", func(t *testing.T) {
		out := Assess(cardExtraction("0.00", "0.00", "0"), nil)
		assert.True(t, out.OK(), out.Reason)
	})
}

func TestAssess_RejectedLineFailsReconciliation(t *testing.T) {
	// the Tesco line prints a balance that is neither 500.00 - 4.50 nor
	// 500.00 + 4.50, so it carries no direction and is not extracted
	text := `Metro Bank PLC
metrobankonline.co.uk
Account Number: 87654321
Statement Date: 31/01/2024
Opening Balance 500.00
15/01/2024 TESCO STORES 4.50 490.00
20/01/2024 REFUND AMAZON 20.00 520.00
Closing Balance 510.00`

	ext, err := parser.DetectAndExtract([]string{text}, parser.Options{})
	require.NoError(t, err)
	require.Len(t, ext.Transactions, 1)

	out := Assess(ext, nil)
	assert.Equal(t, ActionFail, out.Action)
	assert.Contains(t, out.Reason, "balance mismatch")
}
