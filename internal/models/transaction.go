package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of the statement a transaction was booked on.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// Category is the ownership/category bucket assigned by the classifier.
type Category string

const (
	CategorySupplierOwner     Category = "supplier_owner"
	CategorySupplierGZ        Category = "supplier_gz"
	CategoryGZIndirectPayment Category = "gz_indirect_payment"
	CategoryOwnerPayment      Category = "owner_payment"
	CategoryFeeOwner          Category = "fee_owner"
	CategoryFeeGZ             Category = "fee_gz"
	CategoryExpenseOwner      Category = "expense_owner"
	CategoryExpenseGZ         Category = "expense_gz"
)

// Holder identifies whose card or account a statement belongs to.
type Holder string

const (
	HolderOwner Holder = "owner"
	HolderGZ    Holder = "gz"
)

// RawTransaction is one transaction line as produced by the extractor,
// before it is attached to a document.
type RawTransaction struct {
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"` // unsigned magnitude
	Direction   Direction       `json:"direction"`
	Points      string          `json:"points,omitempty"`
	Line        int             `json:"line"`
	ParseMethod string          `json:"parseMethod,omitempty"` // which line pattern matched
}

// Signed returns the purchase-normalized amount: debits positive, credits negative.
func (t RawTransaction) Signed() decimal.Decimal {
	if t.Direction == Credit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Transaction is a persisted statement transaction.
type Transaction struct {
	ID          string          `json:"id"`
	DocumentID  string          `json:"documentId"`
	Seq         int             `json:"seq"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"` // signed, debit positive
	Direction   Direction       `json:"direction"`
	Points      string          `json:"points,omitempty"`
	Category    Category        `json:"category,omitempty"`
	TransferID  string          `json:"transferId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Magnitude returns the absolute transaction amount.
func (t Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}

// AdvanceTransfer is a GZ-originated cash advance to a customer account.
// RemainingBalance is a cache of Amount minus the sum of its allocation links.
type AdvanceTransfer struct {
	ID               string          `json:"id"`
	CustomerID       string          `json:"customerId"`
	Amount           decimal.Decimal `json:"amount"`
	TransferDate     time.Time       `json:"transferDate"`
	FromAccount      string          `json:"fromAccount,omitempty"`
	ToAccount        string          `json:"toAccount,omitempty"`
	Purpose          string          `json:"purpose,omitempty"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// AllocationLink joins one payment transaction to one advance transfer.
type AllocationLink struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transactionId"`
	TransferID    string          `json:"transferId"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"createdAt"`
}
