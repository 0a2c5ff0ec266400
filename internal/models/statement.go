package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankType identifies a registered bank statement template.
type BankType string

const (
	BankMaybank           BankType = "maybank"
	BankCIMB              BankType = "cimb"
	BankPublicBank        BankType = "public_bank"
	BankRHB               BankType = "rhb"
	BankHongLeong         BankType = "hong_leong"
	BankAmBank            BankType = "ambank"
	BankUOB               BankType = "uob"
	BankOCBC              BankType = "ocbc"
	BankHSBC              BankType = "hsbc"
	BankStandardChartered BankType = "standard_chartered"
	BankAlliance          BankType = "alliance"
	BankAffin             BankType = "affin"
	BankCitibank          BankType = "citibank"
	BankBarclays          BankType = "barclays"
	BankMetro             BankType = "metro"

	// BankUniversal is the generic fallback layout.
	BankUniversal BankType = "universal"
)

// Field names a statement-level value.
type Field string

const (
	FieldCustomerName     Field = "customer_name"
	FieldCardNumber       Field = "card_number"
	FieldSortCode         Field = "sort_code"
	FieldStatementDate    Field = "statement_date"
	FieldDueDate          Field = "due_date"
	FieldPreviousBalance  Field = "previous_balance"
	FieldCreditLimit      Field = "credit_limit"
	FieldCurrentBalance   Field = "current_balance"
	FieldMinimumPayment   Field = "minimum_payment"
	FieldTransactionCount Field = "transaction_count"
	FieldTotalDebits      Field = "total_debits"
	FieldTotalCredits     Field = "total_credits"
)

// StatementInfo holds the normalized statement-level fields.
// Dates are ISO calendar dates, amounts are decimal strings.
type StatementInfo struct {
	Bank    BankType         `json:"bank"`
	Fields  map[Field]string `json:"fields"`
	Missing []Field          `json:"missing,omitempty"`
}

// Get returns a field value and whether it was extracted.
func (s *StatementInfo) Get(f Field) (string, bool) {
	if s == nil || s.Fields == nil {
		return "", false
	}
	v, ok := s.Fields[f]
	return v, ok
}

// Amount returns a field as a decimal.
func (s *StatementInfo) Amount(f Field) (decimal.Decimal, bool) {
	v, ok := s.Get(f)
	if !ok {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Date returns a field as a calendar date.
func (s *StatementInfo) Date(f Field) (time.Time, bool) {
	v, ok := s.Get(f)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DateLayout is the ISO calendar date layout used everywhere past extraction.
const DateLayout = "2006-01-02"

// Status is a document lifecycle state.
type Status string

const (
	StatusUploaded  Status = "uploaded"
	StatusValidated Status = "validated"
	StatusFailed    Status = "failed"
	StatusDuplicate Status = "duplicate"
	StatusActive    Status = "active"
	StatusPosted    Status = "posted"
	StatusArchived  Status = "archived"
)

// StatementDocument is one uploaded statement file.
type StatementDocument struct {
	ID            string         `json:"id"`
	CustomerID    string         `json:"customerId"`
	BankName      string         `json:"bankName,omitempty"`
	AccountNumber string         `json:"accountNumber"`
	Holder        Holder         `json:"holder"`
	Period        string         `json:"period"` // YYYY-MM
	StorageRef    string         `json:"storageRef"`
	Checksum      string         `json:"checksum"`
	Filename      string         `json:"filename,omitempty"`
	Bank          BankType       `json:"bank,omitempty"`
	Status        Status         `json:"status"`
	StatusReason  string         `json:"statusReason,omitempty"`
	DuplicateOf   string         `json:"duplicateOf,omitempty"`
	DeclaredCount *int           `json:"declaredCount,omitempty"`
	ParsedCount   int            `json:"parsedCount"`
	Info          *StatementInfo `json:"info,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// DuplicateKey identifies the (customer, account, period) slot a document occupies.
type DuplicateKey struct {
	CustomerID    string
	AccountNumber string
	Period        string
}

// Key returns the document's duplicate-detection key.
func (d *StatementDocument) Key() DuplicateKey {
	return DuplicateKey{CustomerID: d.CustomerID, AccountNumber: d.AccountNumber, Period: d.Period}
}

// String renders the key for lock names and log fields.
func (k DuplicateKey) String() string {
	return k.CustomerID + "/" + k.AccountNumber + "/" + k.Period
}
