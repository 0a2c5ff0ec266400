package parser

import (
	"github.com/zee14913913/replit-credit-pilot-sub005/internal/models"
)

var (
	cardRequired = []models.Field{
		models.FieldCardNumber, models.FieldStatementDate,
		models.FieldPreviousBalance, models.FieldCurrentBalance,
	}
	accountRequired = []models.Field{
		models.FieldCardNumber, models.FieldPreviousBalance, models.FieldCurrentBalance,
	}
)

// cardFields returns the label set shared by card statements, with the
// bank specific patterns tried first.
func cardFields(overrides map[models.Field][]FieldPattern) map[models.Field][]FieldPattern {
	base := map[models.Field][]FieldPattern{
		models.FieldCustomerName:     {label("Customer Name", "Cardholder Name", "Card Holder", "Name")},
		models.FieldCardNumber:       {label("Card Number", "Card No.", "Card No")},
		models.FieldStatementDate:    {label("Statement Date")},
		models.FieldDueDate:          {label("Payment Due Date", "Due Date")},
		models.FieldPreviousBalance:  {label("Previous Statement Balance", "Previous Balance")},
		models.FieldCreditLimit:      {label("Combined Credit Limit", "Credit Limit")},
		models.FieldCurrentBalance:   {label("Current Balance", "New Balance", "Statement Balance")},
		models.FieldMinimumPayment:   {label("Minimum Payment Due", "Minimum Payment")},
		models.FieldTransactionCount: {label("Number of Transactions", "No. of Transactions")},
		models.FieldTotalDebits:      {label("Total Debits", "Total Purchases")},
		models.FieldTotalCredits:     {label("Total Credits", "Total Payments")},
	}
	return merge(base, overrides)
}

// accountFields is the current-account equivalent of cardFields. Opening
// and closing balances land in the previous and current balance fields.
func accountFields(overrides map[models.Field][]FieldPattern) map[models.Field][]FieldPattern {
	base := map[models.Field][]FieldPattern{
		models.FieldCustomerName:     {label("Account Holder", "Account Name", "Name")},
		models.FieldCardNumber:       {label("Account Number", "Account No.", "Account No"), findAccountNumber},
		models.FieldSortCode:         {label("Sort Code"), findSortCode},
		models.FieldStatementDate:    {label("Statement Date"), periodEnd()},
		models.FieldPreviousBalance:  {label("Opening Balance", "Balance Brought Forward", "Balance B/F")},
		models.FieldCurrentBalance:   {label("Closing Balance", "Balance Carried Forward", "Balance C/F")},
		models.FieldTransactionCount: {label("Number of Transactions", "No. of Transactions")},
		models.FieldTotalDebits:      {label("Total Paid Out", "Total Debits", "Total Withdrawals")},
		models.FieldTotalCredits:     {label("Total Paid In", "Total Credits", "Total Deposits")},
	}
	return merge(base, overrides)
}

func merge(base, overrides map[models.Field][]FieldPattern) map[models.Field][]FieldPattern {
	for f, patterns := range overrides {
		base[f] = append(append([]FieldPattern{}, patterns...), base[f]...)
	}
	return base
}

var maybankTemplate = Template{
	ID:   models.BankMaybank,
	Name: "Maybank",
	Anchors: []Anchor{
		{"Malayan Banking Berhad", 2},
		{"Maybank", 2},
		{"maybank2u.com.my", 1},
	},
	DateLayouts:  []string{"02/01", "2/1"},
	Sign:         SignSuffix,
	CreditMarker: "CR",
	Balance:      BalanceCard,
	Required:     cardRequired,
	Fields: cardFields(map[models.Field][]FieldPattern{
		models.FieldStatementDate:   {label("Tarikh Penyata")},
		models.FieldDueDate:         {label("Tarikh Akhir Pembayaran")},
		models.FieldCurrentBalance:  {label("Baki Semasa")},
		models.FieldMinimumPayment:  {label("Bayaran Minimum")},
		models.FieldPreviousBalance: {label("Baki Penyata Terdahulu")},
	}),
	Lines: []LinePattern{suffixLine("posting-transaction-date", dateSlashDM, "CR", true)},
}

var cimbTemplate = Template{
	ID:   models.BankCIMB,
	Name: "CIMB Bank",
	Anchors: []Anchor{
		{"CIMB Bank Berhad", 2},
		{"CIMB", 2},
		{"cimbclicks", 1},
	},
	DateLayouts:  []string{"02 Jan", "2 Jan"},
	Sign:         SignSuffix,
	CreditMarker: "CR",
	Balance:      BalanceCard,
	Required:     cardRequired,
	Fields: cardFields(map[models.Field][]FieldPattern{
		models.FieldCurrentBalance: {label("Total Outstanding Balance")},
	}),
	Lines: []LinePattern{suffixLine("day-month", dateDayMon, "CR", false)},
}

var publicBankTemplate = Template{
	ID:   models.BankPublicBank,
	Name: "Public Bank",
	Anchors: []Anchor{
		{"Public Bank Berhad", 2},
		{"Public Bank", 2},
		{"pbebank.com", 1},
	},
	DateLayouts:  []string{"02 Jan", "2 Jan"},
	Sign:         SignSuffix,
	CreditMarker: "CR",
	Balance:      BalanceCard,
	Required:     cardRequired,
	Fields: cardFields(map[models.Field][]FieldPattern{
		models.FieldStatementDate:  {below("Statement Date")},
		models.FieldDueDate:        {below("Payment Due Date")},
		models.FieldCardNumber:     {below("Card Number")},
		models.FieldCurrentBalance: {label("Balance Due")},
	}),
	Lines: []LinePattern{suffixLine("day-month", dateDayMon, "CR", false)},
}

var rhbTemplate = Template{
	ID:   models.BankRHB,
	Name: "RHB Bank",
	Anchors: []Anchor{
		{"RHB Bank Berhad", 2},
		{"RHB", 2},
		{"rhbgroup.com", 1},
	},
	DateLayouts:  []string{"02Jan", "2Jan"},
	Sign:         SignSuffix,
	CreditMarker: "CR",
	Balance:      BalanceCard,
	Required:     cardRequired,
	Fields: cardFields(map[models.Field][]FieldPattern{
		models.FieldPreviousBalance: {label("Balance From Previous Statement")},
		models.FieldCurrentBalance:  {label("Closing Balance")},
	}),
	Lines: []LinePattern{suffixLine("compact-day-month", `\d{2}[A-Za-z]{3}`, "CR", false)},
}

var hongLeongTemplate = Template{
	ID:   models.BankHongLeong,
	Name: "Hong Leong Bank",
	Anchors: []Anchor{
		{"Hong Leong Bank", 2},
		{"HLB Connect", 1},
		{"hlb.com.my", 1},
	},
	DateLayouts:  []string{"02 Jan 2006", "2 Jan 2006"},
	Sign:         SignSuffix,
	CreditMarker: "CR",
	Balance:      BalanceCard,
	Required:     cardRequired,
	Fields:       cardFields(nil),
	Lines:        []LinePattern{suffixLine("day-month-year", dateDayMonYear, "CR", false)},
}

var ambankTemplate = Template{
	ID:   models.BankAmBank,
	Name: "AmBank",
	Anchors: []Anchor{
		{"AmBank (M) Berhad", 2},
		{"AmBank", 2},
		{"ambankgroup.com", 1},
	},
	DateLayouts: []string{"02/01/2006", "02/01/06"},
	Sign:        SignNegative,
	Balance:     BalanceCard,
	Required:    cardRequired,
	Fields: cardFields(map[models.Field][]FieldPattern{
		models.FieldCardNumber: {label("Account Number")},
	}),
	Lines: []LinePattern{negativeLine("slash-date", dateSlashDMY, false)},
}

var uobTemplate = Template{
	ID:   models.BankUOB,
	Name: "UOB",
	Anchors: []Anchor{
		{"United Overseas Bank", 2},
		{"UOB", 2},
		{"uob.com.my", 1},
	},
	DateLayouts:  []string{"02 Jan", "2 Jan"},
	Sign:         SignSuffix,
	CreditMarker: "CR",
	Balance:      BalanceCard,
	Required:     cardRequired,
	Fields: cardFields(map[models.Field][]FieldPattern{
		models.FieldPreviousBalance: {label("Previous Balance Brought Forward")},
	}),
	Lines: []LinePattern{suffixLine("post-then-transaction-date", dateDayMon, "CR", true)},
}

var ocbcTemplate = Template{
	ID:   models.BankOCBC,
	Name: "OCBC Bank",
	Anchors: []Anchor{
		{"OCBC Bank", 2},
		{"OCBC", 1},
		{"ocbc.com.my", 1},
	},
	DateLayouts: []string{"02/01/2006", "02 Jan 2006"},
	Sign:        SignColumns,
	Balance:     BalanceAccount,
	Required:    accountRequired,
	Fields: accountFields(map[models.Field][]FieldPattern{
		models.FieldPreviousBalance: {label("Balance B/F")},
		models.FieldCurrentBalance:  {label("Balance C/F")},
	}),
	Lines: []LinePattern{tabColumns},
}

var hsbcTemplate = Template{
	ID:   models.BankHSBC,
	Name: "HSBC",
	Anchors: []Anchor{
		{"HSBC UK Bank", 2},
		{"HSBC", 2},
		{"hsbc.co.uk", 1},
	},
	DateLayouts: []string{"02 Jan 06", "2 Jan 06", "02 Jan 2006"},
	Sign:        SignColumns,
	Balance:     BalanceAccount,
	Required:    accountRequired,
	Fields:      accountFields(nil),
	Lines: []LinePattern{
		tabColumns,
		runningBalanceLine("text-date-balance", dateDayMonYear),
	},
	Continuation: true,
}

var standardCharteredTemplate = Template{
	ID:   models.BankStandardChartered,
	Name: "Standard Chartered",
	Anchors: []Anchor{
		{"Standard Chartered", 2},
		{"sc.com/my", 1},
	},
	DateLayouts:  []string{"02/01/06", "02/01/2006"},
	Sign:         SignSuffix,
	CreditMarker: "CR",
	Balance:      BalanceCard,
	Required:     cardRequired,
	Fields: cardFields(map[models.Field][]FieldPattern{
		models.FieldCurrentBalance: {label("Outstanding Balance")},
	}),
	Lines: []LinePattern{suffixLine("slash-date", dateSlashDMY, "CR", false)},
}

var allianceTemplate = Template{
	ID:   models.BankAlliance,
	Name: "Alliance Bank",
	Anchors: []Anchor{
		{"Alliance Bank", 2},
		{"allianceonline", 1},
	},
	DateLayouts:  []string{"02-01-2006", "2-1-2006"},
	Sign:         SignSuffix,
	CreditMarker: "CR",
	Balance:      BalanceCard,
	Required:     cardRequired,
	Fields:       cardFields(nil),
	Lines:        []LinePattern{suffixLine("dash-date", dateDashDMY, "CR", false)},
}

var affinTemplate = Template{
	ID:   models.BankAffin,
	Name: "Affin Bank",
	Anchors: []Anchor{
		{"Affin Bank", 2},
		{"AffinAlways", 1},
		{"affinbank.com.my", 1},
	},
	DateLayouts: []string{"02-01-2006", "02-01-06"},
	Sign:        SignNegative,
	Balance:     BalanceCard,
	Required:    cardRequired,
	Fields:      cardFields(nil),
	Lines:       []LinePattern{negativeLine("dash-date", dateDashDMY, false)},
}

var citibankTemplate = Template{
	ID:   models.BankCitibank,
	Name: "Citibank",
	Anchors: []Anchor{
		{"Citibank", 2},
		{"Citi", 1},
	},
	DateLayouts: []string{"Jan 02", "Jan 2"},
	Sign:        SignNegative,
	Balance:     BalanceCard,
	Required:    cardRequired,
	Fields: cardFields(map[models.Field][]FieldPattern{
		models.FieldCurrentBalance: {label("Total Amount Due")},
	}),
	Lines: []LinePattern{
		negativeLine("month-day-points", dateMonDay, true),
		negativeLine("month-day", dateMonDay, false),
	},
}

var barclaysTemplate = Template{
	ID:   models.BankBarclays,
	Name: "Barclays",
	Anchors: []Anchor{
		{"Barclays", 2},
		{"barclays.co.uk", 1},
	},
	DateLayouts: []string{"2 Jan", "02 Jan"},
	Sign:        SignColumns,
	Balance:     BalanceAccount,
	Required:    accountRequired,
	Fields: accountFields(map[models.Field][]FieldPattern{
		models.FieldPreviousBalance: {label("Start Balance")},
		models.FieldCurrentBalance:  {label("End Balance")},
	}),
	Lines:        []LinePattern{tabColumns},
	Continuation: true,
}

var metroTemplate = Template{
	ID:   models.BankMetro,
	Name: "Metro Bank",
	Anchors: []Anchor{
		{"Metro Bank", 2},
		{"metrobankonline", 1},
	},
	DateLayouts: []string{"02/01/2006", "2/1/2006"},
	Sign:        SignColumns,
	Balance:     BalanceAccount,
	Required:    accountRequired,
	Fields:      accountFields(nil),
	Lines: []LinePattern{
		tabColumns,
		runningBalanceLine("slash-date-balance", dateSlashDMY),
	},
}

// universalTemplate is used when no registered layout scores high enough.
// It only accepts a statement with an opening and closing balance and at
// least one loosely structured transaction line.
var universalTemplate = Template{
	ID:      models.BankUniversal,
	Name:    "Universal",
	Sign:    SignNegative,
	Balance: BalanceCard,
	Required: []models.Field{
		models.FieldPreviousBalance, models.FieldCurrentBalance,
	},
	Fields: map[models.Field][]FieldPattern{
		models.FieldCustomerName: {label("Customer Name", "Name")},
		models.FieldCardNumber: {
			label("Card Number", "Account Number", "Card No.", "Account No."),
			findAccountNumber,
		},
		models.FieldStatementDate: {label("Statement Date"), periodEnd()},
		models.FieldPreviousBalance: {label(
			"Previous Balance", "Opening Balance", "Balance Brought Forward", "Balance B/F",
		)},
		models.FieldCurrentBalance: {label(
			"Current Balance", "Closing Balance", "New Balance", "Outstanding Balance",
			"Balance Carried Forward", "Balance C/F",
		)},
		models.FieldTransactionCount: {label("Number of Transactions")},
	},
	Lines: []LinePattern{
		negativeLine("loose", `\d{1,2}[/\- ](?:\d{1,2}|[A-Za-z]{3})(?:[/\- ]\d{2,4})?`, false),
	},
}
