package domain

import "time"

// ListingCreditCost is the number of credits one listing generation consumes.
const ListingCreditCost = 1

// User represents an account with a purchasable credit balance.
type User struct {
	ID        string
	Email     string
	Name      string
	Credits   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreditTransactionType enumerates ledger entry kinds.
type CreditTransactionType string

const (
	CreditDeduction CreditTransactionType = "deduction"
	CreditRefund    CreditTransactionType = "refund"
	CreditPurchase  CreditTransactionType = "purchase"
)

// CreditTransaction is one row of the append-only credit ledger.
type CreditTransaction struct {
	ID          string
	UserID      string
	Type        CreditTransactionType
	Amount      int
	Description string
	CreatedAt   time.Time
}
