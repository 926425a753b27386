package membership

import (
	"time"

	"github.com/google/uuid"
)

// MaxDebtLimit is the highest outstanding debt a member may carry when a
// new loan is issued or the debt is edited directly.
const MaxDebtLimit = 500.0

// Member represents a library member.
type Member struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Email           string    `json:"email" db:"email"`
	Phone           *string   `json:"phone" db:"phone"`
	OutstandingDebt float64   `json:"outstanding_debt" db:"outstanding_debt"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// LoanRecord is one of the member's transactions joined with the book it
// lent. Book fields are nil when the book row is gone.
type LoanRecord struct {
	TransactionID uuid.UUID  `json:"transaction_id" db:"transaction_id"`
	BookID        *uuid.UUID `json:"book_id" db:"book_id"`
	Title         *string    `json:"title" db:"title"`
	Author        *string    `json:"author" db:"author"`
	ISBN          *string    `json:"isbn" db:"isbn"`
	IssueDate     time.Time  `json:"issue_date" db:"issue_date"`
	ReturnDate    *time.Time `json:"return_date" db:"return_date"`
	RentFee       *float64   `json:"rent_fee" db:"rent_fee"`
}

// Open reports whether the loan has not been returned yet.
func (l *LoanRecord) Open() bool {
	return l.ReturnDate == nil
}

// MemberDetail is a member with their loan history, derived at read time.
type MemberDetail struct {
	Member
	Transactions     []*LoanRecord `json:"transactions"`
	OpenTransactions []*LoanRecord `json:"open_transactions"`
}

// NewMember is the input to CreateMember.
type NewMember struct {
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Phone *string `json:"phone,omitempty"`
}

// Patch carries a partial update. Nil fields keep their stored value; an
// empty Phone clears it.
type Patch struct {
	Name            *string  `json:"name,omitempty"`
	Email           *string  `json:"email,omitempty"`
	Phone           *string  `json:"phone,omitempty"`
	OutstandingDebt *float64 `json:"outstanding_debt,omitempty"`
}
