package circulation

import (
	"time"

	"github.com/google/uuid"
)

// Transaction records one copy of a book lent to a member. It is open
// while ReturnDate and RentFee are nil and is closed exactly once.
type Transaction struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	BookID     *uuid.UUID `json:"book_id" db:"book_id"`
	MemberID   uuid.UUID  `json:"member_id" db:"member_id"`
	IssueDate  time.Time  `json:"issue_date" db:"issue_date"`
	ReturnDate *time.Time `json:"return_date" db:"return_date"`
	RentFee    *float64   `json:"rent_fee" db:"rent_fee"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// Open reports whether the book has not been returned yet.
func (t *Transaction) Open() bool {
	return t.ReturnDate == nil
}

// BookSnapshot holds the identifying fields of the lent book at query time.
type BookSnapshot struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	ISBN   string `json:"isbn"`
}

// MemberSnapshot holds the identifying fields of the borrower at query time.
type MemberSnapshot struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TransactionView is a transaction with its book and member embedded. Book
// is nil when the book no longer exists.
type TransactionView struct {
	Transaction
	Book   *BookSnapshot  `json:"book"`
	Member MemberSnapshot `json:"member"`
}

// OverdueLoan is an open transaction held past the loan period.
type OverdueLoan struct {
	TransactionView
	DaysOverdue int `json:"days_overdue"`
}

// ReturnReceipt is the outcome of closing a transaction.
type ReturnReceipt struct {
	Transaction *Transaction `json:"transaction"`
	Fee         float64      `json:"fee"`
	TotalDebt   float64      `json:"total_debt"`
}

// Filter narrows ListTransactions. Nil fields match everything.
type Filter struct {
	MemberID *uuid.UUID
	BookID   *uuid.UUID
}

type transactionRow struct {
	Transaction
	BookTitle   *string `db:"book_title"`
	BookAuthor  *string `db:"book_author"`
	BookISBN    *string `db:"book_isbn"`
	MemberName  string  `db:"member_name"`
	MemberEmail string  `db:"member_email"`
}

func (r *transactionRow) view() *TransactionView {
	v := &TransactionView{
		Transaction: r.Transaction,
		Member:      MemberSnapshot{Name: r.MemberName, Email: r.MemberEmail},
	}
	if r.BookTitle != nil {
		v.Book = &BookSnapshot{
			Title:  deref(r.BookTitle),
			Author: deref(r.BookAuthor),
			ISBN:   deref(r.BookISBN),
		}
	}
	return v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
