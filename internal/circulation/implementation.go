package circulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/metric"

	"libraryhub/internal/errs"
	"libraryhub/internal/logging"
	"libraryhub/internal/membership"
	"libraryhub/internal/store"
)

// service implements the Service interface.
type service struct {
	store   *store.Store
	logger  logging.Logger
	now     func() time.Time
	meter   metric.Meter
	metrics *instruments
}

// Option configures the circulation service.
type Option func(*service)

// WithLogger sets the logger for lending events.
func WithLogger(logger logging.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source for issue and return dates.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// WithMeter sets the meter lending metrics are recorded on. The global
// meter provider is used otherwise.
func WithMeter(meter metric.Meter) Option {
	return func(s *service) {
		s.meter = meter
	}
}

// NewService creates a new circulation service instance.
func NewService(st *store.Store, opts ...Option) Service {
	s := &service{
		store:  st,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.meter == nil {
		s.meter = defaultMeter()
	}
	s.metrics = newInstruments(s.meter, s.logger)
	return s
}

// Issue lends one copy of a book to a member. The checks run in order:
// member exists, member debt below the limit, book exists, a copy is on
// the shelf. The stock decrement and the new transaction commit together.
func (s *service) Issue(ctx context.Context, memberID, bookID uuid.UUID) (*Transaction, error) {
	var issued *Transaction

	err := s.store.WithTx(ctx, "circulation.issue", func(ctx context.Context, tx *sqlx.Tx) error {
		lock := s.store.LockClause()

		var debt float64
		err := tx.GetContext(ctx, &debt, tx.Rebind(`SELECT outstanding_debt FROM members WHERE id = ?`+lock), memberID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrMemberNotFound
			}
			return fmt.Errorf("load member: %w", err)
		}
		if debt >= membership.MaxDebtLimit {
			return errs.ErrDebtLimitExceeded
		}

		var quantity int
		err = tx.GetContext(ctx, &quantity, tx.Rebind(`SELECT quantity FROM books WHERE id = ?`+lock), bookID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errs.ErrBookNotFound
			}
			return fmt.Errorf("load book: %w", err)
		}
		if quantity <= 0 {
			return errs.ErrBookUnavailable
		}

		now := s.now().UTC()
		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE books SET quantity = quantity - 1, updated_at = ?
			WHERE id = ? AND quantity > 0
		`), now, bookID)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		n, err := store.RowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.ErrBookUnavailable
		}

		t := &Transaction{
			ID:        uuid.New(),
			BookID:    &bookID,
			MemberID:  memberID,
			IssueDate: now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO transactions (id, book_id, member_id, issue_date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`), t.ID, t.BookID, t.MemberID, t.IssueDate, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		issued = t
		return nil
	})
	if err != nil {
		s.rejected(ctx, "issue", err)
		return nil, err
	}

	s.metrics.recordIssued(ctx)
	s.logger.Info("book issued", "transaction_id", issued.ID, "member_id", memberID, "book_id", bookID)
	return issued, nil
}

// Return closes an open transaction, charges the rent fee to the member
// and puts the copy back on the shelf. The debt limit is not applied here:
// a fee owed on an open loan is always charged in full.
func (s *service) Return(ctx context.Context, transactionID uuid.UUID) (*ReturnReceipt, error) {
	var receipt *ReturnReceipt

	err := s.store.WithTx(ctx, "circulation.return", func(ctx context.Context, tx *sqlx.Tx) error {
		t, err := s.getTransaction(ctx, tx, transactionID, s.store.LockClause())
		if err != nil {
			return err
		}
		if !t.Open() {
			return errs.ErrAlreadyReturned
		}

		now := s.now().UTC()
		returned := now
		if returned.Before(t.IssueDate) {
			returned = t.IssueDate
		}
		fee := RentFee(t.IssueDate, returned)

		res, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE transactions SET return_date = ?, rent_fee = ?, updated_at = ?
			WHERE id = ? AND return_date IS NULL
		`), returned, fee, now, t.ID)
		if err != nil {
			return fmt.Errorf("close transaction: %w", err)
		}
		n, err := store.RowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.ErrAlreadyReturned
		}

		res, err = tx.ExecContext(ctx, tx.Rebind(`
			UPDATE members SET outstanding_debt = outstanding_debt + ?, updated_at = ?
			WHERE id = ?
		`), fee, now, t.MemberID)
		if err != nil {
			return fmt.Errorf("charge fee: %w", err)
		}
		if n, err = store.RowsAffected(res); err != nil {
			return err
		}
		if n == 0 {
			return errs.ErrMemberNotFound
		}

		var debt float64
		if err := tx.GetContext(ctx, &debt, tx.Rebind(`SELECT outstanding_debt FROM members WHERE id = ?`), t.MemberID); err != nil {
			return fmt.Errorf("load debt: %w", err)
		}

		// The book may have been deleted since issue; there is no shelf
		// to return the copy to then.
		if t.BookID != nil {
			_, err = tx.ExecContext(ctx, tx.Rebind(`
				UPDATE books SET quantity = quantity + 1, updated_at = ?
				WHERE id = ?
			`), now, *t.BookID)
			if err != nil {
				return fmt.Errorf("restock book: %w", err)
			}
		}

		t.ReturnDate = &returned
		t.RentFee = &fee
		t.UpdatedAt = now
		receipt = &ReturnReceipt{Transaction: t, Fee: fee, TotalDebt: debt}
		return nil
	})
	if err != nil {
		s.rejected(ctx, "return", err)
		return nil, err
	}

	s.metrics.recordReturned(ctx, receipt.Fee)
	s.logger.Info("book returned",
		"transaction_id", transactionID,
		"member_id", receipt.Transaction.MemberID,
		"fee", receipt.Fee,
		"total_debt", receipt.TotalDebt,
	)
	if receipt.TotalDebt > membership.MaxDebtLimit {
		s.logger.Warn("member debt above limit after return",
			"member_id", receipt.Transaction.MemberID,
			"total_debt", receipt.TotalDebt,
		)
	}
	return receipt, nil
}

func (s *service) getTransaction(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, lock string) (*Transaction, error) {
	query := s.store.Rebind(`
		SELECT id, book_id, member_id, issue_date, return_date, rent_fee, created_at, updated_at
		FROM transactions
		WHERE id = ?` + lock)

	t := &Transaction{}
	if err := sqlx.GetContext(ctx, q, t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrTransactionNotFound
		}
		return nil, errs.Storage(fmt.Errorf("get transaction: %w", err))
	}
	return t, nil
}

// ListTransactions returns transactions with their book and member
// embedded, in issue order.
func (s *service) ListTransactions(ctx context.Context, filter Filter) ([]*TransactionView, error) {
	ds := s.transactionsQuery()
	if filter.MemberID != nil {
		ds = ds.Where(goqu.I("t.member_id").Eq(filter.MemberID.String()))
	}
	if filter.BookID != nil {
		ds = ds.Where(goqu.I("t.book_id").Eq(filter.BookID.String()))
	}

	rows, err := s.selectTransactions(ctx, ds)
	if err != nil {
		return nil, err
	}

	views := make([]*TransactionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, row.view())
	}
	return views, nil
}

// ListOverdue returns the open transactions that were issued more than
// LoanPeriodDays before now, most overdue first.
func (s *service) ListOverdue(ctx context.Context, now time.Time) ([]*OverdueLoan, error) {
	ds := s.transactionsQuery().Where(goqu.I("t.return_date").IsNull())

	rows, err := s.selectTransactions(ctx, ds)
	if err != nil {
		return nil, err
	}

	overdue := []*OverdueLoan{}
	for _, row := range rows {
		if !IsOverdue(row.IssueDate, now) {
			continue
		}
		overdue = append(overdue, &OverdueLoan{
			TransactionView: *row.view(),
			DaysOverdue:     DaysOverdue(row.IssueDate, now),
		})
	}
	return overdue, nil
}

func (s *service) transactionsQuery() *goqu.SelectDataset {
	return s.store.Builder().
		From(goqu.T("transactions").As("t")).
		LeftJoin(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("t.book_id")))).
		Join(goqu.T("members").As("m"), goqu.On(goqu.I("m.id").Eq(goqu.I("t.member_id")))).
		Select(
			goqu.I("t.id"),
			goqu.I("t.book_id"),
			goqu.I("t.member_id"),
			goqu.I("t.issue_date"),
			goqu.I("t.return_date"),
			goqu.I("t.rent_fee"),
			goqu.I("t.created_at"),
			goqu.I("t.updated_at"),
			goqu.I("b.title").As("book_title"),
			goqu.I("b.author").As("book_author"),
			goqu.I("b.isbn").As("book_isbn"),
			goqu.I("m.name").As("member_name"),
			goqu.I("m.email").As("member_email"),
		).
		Order(goqu.I("t.issue_date").Asc(), goqu.I("t.id").Asc()).
		Prepared(true)
}

func (s *service) selectTransactions(ctx context.Context, ds *goqu.SelectDataset) ([]*transactionRow, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build transaction query: %w", err)
	}

	rows := []*transactionRow{}
	if err := s.store.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errs.Storage(fmt.Errorf("list transactions: %w", err))
	}
	return rows, nil
}

func (s *service) rejected(ctx context.Context, op string, err error) {
	switch errs.KindOf(err) {
	case errs.KindPolicy, errs.KindConflict, errs.KindNotFound:
		s.metrics.recordRejected(ctx, op, err)
		s.logger.Debug("lending request refused", "operation", op, "reason", errs.CodeOf(err))
	default:
		s.logger.Error("lending request failed", "operation", op, "error", err)
	}
}
