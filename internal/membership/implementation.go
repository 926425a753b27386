package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"libraryhub/internal/errs"
	"libraryhub/internal/logging"
	"libraryhub/internal/store"
)

// service implements the Service interface.
type service struct {
	store  *store.Store
	logger logging.Logger
	now    func() time.Time
}

// Option configures the membership service.
type Option func(*service)

// WithLogger sets the logger for member mutations.
func WithLogger(logger logging.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// NewService creates a new membership service instance.
func NewService(st *store.Store, opts ...Option) Service {
	s := &service{
		store:  st,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListMembers returns every member, oldest first.
func (s *service) ListMembers(ctx context.Context) ([]*Member, error) {
	query, args, err := s.store.Builder().
		From("members").
		Select("id", "name", "email", "phone", "outstanding_debt", "created_at", "updated_at").
		Order(goqu.C("created_at").Asc(), goqu.C("id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build member query: %w", err)
	}

	members := []*Member{}
	if err := s.store.DB().SelectContext(ctx, &members, query, args...); err != nil {
		return nil, errs.Storage(fmt.Errorf("list members: %w", err))
	}
	return members, nil
}

// GetMember retrieves a member together with all of their loans.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*MemberDetail, error) {
	member, err := s.getMember(ctx, s.store.DB(), id, "")
	if err != nil {
		return nil, err
	}

	query := s.store.Rebind(`
		SELECT t.id AS transaction_id, t.book_id, b.title, b.author, b.isbn,
		       t.issue_date, t.return_date, t.rent_fee
		FROM transactions t
		LEFT JOIN books b ON b.id = t.book_id
		WHERE t.member_id = ?
		ORDER BY t.issue_date, t.id
	`)

	loans := []*LoanRecord{}
	if err := s.store.DB().SelectContext(ctx, &loans, query, id); err != nil {
		return nil, errs.Storage(fmt.Errorf("list member transactions: %w", err))
	}

	detail := &MemberDetail{
		Member:           *member,
		Transactions:     loans,
		OpenTransactions: []*LoanRecord{},
	}
	for _, loan := range loans {
		if loan.Open() {
			detail.OpenTransactions = append(detail.OpenTransactions, loan)
		}
	}
	return detail, nil
}

func (s *service) getMember(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, lock string) (*Member, error) {
	query := s.store.Rebind(`
		SELECT id, name, email, phone, outstanding_debt, created_at, updated_at
		FROM members
		WHERE id = ?` + lock)

	member := &Member{}
	if err := sqlx.GetContext(ctx, q, member, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrMemberNotFound
		}
		return nil, errs.Storage(fmt.Errorf("get member: %w", err))
	}
	return member, nil
}

// CreateMember registers a new member with no debt.
func (s *service) CreateMember(ctx context.Context, input NewMember) (*Member, error) {
	now := s.now().UTC()
	member := &Member{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(input.Name),
		Email:     strings.TrimSpace(input.Email),
		Phone:     normalizePhone(input.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := validate(member); err != nil {
		return nil, err
	}

	taken, err := s.emailTaken(ctx, s.store.DB(), member.Email, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, errs.ErrDuplicateEmail
	}

	query := s.store.Rebind(`
		INSERT INTO members (id, name, email, phone, outstanding_debt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = s.store.DB().ExecContext(ctx, query, member.ID, member.Name, member.Email, member.Phone, member.OutstandingDebt, member.CreatedAt, member.UpdatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, errs.ErrDuplicateEmail
		}
		return nil, errs.Storage(fmt.Errorf("insert member: %w", err))
	}

	s.logger.Info("member created", "member_id", member.ID)
	return member, nil
}

// UpdateMember overwrites the fields present in patch. A patched debt must
// stay within [0, MaxDebtLimit].
func (s *service) UpdateMember(ctx context.Context, id uuid.UUID, patch Patch) (*Member, error) {
	var updated *Member

	err := s.store.WithTx(ctx, "membership.update_member", func(ctx context.Context, tx *sqlx.Tx) error {
		member, err := s.getMember(ctx, tx, id, s.store.LockClause())
		if err != nil {
			return err
		}

		if patch.Name != nil {
			member.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Email != nil {
			member.Email = strings.TrimSpace(*patch.Email)
		}
		if patch.Phone != nil {
			member.Phone = normalizePhone(patch.Phone)
		}
		if patch.OutstandingDebt != nil {
			debt := *patch.OutstandingDebt
			if math.IsNaN(debt) || debt < 0 || debt > MaxDebtLimit {
				return errs.Invalid("outstanding_debt must be between 0 and %.2f", MaxDebtLimit)
			}
			member.OutstandingDebt = debt
		}
		if err := validate(member); err != nil {
			return err
		}

		if patch.Email != nil {
			taken, err := s.emailTaken(ctx, tx, member.Email, member.ID)
			if err != nil {
				return err
			}
			if taken {
				return errs.ErrDuplicateEmail
			}
		}

		member.UpdatedAt = s.now().UTC()
		query := tx.Rebind(`
			UPDATE members
			SET name = ?, email = ?, phone = ?, outstanding_debt = ?, updated_at = ?
			WHERE id = ?
		`)
		if _, err := tx.ExecContext(ctx, query, member.Name, member.Email, member.Phone, member.OutstandingDebt, member.UpdatedAt, member.ID); err != nil {
			if store.IsUniqueViolation(err) {
				return errs.ErrDuplicateEmail
			}
			return fmt.Errorf("update member: %w", err)
		}

		updated = member
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("member updated", "member_id", updated.ID)
	return updated, nil
}

// DeleteMember removes a member and all of their transactions.
func (s *service) DeleteMember(ctx context.Context, id uuid.UUID) error {
	var cascaded int64

	err := s.store.WithTx(ctx, "membership.delete_member", func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM transactions WHERE member_id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete member transactions: %w", err)
		}
		if cascaded, err = store.RowsAffected(res); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM members WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete member: %w", err)
		}
		n, err := store.RowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.ErrMemberNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("member deleted", "member_id", id, "transactions_removed", cascaded)
	return nil
}

func (s *service) emailTaken(ctx context.Context, q sqlx.QueryerContext, email string, except uuid.UUID) (bool, error) {
	query := s.store.Rebind(`SELECT COUNT(*) FROM members WHERE email = ? AND id <> ?`)

	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, email, except); err != nil {
		return false, errs.Storage(fmt.Errorf("check email: %w", err))
	}
	return count > 0, nil
}

func normalizePhone(phone *string) *string {
	if phone == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*phone)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func validate(member *Member) error {
	switch {
	case member.Name == "":
		return errs.Invalid("name is required")
	case member.Email == "":
		return errs.Invalid("email is required")
	}
	return nil
}
