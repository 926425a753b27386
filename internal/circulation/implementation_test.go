package circulation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"pgregory.net/rapid"

	"libraryhub/internal/catalog"
	"libraryhub/internal/errs"
	"libraryhub/internal/integrity"
	"libraryhub/internal/membership"
	"libraryhub/internal/store"
	"libraryhub/internal/store/storetest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	st      *store.Store
	clock   *fakeClock
	svc     Service
	books   catalog.Service
	members membership.Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st := storetest.New(t)
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return &fixture{
		st:      st,
		clock:   clock,
		svc:     NewService(st, opts...),
		books:   catalog.NewService(st),
		members: membership.NewService(st),
	}
}

func (f *fixture) book(t *testing.T, quantity int) *catalog.Book {
	t.Helper()
	book, err := f.books.CreateBook(context.Background(), catalog.NewBook{
		Title:    "The Hobbit",
		Author:   "J.R.R. Tolkien",
		ISBN:     uuid.NewString(),
		Quantity: &quantity,
	})
	require.NoError(t, err)
	return book
}

func (f *fixture) member(t *testing.T, debt float64) *membership.Member {
	t.Helper()
	ctx := context.Background()
	member, err := f.members.CreateMember(ctx, membership.NewMember{
		Name:  "Bilbo Baggins",
		Email: uuid.NewString() + "@example.com",
	})
	require.NoError(t, err)
	if debt != 0 {
		member, err = f.members.UpdateMember(ctx, member.ID, membership.Patch{OutstandingDebt: &debt})
		require.NoError(t, err)
	}
	return member
}

func (f *fixture) quantity(t *testing.T, id uuid.UUID) int {
	t.Helper()
	book, err := f.books.GetBook(context.Background(), id)
	require.NoError(t, err)
	return book.Quantity
}

func (f *fixture) debt(t *testing.T, id uuid.UUID) float64 {
	t.Helper()
	member, err := f.members.GetMember(context.Background(), id)
	require.NoError(t, err)
	return member.OutstandingDebt
}

func (f *fixture) transactionCount(t *testing.T) int {
	t.Helper()
	var n int
	require.NoError(t, f.st.DB().Get(&n, `SELECT COUNT(*) FROM transactions`))
	return n
}

func (f *fixture) violations(t *testing.T) []integrity.Violation {
	t.Helper()
	report, err := integrity.New(f.st).Run(context.Background())
	require.NoError(t, err)
	return report.Violations
}

func TestIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 2)
	member := f.member(t, 0)

	tx, err := f.svc.Issue(ctx, member.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, member.ID, tx.MemberID)
	require.NotNil(t, tx.BookID)
	assert.Equal(t, book.ID, *tx.BookID)
	assert.Equal(t, f.clock.Now(), tx.IssueDate)
	assert.True(t, tx.Open())
	assert.Nil(t, tx.RentFee)

	assert.Equal(t, 1, f.quantity(t, book.ID))
	assert.Equal(t, 0.0, f.debt(t, member.ID), "debt is unchanged until return")
}

func TestIssueCheckOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := uuid.New()

	_, err := f.svc.Issue(ctx, missing, missing)
	assert.ErrorIs(t, err, errs.ErrMemberNotFound, "member is checked first")

	indebted := f.member(t, membership.MaxDebtLimit)
	_, err = f.svc.Issue(ctx, indebted.ID, missing)
	assert.ErrorIs(t, err, errs.ErrDebtLimitExceeded, "debt is checked before the book")

	member := f.member(t, 0)
	_, err = f.svc.Issue(ctx, member.ID, missing)
	assert.ErrorIs(t, err, errs.ErrBookNotFound)

	empty := f.book(t, 0)
	_, err = f.svc.Issue(ctx, member.ID, empty.ID)
	assert.ErrorIs(t, err, errs.ErrBookUnavailable)

	assert.Equal(t, 0, f.transactionCount(t), "refused issues write nothing")
	assert.Equal(t, 0, f.quantity(t, empty.ID))
}

func TestIssueDebtCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 5)

	below := f.member(t, 499)
	_, err := f.svc.Issue(ctx, below.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 499.0, f.debt(t, below.ID))

	atLimit := f.member(t, 500)
	_, err = f.svc.Issue(ctx, atLimit.ID, book.ID)
	assert.ErrorIs(t, err, errs.ErrDebtLimitExceeded)
	assert.ErrorIs(t, err, errs.ErrPolicyViolation)

	assert.Equal(t, 4, f.quantity(t, book.ID))
}

func TestReturnSameDayChargesOneDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	member := f.member(t, 0)

	tx, err := f.svc.Issue(ctx, member.ID, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, f.quantity(t, book.ID))

	f.clock.Advance(2 * time.Hour)
	receipt, err := f.svc.Return(ctx, tx.ID)
	require.NoError(t, err)

	assert.Equal(t, 1.50, receipt.Fee)
	assert.Equal(t, 1.50, receipt.TotalDebt)
	require.NotNil(t, receipt.Transaction.ReturnDate)
	assert.Equal(t, f.clock.Now(), *receipt.Transaction.ReturnDate)
	require.NotNil(t, receipt.Transaction.RentFee)
	assert.Equal(t, 1.50, *receipt.Transaction.RentFee)

	assert.Equal(t, 1, f.quantity(t, book.ID))
	assert.Equal(t, 1.50, f.debt(t, member.ID))
}

func TestReturnChargesWholeDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	member := f.member(t, 10)

	tx, err := f.svc.Issue(ctx, member.ID, book.ID)
	require.NoError(t, err)

	f.clock.Advance(3*day + 20*time.Hour)
	receipt, err := f.svc.Return(ctx, tx.ID)
	require.NoError(t, err)

	assert.Equal(t, 4.50, receipt.Fee)
	assert.Equal(t, 14.50, receipt.TotalDebt)
}

func TestReturnTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	member := f.member(t, 0)

	tx, err := f.svc.Issue(ctx, member.ID, book.ID)
	require.NoError(t, err)
	_, err = f.svc.Return(ctx, tx.ID)
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, tx.ID)
	assert.ErrorIs(t, err, errs.ErrAlreadyReturned)

	assert.Equal(t, 1.50, f.debt(t, member.ID), "no second fee")
	assert.Equal(t, 1, f.quantity(t, book.ID), "no second restock")
}

func TestReturnUnknownTransaction(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Return(context.Background(), uuid.New())
	assert.ErrorIs(t, err, errs.ErrTransactionNotFound)
}

func TestReturnMayExceedDebtCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	member := f.member(t, 499.5)

	tx, err := f.svc.Issue(ctx, member.ID, book.ID)
	require.NoError(t, err)

	f.clock.Advance(10 * day)
	receipt, err := f.svc.Return(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, 15.0, receipt.Fee)
	assert.Equal(t, 514.5, receipt.TotalDebt)

	_, err = f.svc.Issue(ctx, member.ID, book.ID)
	assert.ErrorIs(t, err, errs.ErrDebtLimitExceeded)
}

func TestReturnWithoutBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	member := f.member(t, 0)

	id := uuid.New()
	issued := f.clock.Now().Add(-2 * day)
	_, err := f.st.DB().Exec(f.st.Rebind(`
		INSERT INTO transactions (id, book_id, member_id, issue_date, created_at, updated_at)
		VALUES (?, NULL, ?, ?, ?, ?)
	`), id, member.ID, issued, issued, issued)
	require.NoError(t, err)

	receipt, err := f.svc.Return(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, receipt.Transaction.BookID)
	assert.Equal(t, 3.0, receipt.Fee)
	assert.Equal(t, 3.0, f.debt(t, member.ID))
}

func TestReturnAfterBookDeletedIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	member := f.member(t, 0)

	tx, err := f.svc.Issue(ctx, member.ID, book.ID)
	require.NoError(t, err)
	require.NoError(t, f.books.DeleteBook(ctx, book.ID))

	_, err = f.svc.Return(ctx, tx.ID)
	assert.ErrorIs(t, err, errs.ErrTransactionNotFound)
	assert.Equal(t, 0.0, f.debt(t, member.ID))
}

func TestConcurrentIssueNeverOversells(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)

	const borrowers = 8
	members := make([]*membership.Member, borrowers)
	for i := range members {
		members[i] = f.member(t, 0)
	}

	var wg sync.WaitGroup
	results := make([]error, borrowers)
	for i, m := range members {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			_, results[i] = f.svc.Issue(ctx, id, book.ID)
		}(i, m.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, errs.ErrBookUnavailable)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, f.quantity(t, book.ID))
	assert.Equal(t, 1, f.transactionCount(t))
	assert.Empty(t, f.violations(t))
}

func TestListTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hobbit := f.book(t, 3)
	other := f.book(t, 3)
	alice := f.member(t, 0)
	bob := f.member(t, 0)

	t1, err := f.svc.Issue(ctx, alice.ID, hobbit.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Issue(ctx, bob.ID, hobbit.ID)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.Issue(ctx, alice.ID, other.ID)
	require.NoError(t, err)

	all, err := f.svc.ListTransactions(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, t1.ID, all[0].ID)
	require.NotNil(t, all[0].Book)
	assert.Equal(t, hobbit.Title, all[0].Book.Title)
	assert.Equal(t, hobbit.ISBN, all[0].Book.ISBN)
	assert.Equal(t, alice.Email, all[0].Member.Email)

	byMember, err := f.svc.ListTransactions(ctx, Filter{MemberID: &alice.ID})
	require.NoError(t, err)
	assert.Len(t, byMember, 2)

	byBook, err := f.svc.ListTransactions(ctx, Filter{BookID: &hobbit.ID})
	require.NoError(t, err)
	assert.Len(t, byBook, 2)

	both, err := f.svc.ListTransactions(ctx, Filter{MemberID: &bob.ID, BookID: &hobbit.ID})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, bob.Name, both[0].Member.Name)

	none, err := f.svc.ListTransactions(ctx, Filter{MemberID: &bob.ID, BookID: &other.ID})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 3)
	member := f.member(t, 0)

	old, err := f.svc.Issue(ctx, member.ID, book.ID)
	require.NoError(t, err)
	returned, err := f.svc.Issue(ctx, member.ID, book.ID)
	require.NoError(t, err)

	f.clock.Advance(10 * day)
	_, err = f.svc.Issue(ctx, member.ID, book.ID)
	require.NoError(t, err)
	f.clock.Advance(7*day + time.Hour)
	_, err = f.svc.Return(ctx, returned.ID)
	require.NoError(t, err)

	overdue, err := f.svc.ListOverdue(ctx, f.clock.Now())
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, old.ID, overdue[0].ID)
	assert.Equal(t, 3, overdue[0].DaysOverdue)
	require.NotNil(t, overdue[0].Book)
	assert.Equal(t, book.Title, overdue[0].Book.Title)
}

func TestLendingMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	f := newFixture(t, WithMeter(provider.Meter("test")))
	ctx := context.Background()
	book := f.book(t, 1)
	member := f.member(t, 0)

	tx, err := f.svc.Issue(ctx, member.ID, book.ID)
	require.NoError(t, err)
	_, err = f.svc.Issue(ctx, member.ID, book.ID)
	require.ErrorIs(t, err, errs.ErrBookUnavailable)
	_, err = f.svc.Return(ctx, tx.ID)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(1), counterTotal(rm, "libraryhub.circulation.issued"))
	assert.Equal(t, int64(1), counterTotal(rm, "libraryhub.circulation.returned"))
	assert.Equal(t, int64(1), counterTotal(rm, "libraryhub.circulation.rejected"))
}

func counterTotal(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// Stock on the shelf plus open loans always equals the stock the book was
// created with, and every member's debt is the sum of the fees charged to
// them.
func TestLendingConservesStockAndDebt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rapid.Check(t, func(rt *rapid.T) {
		stock := rapid.IntRange(0, 4).Draw(rt, "stock")
		book := f.book(t, stock)

		members := make([]*membership.Member, rapid.IntRange(1, 3).Draw(rt, "members"))
		for i := range members {
			members[i] = f.member(t, 0)
		}

		open := []*Transaction{}
		charged := map[uuid.UUID]float64{}

		steps := rapid.IntRange(1, 15).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			f.clock.Advance(time.Duration(rapid.IntRange(0, 72).Draw(rt, fmt.Sprintf("hours%d", i))) * time.Hour)

			if len(open) > 0 && rapid.Bool().Draw(rt, fmt.Sprintf("return%d", i)) {
				idx := rapid.IntRange(0, len(open)-1).Draw(rt, fmt.Sprintf("which%d", i))
				receipt, err := f.svc.Return(ctx, open[idx].ID)
				if err != nil {
					rt.Fatalf("return: %v", err)
				}
				charged[receipt.Transaction.MemberID] += receipt.Fee
				open = append(open[:idx], open[idx+1:]...)
			} else {
				m := members[rapid.IntRange(0, len(members)-1).Draw(rt, fmt.Sprintf("member%d", i))]
				tx, err := f.svc.Issue(ctx, m.ID, book.ID)
				switch {
				case err == nil:
					open = append(open, tx)
				case len(open) == stock && errs.CodeOf(err) == errs.CodeOf(errs.ErrBookUnavailable):
				default:
					rt.Fatalf("issue with %d of %d copies out: %v", len(open), stock, err)
				}
			}

			current, err := f.books.GetBook(ctx, book.ID)
			if err != nil {
				rt.Fatalf("get book: %v", err)
			}
			if current.Quantity+len(open) != stock {
				rt.Fatalf("quantity %d with %d open loans, stock %d", current.Quantity, len(open), stock)
			}
		}

		for _, m := range members {
			detail, err := f.members.GetMember(ctx, m.ID)
			if err != nil {
				rt.Fatalf("get member: %v", err)
			}
			if diff := detail.OutstandingDebt - charged[m.ID]; diff > 1e-9 || diff < -1e-9 {
				rt.Fatalf("member debt %v, charged %v", detail.OutstandingDebt, charged[m.ID])
			}
			if len(detail.OpenTransactions) > len(open) {
				rt.Fatalf("member has %d open loans, only %d exist", len(detail.OpenTransactions), len(open))
			}
		}

		if v := f.violations(t); len(v) > 0 {
			rt.Fatalf("integrity: %v", v)
		}
	})
}
