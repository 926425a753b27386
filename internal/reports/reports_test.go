package reports

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryhub/internal/catalog"
	"libraryhub/internal/circulation"
	"libraryhub/internal/membership"
	"libraryhub/internal/store/storetest"
)

func TestSummaryOfEmptyLibrary(t *testing.T) {
	st := storetest.New(t)
	svc := NewService(st)

	summary, err := svc.Summary(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, summary.Books)
	assert.Zero(t, summary.Members)
	assert.Zero(t, summary.Transactions)
}

func TestSummary(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()

	issuedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := issuedAt
	lending := circulation.NewService(st, circulation.WithClock(func() time.Time { return clock }))
	books := catalog.NewService(st)
	members := membership.NewService(st)
	svc := NewService(st)

	qty := func(n int) *int { return &n }
	b1, err := books.CreateBook(ctx, catalog.NewBook{Title: "Emma", Author: "Jane Austen", ISBN: "1", Quantity: qty(2)})
	require.NoError(t, err)
	b2, err := books.CreateBook(ctx, catalog.NewBook{Title: "Persuasion", Author: "jane austen", ISBN: "2", Quantity: qty(3)})
	require.NoError(t, err)
	_, err = books.CreateBook(ctx, catalog.NewBook{Title: "Dune", Author: "Frank Herbert", ISBN: "3"})
	require.NoError(t, err)

	m1, err := members.CreateMember(ctx, membership.NewMember{Name: "A", Email: "a@example.com"})
	require.NoError(t, err)
	m2, err := members.CreateMember(ctx, membership.NewMember{Name: "B", Email: "b@example.com"})
	require.NoError(t, err)
	_, err = members.CreateMember(ctx, membership.NewMember{Name: "C", Email: "c@example.com"})
	require.NoError(t, err)

	t1, err := lending.Issue(ctx, m1.ID, b1.ID)
	require.NoError(t, err)
	_, err = lending.Issue(ctx, m2.ID, b2.ID)
	require.NoError(t, err)

	clock = issuedAt.Add(2 * 24 * time.Hour)
	_, err = lending.Return(ctx, t1.ID)
	require.NoError(t, err)
	_, err = lending.Issue(ctx, m2.ID, b1.ID)
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, issuedAt.Add(15*24*time.Hour+time.Hour))
	require.NoError(t, err)

	assert.Equal(t, BookStats{Titles: 3, Copies: 3, UniqueAuthors: 2}, summary.Books)
	assert.Equal(t, MemberStats{Total: 3, TotalDebt: 3.0, WithDebt: 1}, summary.Members)
	assert.Equal(t, int64(3), summary.Transactions.Total)
	assert.Equal(t, int64(2), summary.Transactions.Borrowed)
	assert.Equal(t, int64(1), summary.Transactions.Overdue)
	assert.Equal(t, 3.0, summary.Transactions.FeesCollected)
}

func TestSummaryIsTakenFromOneSnapshot(t *testing.T) {
	st := storetest.New(t)
	ctx := context.Background()
	lending := circulation.NewService(st)
	books := catalog.NewService(st)
	members := membership.NewService(st)
	svc := NewService(st)

	const stock = 3
	qty := stock
	book, err := books.CreateBook(ctx, catalog.NewBook{Title: "Emma", Author: "Jane Austen", ISBN: "1", Quantity: &qty})
	require.NoError(t, err)
	member, err := members.CreateMember(ctx, membership.NewMember{Name: "A", Email: "a@example.com"})
	require.NoError(t, err)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			tx, err := lending.Issue(ctx, member.ID, book.ID)
			if err != nil {
				continue
			}
			_, _ = lending.Return(ctx, tx.ID)
		}
	}()

	for i := 0; i < 50; i++ {
		summary, err := svc.Summary(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(stock), summary.Books.Copies+summary.Transactions.Borrowed,
			"copies on shelf and on loan must add up to the stock")
	}
	close(done)
	wg.Wait()
}
