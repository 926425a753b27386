// Package reports computes the dashboard summary across the catalog,
// membership and lending records.
package reports

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"libraryhub/internal/circulation"
	"libraryhub/internal/httpx"
	"libraryhub/internal/store"
)

type BookStats struct {
	Titles        int64 `json:"titles" db:"titles"`
	Copies        int64 `json:"copies" db:"copies"`
	UniqueAuthors int64 `json:"unique_authors" db:"unique_authors"`
}

type MemberStats struct {
	Total     int64   `json:"total" db:"total"`
	TotalDebt float64 `json:"total_debt" db:"total_debt"`
	WithDebt  int64   `json:"with_debt" db:"with_debt"`
}

type TransactionStats struct {
	Total         int64   `json:"total" db:"total"`
	Borrowed      int64   `json:"borrowed" db:"borrowed"`
	Overdue       int64   `json:"overdue" db:"-"`
	FeesCollected float64 `json:"fees_collected" db:"fees_collected"`
}

// Summary is a point in time snapshot of the library.
type Summary struct {
	GeneratedAt  time.Time        `json:"generated_at"`
	Books        BookStats        `json:"books"`
	Members      MemberStats      `json:"members"`
	Transactions TransactionStats `json:"transactions"`
}

type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Summary aggregates the current state from a single snapshot. Overdue
// loans are counted as of now.
func (s *Service) Summary(ctx context.Context, now time.Time) (*Summary, error) {
	summary := &Summary{GeneratedAt: now.UTC()}

	err := s.store.ReadTx(ctx, "reports.summary", func(ctx context.Context, tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &summary.Books, `
			SELECT COUNT(*) AS titles,
			       COALESCE(SUM(quantity), 0) AS copies,
			       COUNT(DISTINCT LOWER(author)) AS unique_authors
			FROM books
		`)
		if err != nil {
			return fmt.Errorf("book stats: %w", err)
		}

		err = tx.GetContext(ctx, &summary.Members, `
			SELECT COUNT(*) AS total,
			       COALESCE(SUM(outstanding_debt), 0) AS total_debt,
			       COUNT(CASE WHEN outstanding_debt > 0 THEN 1 END) AS with_debt
			FROM members
		`)
		if err != nil {
			return fmt.Errorf("member stats: %w", err)
		}

		err = tx.GetContext(ctx, &summary.Transactions, `
			SELECT COUNT(*) AS total,
			       COUNT(CASE WHEN return_date IS NULL THEN 1 END) AS borrowed,
			       COALESCE(SUM(rent_fee), 0) AS fees_collected
			FROM transactions
		`)
		if err != nil {
			return fmt.Errorf("transaction stats: %w", err)
		}

		var issued []time.Time
		if err := tx.SelectContext(ctx, &issued, `SELECT issue_date FROM transactions WHERE return_date IS NULL`); err != nil {
			return fmt.Errorf("open loans: %w", err)
		}
		for _, at := range issued {
			if circulation.IsOverdue(at, now) {
				summary.Transactions.Overdue++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return summary, nil
}

type Handler struct {
	service *Service
	now     func() time.Time
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), h.now())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, summary)
}
