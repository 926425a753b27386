// Package integrity verifies that the stored library state satisfies the
// lending invariants. Each Check measures one quantity with a query and
// compares it against a threshold.
package integrity

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"libraryhub/internal/store"
)

type Operator string

const (
	Equal        Operator = "=="
	LessThan     Operator = "<"
	LessOrEqual  Operator = "<="
	GreaterThan  Operator = ">"
	GreaterEqual Operator = ">="
)

type Threshold struct {
	Operator Operator
	Value    float64
}

func (t Threshold) holds(value float64) bool {
	switch t.Operator {
	case Equal:
		return value == t.Value
	case LessThan:
		return value < t.Value
	case LessOrEqual:
		return value <= t.Value
	case GreaterThan:
		return value > t.Value
	case GreaterEqual:
		return value >= t.Value
	default:
		return false
	}
}

// Check is one measured property of the stored state.
type Check struct {
	Name      string
	Query     func(ctx context.Context, db *sqlx.DB) (float64, error)
	Threshold Threshold
}

// Violation records a check whose measurement missed its threshold. A
// query error is reported with Err set and Actual left at zero.
type Violation struct {
	Check    string    `json:"check"`
	Expected Threshold `json:"expected"`
	Actual   float64   `json:"actual"`
	Err      error     `json:"-"`
}

func (v Violation) String() string {
	if v.Err != nil {
		return fmt.Sprintf("%s: %v", v.Check, v.Err)
	}
	return fmt.Sprintf("%s: expected %s %v, got %v", v.Check, v.Expected.Operator, v.Expected.Value, v.Actual)
}

type Report struct {
	CheckedAt  time.Time   `json:"checked_at"`
	Checks     int         `json:"checks"`
	Violations []Violation `json:"violations"`
}

// Healthy reports whether every check held.
func (r *Report) Healthy() bool {
	return len(r.Violations) == 0
}

type Checker struct {
	store  *store.Store
	checks []Check
	tracer trace.Tracer
}

// New returns a checker running LendingChecks followed by extra.
func New(st *store.Store, extra ...Check) *Checker {
	return &Checker{
		store:  st,
		checks: append(LendingChecks(), extra...),
		tracer: otel.Tracer("libraryhub/integrity"),
	}
}

// Run evaluates every check. It returns an error only when ctx is done;
// failing queries are reported as violations.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	ctx, span := c.tracer.Start(ctx, "integrity.run",
		trace.WithAttributes(attribute.Int("checks", len(c.checks))))
	defer span.End()

	report := &Report{CheckedAt: time.Now().UTC(), Checks: len(c.checks), Violations: []Violation{}}
	for _, check := range c.checks {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		value, err := check.Query(ctx, c.store.DB())
		if err != nil {
			span.RecordError(err)
			report.Violations = append(report.Violations, Violation{Check: check.Name, Expected: check.Threshold, Err: err})
			continue
		}
		if !check.Threshold.holds(value) {
			report.Violations = append(report.Violations, Violation{Check: check.Name, Expected: check.Threshold, Actual: value})
		}
	}

	span.SetAttributes(attribute.Int("violations", len(report.Violations)))
	if !report.Healthy() {
		span.SetStatus(codes.Error, "invariants violated")
	}
	return report, nil
}

func count(query string) func(context.Context, *sqlx.DB) (float64, error) {
	return func(ctx context.Context, db *sqlx.DB) (float64, error) {
		var n int64
		if err := db.GetContext(ctx, &n, query); err != nil {
			return 0, err
		}
		return float64(n), nil
	}
}

// LendingChecks are the invariants every committed state must satisfy.
// Debt above the issue ceiling is not among them: a return may push a
// member past it.
func LendingChecks() []Check {
	none := Threshold{Operator: Equal, Value: 0}

	return []Check{
		{
			Name:      "negative_stock",
			Query:     count(`SELECT COUNT(*) FROM books WHERE quantity < 0`),
			Threshold: none,
		},
		{
			Name:      "negative_debt",
			Query:     count(`SELECT COUNT(*) FROM members WHERE outstanding_debt < 0`),
			Threshold: none,
		},
		{
			Name: "half_closed_transactions",
			Query: count(`SELECT COUNT(*) FROM transactions
				WHERE (return_date IS NULL AND rent_fee IS NOT NULL)
				   OR (return_date IS NOT NULL AND rent_fee IS NULL)`),
			Threshold: none,
		},
		{
			Name:      "fee_below_minimum",
			Query:     count(`SELECT COUNT(*) FROM transactions WHERE rent_fee IS NOT NULL AND rent_fee < 1.5`),
			Threshold: none,
		},
		{
			Name:      "return_before_issue",
			Query:     count(`SELECT COUNT(*) FROM transactions WHERE return_date IS NOT NULL AND return_date < issue_date`),
			Threshold: none,
		},
		{
			Name: "orphaned_transactions",
			Query: count(`SELECT COUNT(*) FROM transactions t
				LEFT JOIN members m ON m.id = t.member_id
				WHERE m.id IS NULL`),
			Threshold: none,
		},
	}
}
