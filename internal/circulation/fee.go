package circulation

import "time"

const (
	// DailyRentalFee is charged for every full day a book is kept, with a
	// minimum of one day per loan.
	DailyRentalFee = 1.50

	// LoanPeriodDays is how long a loan may stay open before it is overdue.
	LoanPeriodDays = 14

	day = 24 * time.Hour
)

// DaysRented is the number of whole days between issue and return.
func DaysRented(issued, returned time.Time) int {
	elapsed := returned.Sub(issued)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / day)
}

// RentFee is the fee owed for a loan issued and returned at the given times.
func RentFee(issued, returned time.Time) float64 {
	return DailyRentalFee * float64(max(1, DaysRented(issued, returned)))
}

// DaysOverdue is how many whole days past the loan period an open loan is
// at now. It is zero or negative while the loan is within the period.
func DaysOverdue(issued, now time.Time) int {
	return DaysRented(issued, now) - LoanPeriodDays
}

// IsOverdue reports whether a loan issued at issued and still open at now
// has exceeded the loan period.
func IsOverdue(issued, now time.Time) bool {
	return now.Sub(issued) > LoanPeriodDays*day
}
