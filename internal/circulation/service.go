package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service defines the interface for the circulation service.
type Service interface {
	Issue(ctx context.Context, memberID, bookID uuid.UUID) (*Transaction, error)
	Return(ctx context.Context, transactionID uuid.UUID) (*ReturnReceipt, error)
	ListTransactions(ctx context.Context, filter Filter) ([]*TransactionView, error)
	ListOverdue(ctx context.Context, now time.Time) ([]*OverdueLoan, error)
}
