package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service.
type Service interface {
	ListBooks(ctx context.Context, filter Filter) ([]*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	CreateBook(ctx context.Context, input NewBook) (*Book, error)
	UpdateBook(ctx context.Context, id uuid.UUID, patch Patch) (*Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error
}
