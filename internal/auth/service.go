package auth

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the access gate.
type Service interface {
	Authenticate(ctx context.Context, username, password string) (*AccessToken, error)
	ResolveIdentity(ctx context.Context, token string) (uuid.UUID, error)
	Profile(ctx context.Context, id uuid.UUID) (*Librarian, error)
	CreateLibrarian(ctx context.Context, username, password string) (*Librarian, error)
}
