package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the membership service.
type Service interface {
	ListMembers(ctx context.Context) ([]*Member, error)
	GetMember(ctx context.Context, id uuid.UUID) (*MemberDetail, error)
	CreateMember(ctx context.Context, input NewMember) (*Member, error)
	UpdateMember(ctx context.Context, id uuid.UUID, patch Patch) (*Member, error)
	DeleteMember(ctx context.Context, id uuid.UUID) error
}
