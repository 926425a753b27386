package clients

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"libraryhub/internal/httpx"
	"libraryhub/internal/membership"
)

func (c *Client) ListMembers(ctx context.Context) ([]*membership.Member, error) {
	var members []*membership.Member
	if err := c.do(ctx, http.MethodGet, "/members", nil, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

func (c *Client) GetMember(ctx context.Context, id uuid.UUID) (*membership.MemberDetail, error) {
	var member membership.MemberDetail
	if err := c.do(ctx, http.MethodGet, "/members/"+id.String(), nil, nil, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *Client) CreateMember(ctx context.Context, input membership.NewMember) (*membership.Member, error) {
	var member membership.Member
	if err := c.do(ctx, http.MethodPost, "/members", nil, input, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *Client) UpdateMember(ctx context.Context, id uuid.UUID, patch membership.Patch) (*membership.Member, error) {
	var member membership.Member
	if err := c.do(ctx, http.MethodPatch, "/members/"+id.String(), nil, patch, &member); err != nil {
		return nil, err
	}
	return &member, nil
}

func (c *Client) DeleteMember(ctx context.Context, id uuid.UUID) error {
	var ack httpx.MessageBody
	return c.do(ctx, http.MethodDelete, "/members/"+id.String(), nil, nil, &ack)
}
