package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"libraryhub/internal/circulation"
	"libraryhub/internal/reports"
)

func (c *Client) Issue(ctx context.Context, memberID, bookID uuid.UUID) (*circulation.Transaction, error) {
	req := struct {
		MemberID string `json:"member_id"`
		BookID   string `json:"book_id"`
	}{memberID.String(), bookID.String()}

	var t circulation.Transaction
	if err := c.do(ctx, http.MethodPost, "/transactions", nil, req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) Return(ctx context.Context, transactionID uuid.UUID) (*circulation.ReturnReceipt, error) {
	var receipt circulation.ReturnReceipt
	if err := c.do(ctx, http.MethodPut, "/transactions/"+transactionID.String(), nil, nil, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (c *Client) ListTransactions(ctx context.Context, filter circulation.Filter) ([]*circulation.TransactionView, error) {
	query := url.Values{}
	if filter.MemberID != nil {
		query.Set("member_id", filter.MemberID.String())
	}
	if filter.BookID != nil {
		query.Set("book_id", filter.BookID.String())
	}

	var views []*circulation.TransactionView
	if err := c.do(ctx, http.MethodGet, "/transactions", query, nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *Client) ListOverdue(ctx context.Context) ([]*circulation.OverdueLoan, error) {
	var loans []*circulation.OverdueLoan
	if err := c.do(ctx, http.MethodGet, "/transactions/overdue", nil, nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (c *Client) Summary(ctx context.Context) (*reports.Summary, error) {
	var summary reports.Summary
	if err := c.do(ctx, http.MethodGet, "/reports/summary", nil, nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}
