package clients

import (
	"context"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"libraryhub/internal/catalog"
	"libraryhub/internal/httpx"
)

func (c *Client) ListBooks(ctx context.Context, filter catalog.Filter) ([]*catalog.Book, error) {
	query := url.Values{}
	if filter.Title != "" {
		query.Set("title", filter.Title)
	}
	if filter.Author != "" {
		query.Set("author", filter.Author)
	}

	var books []*catalog.Book
	if err := c.do(ctx, http.MethodGet, "/books", query, nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *Client) GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodGet, "/books/"+id.String(), nil, nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) CreateBook(ctx context.Context, input catalog.NewBook) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodPost, "/books", nil, input, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) UpdateBook(ctx context.Context, id uuid.UUID, patch catalog.Patch) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodPatch, "/books/"+id.String(), nil, patch, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) DeleteBook(ctx context.Context, id uuid.UUID) error {
	var ack httpx.MessageBody
	return c.do(ctx, http.MethodDelete, "/books/"+id.String(), nil, nil, &ack)
}
