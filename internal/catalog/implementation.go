package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"libraryhub/internal/errs"
	"libraryhub/internal/logging"
	"libraryhub/internal/store"
)

var bookColumns = []any{"id", "title", "author", "isbn", "quantity", "created_at", "updated_at"}

// service implements the Service interface.
type service struct {
	store  *store.Store
	logger logging.Logger
	now    func() time.Time
}

// Option configures the catalog service.
type Option func(*service)

// WithLogger sets the logger for catalog mutations.
func WithLogger(logger logging.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// NewService creates a new catalog service instance.
func NewService(st *store.Store, opts ...Option) Service {
	s := &service{
		store:  st,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListBooks returns the books matching filter, oldest first.
func (s *service) ListBooks(ctx context.Context, filter Filter) ([]*Book, error) {
	ds := s.store.Builder().
		From("books").
		Select(bookColumns...).
		Order(goqu.C("created_at").Asc(), goqu.C("id").Asc()).
		Prepared(true)

	if title := strings.TrimSpace(filter.Title); title != "" {
		ds = ds.Where(containsFold("title", title))
	}
	if author := strings.TrimSpace(filter.Author); author != "" {
		ds = ds.Where(containsFold("author", author))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build book query: %w", err)
	}

	books := []*Book{}
	if err := s.store.DB().SelectContext(ctx, &books, query, args...); err != nil {
		return nil, errs.Storage(fmt.Errorf("list books: %w", err))
	}
	return books, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsFold matches rows whose column contains term as a literal,
// case-insensitive substring. Both sides are folded by the database's
// LOWER so the comparison is symmetric on every engine.
func containsFold(column, term string) exp.LiteralExpression {
	pattern := "%" + likeEscaper.Replace(term) + "%"
	return goqu.L(`LOWER(?) LIKE LOWER(CAST(? AS TEXT)) ESCAPE '\'`, goqu.C(column), pattern)
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.getBook(ctx, s.store.DB(), id, "")
}

func (s *service) getBook(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, lock string) (*Book, error) {
	query := s.store.Rebind(`
		SELECT id, title, author, isbn, quantity, created_at, updated_at
		FROM books
		WHERE id = ?` + lock)

	book := &Book{}
	if err := sqlx.GetContext(ctx, q, book, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrBookNotFound
		}
		return nil, errs.Storage(fmt.Errorf("get book: %w", err))
	}
	return book, nil
}

// CreateBook adds a new title to the catalog.
func (s *service) CreateBook(ctx context.Context, input NewBook) (*Book, error) {
	now := s.now().UTC()
	book := &Book{
		ID:        uuid.New(),
		Title:     strings.TrimSpace(input.Title),
		Author:    strings.TrimSpace(input.Author),
		ISBN:      strings.TrimSpace(input.ISBN),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.Quantity != nil {
		book.Quantity = *input.Quantity
	}

	if err := validate(book); err != nil {
		return nil, err
	}

	taken, err := s.isbnTaken(ctx, s.store.DB(), book.ISBN, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, errs.ErrDuplicateISBN
	}

	query := s.store.Rebind(`
		INSERT INTO books (id, title, author, isbn, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = s.store.DB().ExecContext(ctx, query, book.ID, book.Title, book.Author, book.ISBN, book.Quantity, book.CreatedAt, book.UpdatedAt)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return nil, errs.ErrDuplicateISBN
		}
		return nil, errs.Storage(fmt.Errorf("insert book: %w", err))
	}

	s.logger.Info("book created", "book_id", book.ID, "isbn", book.ISBN, "quantity", book.Quantity)
	return book, nil
}

// UpdateBook overwrites the fields present in patch.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, patch Patch) (*Book, error) {
	var updated *Book

	err := s.store.WithTx(ctx, "catalog.update_book", func(ctx context.Context, tx *sqlx.Tx) error {
		book, err := s.getBook(ctx, tx, id, s.store.LockClause())
		if err != nil {
			return err
		}

		if patch.Title != nil {
			book.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Author != nil {
			book.Author = strings.TrimSpace(*patch.Author)
		}
		if patch.ISBN != nil {
			book.ISBN = strings.TrimSpace(*patch.ISBN)
		}
		if patch.Quantity != nil {
			book.Quantity = *patch.Quantity
		}
		if err := validate(book); err != nil {
			return err
		}

		if patch.ISBN != nil {
			taken, err := s.isbnTaken(ctx, tx, book.ISBN, book.ID)
			if err != nil {
				return err
			}
			if taken {
				return errs.ErrDuplicateISBN
			}
		}

		book.UpdatedAt = s.now().UTC()
		query := tx.Rebind(`
			UPDATE books
			SET title = ?, author = ?, isbn = ?, quantity = ?, updated_at = ?
			WHERE id = ?
		`)
		if _, err := tx.ExecContext(ctx, query, book.Title, book.Author, book.ISBN, book.Quantity, book.UpdatedAt, book.ID); err != nil {
			if store.IsUniqueViolation(err) {
				return errs.ErrDuplicateISBN
			}
			return fmt.Errorf("update book: %w", err)
		}

		updated = book
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("book updated", "book_id", updated.ID)
	return updated, nil
}

// DeleteBook removes a book together with every transaction that
// references it.
func (s *service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	var cascaded int64

	err := s.store.WithTx(ctx, "catalog.delete_book", func(ctx context.Context, tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM transactions WHERE book_id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete book transactions: %w", err)
		}
		if cascaded, err = store.RowsAffected(res); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM books WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete book: %w", err)
		}
		n, err := store.RowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return errs.ErrBookNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("book deleted", "book_id", id, "transactions_removed", cascaded)
	return nil
}

func (s *service) isbnTaken(ctx context.Context, q sqlx.QueryerContext, isbn string, except uuid.UUID) (bool, error) {
	query := s.store.Rebind(`SELECT COUNT(*) FROM books WHERE isbn = ? AND id <> ?`)

	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, isbn, except); err != nil {
		return false, errs.Storage(fmt.Errorf("check isbn: %w", err))
	}
	return count > 0, nil
}

func validate(book *Book) error {
	switch {
	case book.Title == "":
		return errs.Invalid("title is required")
	case book.Author == "":
		return errs.Invalid("author is required")
	case book.ISBN == "":
		return errs.Invalid("isbn is required")
	case book.Quantity < 0:
		return errs.Invalid("quantity must not be negative")
	}
	return nil
}
