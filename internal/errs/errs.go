// Package errs defines the error taxonomy shared by every LibraryHub
// component. Each sentinel carries a Kind that the HTTP layer maps to a
// status code; callers test for specific failures with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation across component boundaries.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindPolicy
	KindUnauthenticated
	KindRateLimited
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPolicy:
		return "policy_violation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindRateLimited:
		return "rate_limited"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a classified failure. An Error without a Code matches every
// Error of the same Kind.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// Is reports whether target is the same failure, or the generic sentinel of
// e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Code == e.Code
}

var (
	ErrValidation      = &Error{Kind: KindValidation, Msg: "validation failed"}
	ErrNotFound        = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrConflict        = &Error{Kind: KindConflict, Msg: "conflict"}
	ErrPolicyViolation = &Error{Kind: KindPolicy, Msg: "policy violation"}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Msg: "unauthenticated"}
	ErrRateLimited     = &Error{Kind: KindRateLimited, Msg: "rate limit exceeded"}
	ErrStorage         = &Error{Kind: KindStorage, Msg: "storage failure"}

	ErrMissingCredentials = &Error{Kind: KindValidation, Code: "missing_credentials", Msg: "missing username or password"}
	ErrInvalidCredentials = &Error{Kind: KindUnauthenticated, Code: "invalid_credentials", Msg: "invalid username or password"}

	ErrBookNotFound        = &Error{Kind: KindNotFound, Code: "book_not_found", Msg: "book not found"}
	ErrMemberNotFound      = &Error{Kind: KindNotFound, Code: "member_not_found", Msg: "member not found"}
	ErrTransactionNotFound = &Error{Kind: KindNotFound, Code: "transaction_not_found", Msg: "transaction not found"}
	ErrLibrarianNotFound   = &Error{Kind: KindNotFound, Code: "librarian_not_found", Msg: "librarian not found"}

	ErrDuplicateISBN     = &Error{Kind: KindConflict, Code: "duplicate_isbn", Msg: "a book with this isbn already exists"}
	ErrDuplicateEmail    = &Error{Kind: KindConflict, Code: "duplicate_email", Msg: "a member with this email already exists"}
	ErrDuplicateUsername = &Error{Kind: KindConflict, Code: "duplicate_username", Msg: "a librarian with this username already exists"}
	ErrAlreadyReturned   = &Error{Kind: KindConflict, Code: "already_returned", Msg: "book already returned"}

	ErrDebtLimitExceeded = &Error{Kind: KindPolicy, Code: "debt_limit_exceeded", Msg: "member has reached the debt limit"}
	ErrBookUnavailable   = &Error{Kind: KindPolicy, Code: "book_unavailable", Msg: "book is not available"}
)

// Invalid returns a validation error carrying a human readable reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Storage wraps a backing store failure.
func Storage(cause error) error {
	if cause == nil {
		return nil
	}
	return errors.Join(ErrStorage, cause)
}

// KindOf returns the kind of the first classified error in err's tree.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns a stable machine readable code for err.
func CodeOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return KindUnknown.String()
	}
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.String()
}

var byCode = map[string]*Error{}

func init() {
	for _, e := range []*Error{
		ErrMissingCredentials, ErrInvalidCredentials,
		ErrBookNotFound, ErrMemberNotFound, ErrTransactionNotFound, ErrLibrarianNotFound,
		ErrDuplicateISBN, ErrDuplicateEmail, ErrDuplicateUsername, ErrAlreadyReturned,
		ErrDebtLimitExceeded, ErrBookUnavailable,
	} {
		byCode[e.Code] = e
	}
	for _, e := range []*Error{
		ErrValidation, ErrNotFound, ErrConflict, ErrPolicyViolation,
		ErrUnauthenticated, ErrRateLimited, ErrStorage,
	} {
		byCode[e.Kind.String()] = e
	}
}

// FromCode returns the sentinel whose CodeOf is code.
func FromCode(code string) (*Error, bool) {
	e, ok := byCode[code]
	return e, ok
}
