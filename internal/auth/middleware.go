package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"libraryhub/internal/errs"
	"libraryhub/internal/httpx"
)

type contextKey string

const librarianIDKey contextKey = "librarian_id"

// RequireLibrarian rejects requests without a valid bearer token and
// stores the resolved librarian id in the request context.
func RequireLibrarian(svc Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				httpx.Error(w, r, err)
				return
			}

			id, err := svc.ResolveIdentity(r.Context(), token)
			if err != nil {
				httpx.Error(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithLibrarianID(r.Context(), id)))
		})
	}
}

// WithLibrarianID returns a copy of ctx carrying the acting librarian.
func WithLibrarianID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, librarianIDKey, id)
}

// LibrarianIDFromContext returns the acting librarian.
func LibrarianIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(librarianIDKey).(uuid.UUID)
	return id, ok
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", errs.ErrUnauthenticated)
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: malformed authorization header", errs.ErrUnauthenticated)
	}

	return strings.TrimSpace(parts[1]), nil
}
