package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"libraryhub/internal/auth"
	"libraryhub/internal/httpx"
	"libraryhub/internal/logging"
	"libraryhub/internal/store/storetest"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newTestRouter(t *testing.T) (http.Handler, Services) {
	t.Helper()
	st := storetest.New(t)
	tokens, err := auth.NewTokens("test-secret", 0)
	require.NoError(t, err)

	svcs := NewServices(st, tokens, logging.Discard(), auth.WithLoginLimit(rate.Inf, 1))
	_, err = svcs.Auth.CreateLibrarian(context.Background(), "librarian", "correct horse")
	require.NoError(t, err)

	return NewRouter(svcs, WithLogger(logging.Discard())), svcs
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/login", `{"username":"librarian","password":"correct horse"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var token auth.AccessToken
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))
	require.NotEmpty(t, token.Token)
	return token.Token
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealthzIsPublic(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h, _ := newTestRouter(t)

	for _, path := range []string{"/profile", "/books", "/members", "/transactions", "/transactions/overdue", "/reports/summary"} {
		rec := do(t, h, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := do(t, h, http.MethodGet, "/books", "", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginErrors(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/login", `{"username":"librarian"}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_credentials", errorCode(t, rec))

	rec = do(t, h, http.MethodPost, "/login", `{"username":"librarian","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", errorCode(t, rec))
}

func TestProfile(t *testing.T) {
	h, _ := newTestRouter(t)
	token := login(t, h)

	rec := do(t, h, http.MethodGet, "/profile", "", token)
	require.Equal(t, http.StatusOK, rec.Code)

	var librarian auth.Librarian
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &librarian))
	assert.Equal(t, "librarian", librarian.Username)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestErrorKindsMapToStatus(t *testing.T) {
	h, _ := newTestRouter(t)
	token := login(t, h)

	rec := do(t, h, http.MethodGet, "/books/not-a-uuid", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/books/1b4e28ba-2fa1-11d2-883f-0016d3cca427", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "book_not_found", errorCode(t, rec))

	rec = do(t, h, http.MethodPost, "/books", `{"title":"Dune","author":"Frank Herbert","isbn":"1"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/books", `{"title":"Dune","author":"Frank Herbert","isbn":"1"}`, token)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_isbn", errorCode(t, rec))

	rec = do(t, h, http.MethodPost, "/transactions", `{"member_id":"x","book_id":"y"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/nowhere", "", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStorageFailuresHideDriverText(t *testing.T) {
	h, svcs := newTestRouter(t)
	token := login(t, h)

	_, err := svcs.Store.DB().Exec(`DROP TABLE transactions`)
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/transactions", "", token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "no such table")

	var body httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "storage", body.Error)
	assert.Equal(t, httpx.InternalMessage, body.Message)
}
