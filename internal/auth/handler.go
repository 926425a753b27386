package auth

import (
	"fmt"
	"net/http"

	"libraryhub/internal/errs"
	"libraryhub/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}

	token, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, token)
}

func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := LibrarianIDFromContext(r.Context())
	if !ok {
		httpx.Error(w, r, fmt.Errorf("%w: no identity on request", errs.ErrUnauthenticated))
		return
	}

	librarian, err := h.service.Profile(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, librarian)
}
