package circulation

import (
	"net/http"
	"time"

	"libraryhub/internal/httpx"
)

type Handler struct {
	service Service
	now     func() time.Time
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service, now: time.Now}
}

type issueRequest struct {
	MemberID string `json:"member_id"`
	BookID   string `json:"book_id"`
}

func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, r, err)
		return
	}

	memberID, err := httpx.ParseID(req.MemberID, "member_id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}
	bookID, err := httpx.ParseID(req.BookID, "book_id")
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	t, err := h.service.Issue(r.Context(), memberID, bookID)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	receipt, err := h.service.Return(r.Context(), id)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, receipt)
}

func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	var filter Filter
	query := r.URL.Query()

	if raw := query.Get("member_id"); raw != "" {
		id, err := httpx.ParseID(raw, "member_id")
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		filter.MemberID = &id
	}
	if raw := query.Get("book_id"); raw != "" {
		id, err := httpx.ParseID(raw, "book_id")
		if err != nil {
			httpx.Error(w, r, err)
			return
		}
		filter.BookID = &id
	}

	views, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) HandleListOverdue(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.ListOverdue(r.Context(), h.now())
	if err != nil {
		httpx.Error(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, loans)
}

