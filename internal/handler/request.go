package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/service"
)

// RequestHandler serves one kind of request. The server mounts one instance
// at /api/swaps (KindSwap) and one at /api/course-requests (KindCourse); both
// share the same lifecycle.
type RequestHandler struct {
	kind     model.RequestKind
	requests *service.RequestService
	logger   *slog.Logger
}

func NewRequestHandler(kind model.RequestKind, requests *service.RequestService, logger *slog.Logger) *RequestHandler {
	return &RequestHandler{kind: kind, requests: requests, logger: logger}
}

// Routes returns the sub-router for this kind.
//
//	GET    /       list requests the caller is a party to
//	POST   /       open a request
//	GET    /{id}   one request
//	PUT    /{id}   move a request to a new status
//	DELETE /{id}   delete a request (initiator only)
func (h *RequestHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Get("/{id}", h.HandleGet)
	r.Put("/{id}", h.HandleTransition)
	r.Delete("/{id}", h.HandleDelete)
	return r
}

func (h *RequestHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.requests.List(r.Context(), user, h.kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreate opens a pending request and notifies the recipient if online.
//
// REQUEST BODY (swap):   {"toUser": "...", "offeredSkill": "React", "requestedSkill": "Python", "message": "..."}
// REQUEST BODY (course): {"toUser": "...", "courseName": "...", "courseDescription": "...", "requestedSkill": "Go"}
func (h *RequestHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.CreateRequestInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	req, err := h.requests.Create(r.Context(), user, h.kind, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *RequestHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	req, err := h.requests.Get(r.Context(), user, h.kind, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// HandleTransition moves a request to a new status.
//
// REQUEST BODY: {"status": "completed", "feedback": {"rating": 5, "comment": "..."}}
//
// The response is {"request": {...}} plus "enrollment" when accepting a
// course request.
func (h *RequestHandler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.TransitionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.requests.Transition(r.Context(), user, h.kind, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *RequestHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	if err := h.requests.Delete(r.Context(), user, h.kind, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
