package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/repository"
	"github.com/sakif/skillswap/internal/service"
)

// MemberHandler serves enrollments, ratings, chat history, profiles, member
// browsing and admin moderation. Each is a thin JSON wrapper over its service.
type MemberHandler struct {
	enrollments *service.EnrollmentService
	ratings     *service.RatingService
	messages    *service.MessageService
	users       *service.UserService
	logger      *slog.Logger
}

func NewMemberHandler(
	enrollments *service.EnrollmentService,
	ratings *service.RatingService,
	messages *service.MessageService,
	users *service.UserService,
	logger *slog.Logger,
) *MemberHandler {
	return &MemberHandler{
		enrollments: enrollments,
		ratings:     ratings,
		messages:    messages,
		users:       users,
		logger:      logger,
	}
}

// HandleListEnrollments: GET /api/enrollments
func (h *MemberHandler) HandleListEnrollments(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.enrollments.List(r.Context(), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleUpdateEnrollment: PATCH /api/enrollments/{id}
//
// REQUEST BODY: {"progress": 60} or {"status": "completed", "feedback": {...}}
func (h *MemberHandler) HandleUpdateEnrollment(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.UpdateEnrollmentInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	e, err := h.enrollments.Update(r.Context(), user, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// HandleListRatings: GET /api/ratings?userId=
func (h *MemberHandler) HandleListRatings(w http.ResponseWriter, r *http.Request) {
	list, err := h.ratings.List(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleSubmitRating: POST /api/ratings
func (h *MemberHandler) HandleSubmitRating(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.SubmitRatingInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.ratings.Submit(r.Context(), user, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleListMessages: GET /api/messages?swapId=
func (h *MemberHandler) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	list, err := h.messages.List(r.Context(), user, r.URL.Query().Get("swapId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleSendMessage: POST /api/messages
func (h *MemberHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.SendMessageInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	m, err := h.messages.Send(r.Context(), user, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// HandleBrowse: GET /api/users?limit=&offset=
func (h *MemberHandler) HandleBrowse(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.users.Browse(r.Context(), user, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleUpdateProfile: PUT /api/users/profile
//
// REQUEST BODY: {"name": "...", "skillsOffered": [...], "skillsWanted": [...],
// "location": "...", "availability": "...", "isProfilePublic": true}
func (h *MemberHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.UpdateProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.users.UpdateProfile(r.Context(), user, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleListAllUsers: GET /api/admin/users?limit=&offset=
func (h *MemberHandler) HandleListAllUsers(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.users.ListAll(r.Context(), admin, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleSetBan: PATCH /api/admin/users/{id}
//
// REQUEST BODY: {"isBanned": true, "banReason": "spam"}
func (h *MemberHandler) HandleSetBan(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(w, r)
	if !ok {
		return
	}
	var in service.BanInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.users.SetBan(r.Context(), admin, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func listOptions(r *http.Request) (repository.ListOptions, error) {
	var opts repository.ListOptions
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return opts, apperror.ValidationFailed(name, name+" must be an integer")
		}
		*dst = v
	}
	return opts, nil
}
