// Package service holds the business rules of the marketplace.
//
// LAYERING:
//
//	Handler (HTTP) → Service (rules) → Repository (storage)
//	                              ↘ Notifier (relay hub)
//
// Services never see HTTP and never write SQL. They validate input, check
// who may do what, and ask the repository to persist the result. Every
// rule violation is returned as an *apperror.AppError so the handler can map
// it to a status code without knowing the rule.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/lifecycle"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/repository"
)

const (
	maxSkillLength       = 100
	maxCourseNameLength  = 200
	maxDescriptionLength = 2000
	maxMessageLength     = 1000
	maxCommentLength     = 1000
)

// Notifier pushes a best-effort "new request" notice to a connected member.
// *relay.Hub implements it.
type Notifier interface {
	NotifyRequest(ctx context.Context, senderName, receiverID string, kind model.RequestKind) bool
}

// RequestService runs the request lifecycle for both swap and course requests.
type RequestService struct {
	requests    repository.RequestRepository
	enrollments repository.EnrollmentRepository
	users       repository.UserRepository
	notifier    Notifier
	logger      *slog.Logger
}

// NewRequestService creates a RequestService. notifier may be nil.
func NewRequestService(
	requests repository.RequestRepository,
	enrollments repository.EnrollmentRepository,
	users repository.UserRepository,
	notifier Notifier,
	logger *slog.Logger,
) *RequestService {
	return &RequestService{
		requests:    requests,
		enrollments: enrollments,
		users:       users,
		notifier:    notifier,
		logger:      logger,
	}
}

// CreateRequestInput is the payload for opening a request.
type CreateRequestInput struct {
	ToUserID          string `json:"toUser"`
	OfferedSkill      string `json:"offeredSkill"`
	RequestedSkill    string `json:"requestedSkill"`
	CourseName        string `json:"courseName"`
	CourseDescription string `json:"courseDescription"`
	Message           string `json:"message"`
}

// FeedbackInput is optional feedback supplied when completing.
type FeedbackInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// TransitionInput asks to move a request to Status.
type TransitionInput struct {
	Status   model.RequestStatus `json:"status"`
	Feedback *FeedbackInput      `json:"feedback,omitempty"`
}

// TransitionResult is the request after the move, plus the enrollment an
// accepted course request produced.
type TransitionResult struct {
	Request    *model.Request    `json:"request"`
	Enrollment *model.Enrollment `json:"enrollment,omitempty"`
}

// Create opens a pending request from actor to in.ToUserID.
//
// Errors: Validation (unknown kind, self-target, missing or oversized
// fields), NotFound (recipient), Conflict (an active request of this kind
// from actor to the recipient already exists).
func (s *RequestService) Create(ctx context.Context, actor *model.User, kind model.RequestKind, in CreateRequestInput) (*model.Request, error) {
	if !kind.Valid() {
		return nil, apperror.ValidationFailed("kind", fmt.Sprintf("unknown request kind %q", kind))
	}

	payload, err := validatePayload(kind, in)
	if err != nil {
		return nil, err
	}

	toID := strings.TrimSpace(in.ToUserID)
	if toID == "" {
		return nil, apperror.ValidationFailed("toUser", "toUser is required")
	}
	if toID == actor.ID {
		return nil, apperror.ValidationFailed("toUser", "you cannot send a request to yourself")
	}

	if _, err := s.users.GetUserByID(ctx, toID); err != nil {
		return nil, fmt.Errorf("service/request: loading recipient: %w", err)
	}

	req := &model.Request{
		Kind:           kind,
		FromUser:       model.Party{ID: actor.ID},
		ToUser:         model.Party{ID: toID},
		RequestPayload: payload,
	}
	if err := s.requests.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("service/request: creating %s request: %w", kind, err)
	}

	s.logger.Info("request created",
		slog.String("request_id", req.ID),
		slog.String("kind", string(kind)),
		slog.String("from", actor.ID),
		slog.String("to", toID),
	)

	if s.notifier != nil {
		delivered := s.notifier.NotifyRequest(ctx, actor.Name, toID, kind)
		s.logger.Debug("request notification",
			slog.String("request_id", req.ID),
			slog.Bool("delivered", delivered),
		)
	}

	return req, nil
}

// Get returns a request visible to actor: its two parties, or an admin.
func (s *RequestService) Get(ctx context.Context, actor *model.User, kind model.RequestKind, id string) (*model.Request, error) {
	req, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if req.RoleOf(actor.ID) == model.RoleOutsider && !actor.IsAdmin() {
		return nil, apperror.Forbidden("only the parties to a request may view it")
	}
	return req, nil
}

// List returns requests of kind where actor is either party, newest first.
func (s *RequestService) List(ctx context.Context, actor *model.User, kind model.RequestKind) ([]model.Request, error) {
	if !kind.Valid() {
		return nil, apperror.ValidationFailed("kind", fmt.Sprintf("unknown request kind %q", kind))
	}
	list, err := s.requests.ListRequests(ctx, actor.ID, kind)
	if err != nil {
		return nil, fmt.Errorf("service/request: listing %s requests: %w", kind, err)
	}
	return list, nil
}

// Transition moves a request to in.Status on behalf of actor.
//
// ORDER OF CHECKS:
//  1. The request exists and is of this kind   → NotFound
//  2. actor is one of its parties               → Forbidden
//  3. in.Status is a known status               → Validation
//  4. the lifecycle table allows the move       → Forbidden / InvalidState
//  5. feedback, when completing, is well formed → Validation
//
// Accepting a course request also creates its enrollment in the same
// transaction. Re-sending "accepted" as the recipient of an already accepted
// request is a no-op that returns the existing enrollment, so a client retry
// after a lost response is safe.
func (s *RequestService) Transition(ctx context.Context, actor *model.User, kind model.RequestKind, id string, in TransitionInput) (*TransitionResult, error) {
	req, err := s.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	role := req.RoleOf(actor.ID)
	if role == model.RoleOutsider {
		return nil, apperror.Forbidden("only the parties to a request may change it")
	}
	if !in.Status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", in.Status))
	}

	if in.Status == model.StatusAccepted && req.Status == model.StatusAccepted && role == model.RoleRecipient {
		return s.replayAccept(ctx, req)
	}

	if err := lifecycle.Check(req.Status, role, in.Status); err != nil {
		return nil, err
	}

	t := repository.Transition{RequestID: req.ID, From: req.Status, To: in.Status}

	// Feedback is only meaningful on completion; on other moves it is ignored.
	if in.Status == model.StatusCompleted && in.Feedback != nil {
		fb, err := validateFeedback(in.Feedback, actor.ID)
		if err != nil {
			return nil, err
		}
		t.Feedback = fb
	}

	if req.Kind == model.KindCourse && in.Status == model.StatusAccepted {
		t.Enrollment = DeriveEnrollment(req)
	}

	updated, err := s.requests.TransitionRequest(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("service/request: moving %s to %s: %w", req.ID, in.Status, err)
	}

	s.logger.Info("request transitioned",
		slog.String("request_id", req.ID),
		slog.String("kind", string(req.Kind)),
		slog.String("from", string(t.From)),
		slog.String("to", string(t.To)),
		slog.String("actor", actor.ID),
	)
	if t.Enrollment != nil {
		s.logger.Info("enrollment created",
			slog.String("enrollment_id", t.Enrollment.ID),
			slog.String("request_id", req.ID),
		)
	}

	return &TransitionResult{Request: updated, Enrollment: t.Enrollment}, nil
}

// Delete removes a request. Only its initiator may do so.
func (s *RequestService) Delete(ctx context.Context, actor *model.User, kind model.RequestKind, id string) error {
	req, err := s.load(ctx, kind, id)
	if err != nil {
		return err
	}
	if req.RoleOf(actor.ID) != model.RoleInitiator {
		return apperror.Forbidden("only the sender may delete a request")
	}
	if err := s.requests.DeleteRequest(ctx, req.ID); err != nil {
		return fmt.Errorf("service/request: deleting %s: %w", req.ID, err)
	}
	s.logger.Info("request deleted", slog.String("request_id", req.ID), slog.String("actor", actor.ID))
	return nil
}

// load fetches a request and hides requests of the other kind behind NotFound,
// so /api/swaps/{id} never exposes a course request.
func (s *RequestService) load(ctx context.Context, kind model.RequestKind, id string) (*model.Request, error) {
	req, err := s.requests.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/request: loading %s: %w", id, err)
	}
	if req.Kind != kind {
		return nil, apperror.NotFound(string(kind)+" request", id)
	}
	return req, nil
}

func (s *RequestService) replayAccept(ctx context.Context, req *model.Request) (*TransitionResult, error) {
	result := &TransitionResult{Request: req}
	if req.Kind != model.KindCourse {
		return result, nil
	}
	e, err := s.enrollments.GetEnrollmentByRequestID(ctx, req.ID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/request: loading enrollment for %s: %w", req.ID, err)
	}
	result.Enrollment = e
	return result, nil
}

func validatePayload(kind model.RequestKind, in CreateRequestInput) (model.RequestPayload, error) {
	p := model.RequestPayload{
		OfferedSkill:      strings.TrimSpace(in.OfferedSkill),
		RequestedSkill:    strings.TrimSpace(in.RequestedSkill),
		CourseName:        strings.TrimSpace(in.CourseName),
		CourseDescription: strings.TrimSpace(in.CourseDescription),
		Message:           strings.TrimSpace(in.Message),
	}

	if err := requireText("requestedSkill", p.RequestedSkill, maxSkillLength); err != nil {
		return p, err
	}
	switch kind {
	case model.KindSwap:
		if err := requireText("offeredSkill", p.OfferedSkill, maxSkillLength); err != nil {
			return p, err
		}
		p.CourseName, p.CourseDescription = "", ""
	case model.KindCourse:
		if err := requireText("courseName", p.CourseName, maxCourseNameLength); err != nil {
			return p, err
		}
		if err := requireText("courseDescription", p.CourseDescription, maxDescriptionLength); err != nil {
			return p, err
		}
		p.OfferedSkill = ""
	}
	if utf8.RuneCountInString(p.Message) > maxMessageLength {
		return p, apperror.ValidationFailed("message",
			fmt.Sprintf("message must be at most %d characters", maxMessageLength))
	}
	return p, nil
}

func validateFeedback(in *FeedbackInput, from string) (*model.Feedback, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperror.ValidationFailed("feedback.rating", "feedback rating must be between 1 and 5")
	}
	comment := strings.TrimSpace(in.Comment)
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return nil, apperror.ValidationFailed("feedback.comment",
			fmt.Sprintf("feedback comment must be at most %d characters", maxCommentLength))
	}
	return &model.Feedback{Rating: in.Rating, Comment: comment, From: from}, nil
}

func requireText(field, value string, max int) error {
	if value == "" {
		return apperror.ValidationFailed(field, field+" is required")
	}
	if utf8.RuneCountInString(value) > max {
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return nil
}
