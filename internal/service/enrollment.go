package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/repository"
)

// DeriveEnrollment builds the enrollment an accepted course request produces.
// The initiator studies, the recipient teaches. The result is not persisted;
// the caller hands it to the repository inside the accept transaction.
func DeriveEnrollment(req *model.Request) *model.Enrollment {
	return &model.Enrollment{
		RequestID:         req.ID,
		Student:           req.FromUser,
		Instructor:        req.ToUser,
		CourseName:        req.CourseName,
		CourseDescription: req.CourseDescription,
		Skill:             req.RequestedSkill,
		Status:            model.EnrollmentActive,
		Progress:          0,
		StartDate:         time.Now().UTC(),
	}
}

// EnrollmentService lets the two parties of an enrollment track it.
type EnrollmentService struct {
	enrollments repository.EnrollmentRepository
	logger      *slog.Logger
}

func NewEnrollmentService(enrollments repository.EnrollmentRepository, logger *slog.Logger) *EnrollmentService {
	return &EnrollmentService{enrollments: enrollments, logger: logger}
}

// UpdateEnrollmentInput carries the optional fields of a progress update.
// Nil fields are left unchanged.
type UpdateEnrollmentInput struct {
	Progress *int                    `json:"progress,omitempty"`
	Status   *model.EnrollmentStatus `json:"status,omitempty"`
	Feedback *FeedbackInput          `json:"feedback,omitempty"`
}

// List returns enrollments where actor is student or instructor.
func (s *EnrollmentService) List(ctx context.Context, actor *model.User) ([]model.Enrollment, error) {
	list, err := s.enrollments.ListEnrollments(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("service/enrollment: listing: %w", err)
	}
	return list, nil
}

// Update changes progress and/or status of an active enrollment.
//
// Completing sets progress to 100. Completing or cancelling stamps EndDate.
// Sending status "active" to an active enrollment is accepted and changes
// nothing else.
func (s *EnrollmentService) Update(ctx context.Context, actor *model.User, id string, in UpdateEnrollmentInput) (*model.Enrollment, error) {
	e, err := s.enrollments.GetEnrollment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/enrollment: loading %s: %w", id, err)
	}
	if !e.IsParty(actor.ID) {
		return nil, apperror.Forbidden("only the student or instructor may update an enrollment")
	}
	if e.Status.Terminal() {
		return nil, apperror.InvalidState(fmt.Sprintf("enrollment is already %s", e.Status))
	}

	if in.Progress != nil {
		if *in.Progress < 0 || *in.Progress > 100 {
			return nil, apperror.ValidationFailed("progress", "progress must be between 0 and 100")
		}
		e.Progress = *in.Progress
	}

	from := e.Status
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown enrollment status %q", *in.Status))
		}
		e.Status = *in.Status
	}

	if e.Status.Terminal() {
		end := time.Now().UTC()
		e.EndDate = &end
		if e.Status == model.EnrollmentCompleted {
			e.Progress = 100
		}
		if in.Feedback != nil {
			fb, err := validateFeedback(in.Feedback, actor.ID)
			if err != nil {
				return nil, err
			}
			e.Feedback = fb
		}
	}

	if err := s.enrollments.UpdateEnrollment(ctx, e, from); err != nil {
		return nil, fmt.Errorf("service/enrollment: updating %s: %w", id, err)
	}

	s.logger.Info("enrollment updated",
		slog.String("enrollment_id", e.ID),
		slog.String("status", string(e.Status)),
		slog.Int("progress", e.Progress),
		slog.String("actor", actor.ID),
	)
	return e, nil
}
