// Package repository declares the storage interfaces the service layer depends on.
//
// Services accept these interfaces, never the concrete sqlite.DB, so tests can
// swap in fakes and the storage engine stays replaceable.
package repository

import (
	"context"

	"github.com/sakif/skillswap/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// ProfileUpdate is the set of fields a member edits on their own profile.
// Every field is written; the service fills in defaults.
type ProfileUpdate struct {
	Name            string
	Location        string
	Availability    string
	SkillsOffered   []string
	SkillsWanted    []string
	IsProfilePublic bool
}

// UserRepository stores members. CreateUser returns a Conflict error when the
// email is already registered.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	UpsertGitHubUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, p ProfileUpdate) (*model.User, error)
	ListPublicUsers(ctx context.Context, excludeID string, opts ListOptions) ([]model.User, error)
	ListAllUsers(ctx context.Context, opts ListOptions) ([]model.User, error)
	SetBan(ctx context.Context, id string, banned bool, reason string) (*model.User, error)
	SetRoleByEmail(ctx context.Context, email string, role model.Role) error
}

// Transition describes one compare-and-set status change of a request.
// Enrollment, when non-nil, is inserted in the same transaction.
type Transition struct {
	RequestID  string
	From       model.RequestStatus
	To         model.RequestStatus
	Feedback   *model.Feedback
	Enrollment *model.Enrollment
}

// RequestRepository stores swap-requests and course-requests.
//
// CreateRequest returns a Conflict error if an active request already exists
// for the same (kind, from, to). TransitionRequest returns an InvalidState
// error when the stored status no longer equals From.
type RequestRepository interface {
	CreateRequest(ctx context.Context, req *model.Request) error
	GetRequest(ctx context.Context, id string) (*model.Request, error)
	ListRequests(ctx context.Context, userID string, kind model.RequestKind) ([]model.Request, error)
	TransitionRequest(ctx context.Context, t Transition) (*model.Request, error)
	DeleteRequest(ctx context.Context, id string) error
}

// EnrollmentRepository stores enrollments. UpdateEnrollment is a
// compare-and-set on the stored status.
type EnrollmentRepository interface {
	GetEnrollment(ctx context.Context, id string) (*model.Enrollment, error)
	GetEnrollmentByRequestID(ctx context.Context, requestID string) (*model.Enrollment, error)
	ListEnrollments(ctx context.Context, userID string) ([]model.Enrollment, error)
	UpdateEnrollment(ctx context.Context, e *model.Enrollment, from model.EnrollmentStatus) error
}

// Aggregator folds every rating value a user has received into a summary.
type Aggregator func(values []int) model.RatingAggregate

// RatingRepository stores ratings. CreateRating inserts the rating, recomputes
// the target's aggregate with agg and writes it back, all in one transaction.
// A duplicate (from, to) pair returns a Conflict error.
type RatingRepository interface {
	CreateRating(ctx context.Context, r *model.Rating, agg Aggregator) (model.RatingAggregate, error)
	ListRatingsFor(ctx context.Context, userID string) ([]model.Rating, error)
}

// MessageRepository stores chat history per swap.
type MessageRepository interface {
	CreateMessage(ctx context.Context, m *model.Message) error
	ListMessages(ctx context.Context, swapID string) ([]model.Message, error)
}
