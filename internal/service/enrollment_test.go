package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/repository/sqlite"
)

func intPtr(v int) *int { return &v }

func statusPtr(s model.EnrollmentStatus) *model.EnrollmentStatus { return &s }

// acceptedCourse creates a course request from student to instructor, accepts
// it, and returns the derived enrollment.
func acceptedCourse(t *testing.T, db *sqlite.DB, student, instructor *model.User) *model.Enrollment {
	t.Helper()
	ctx := context.Background()
	requests := NewRequestService(db, db, db, nil, testLogger())

	req, err := requests.Create(ctx, student, model.KindCourse, courseInput(instructor.ID))
	require.NoError(t, err)
	res, err := requests.Transition(ctx, instructor, model.KindCourse, req.ID, TransitionInput{Status: model.StatusAccepted})
	require.NoError(t, err)
	require.NotNil(t, res.Enrollment)
	return res.Enrollment
}

func TestDeriveEnrollment(t *testing.T) {
	req := &model.Request{
		ID:       "req1",
		Kind:     model.KindCourse,
		FromUser: model.Party{ID: "a", Name: "Alice"},
		ToUser:   model.Party{ID: "b", Name: "Bob"},
		RequestPayload: model.RequestPayload{
			CourseName:        "Go",
			CourseDescription: "from zero",
			RequestedSkill:    "golang",
		},
	}

	e := DeriveEnrollment(req)

	assert.Equal(t, "req1", e.RequestID)
	assert.Equal(t, "a", e.Student.ID)
	assert.Equal(t, "b", e.Instructor.ID)
	assert.Equal(t, "Go", e.CourseName)
	assert.Equal(t, "from zero", e.CourseDescription)
	assert.Equal(t, "golang", e.Skill)
	assert.Equal(t, model.EnrollmentActive, e.Status)
	assert.Zero(t, e.Progress)
	assert.False(t, e.StartDate.IsZero())
	assert.Nil(t, e.EndDate)
}

func TestUpdateEnrollment_Progress(t *testing.T) {
	db := newTestStore(t)
	svc := NewEnrollmentService(db, testLogger())
	a, b := newMember(t, db, "alice"), newMember(t, db, "bob")
	e := acceptedCourse(t, db, a, b)

	got, err := svc.Update(context.Background(), a, e.ID, UpdateEnrollmentInput{Progress: intPtr(40)})
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
	assert.Equal(t, model.EnrollmentActive, got.Status)
	assert.Nil(t, got.EndDate)

	// Sending "active" again is allowed and changes nothing.
	got, err = svc.Update(context.Background(), b, e.ID, UpdateEnrollmentInput{Status: statusPtr(model.EnrollmentActive)})
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)
}

func TestUpdateEnrollment_Complete(t *testing.T) {
	db := newTestStore(t)
	svc := NewEnrollmentService(db, testLogger())
	a, b := newMember(t, db, "alice"), newMember(t, db, "bob")
	e := acceptedCourse(t, db, a, b)

	got, err := svc.Update(context.Background(), b, e.ID, UpdateEnrollmentInput{
		Status:   statusPtr(model.EnrollmentCompleted),
		Feedback: &FeedbackInput{Rating: 5, Comment: "keen student"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.EnrollmentCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.NotNil(t, got.EndDate)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, b.ID, got.Feedback.From)

	_, err = svc.Update(context.Background(), a, e.ID, UpdateEnrollmentInput{Progress: intPtr(10)})
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestUpdateEnrollment_Refusals(t *testing.T) {
	db := newTestStore(t)
	svc := NewEnrollmentService(db, testLogger())
	a, b, c := newMember(t, db, "alice"), newMember(t, db, "bob"), newMember(t, db, "carol")
	e := acceptedCourse(t, db, a, b)

	tests := []struct {
		name    string
		actor   *model.User
		id      string
		in      UpdateEnrollmentInput
		wantErr error
	}{
		{"missing", a, "nope", UpdateEnrollmentInput{Progress: intPtr(1)}, apperror.ErrNotFound},
		{"outsider", c, e.ID, UpdateEnrollmentInput{Progress: intPtr(1)}, apperror.ErrForbidden},
		{"progress below range", a, e.ID, UpdateEnrollmentInput{Progress: intPtr(-1)}, apperror.ErrValidation},
		{"progress above range", a, e.ID, UpdateEnrollmentInput{Progress: intPtr(101)}, apperror.ErrValidation},
		{"unknown status", a, e.ID, UpdateEnrollmentInput{Status: statusPtr("paused")}, apperror.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), tt.actor, tt.id, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUpdateEnrollment_CancelledIsTerminal(t *testing.T) {
	db := newTestStore(t)
	svc := NewEnrollmentService(db, testLogger())
	a, b := newMember(t, db, "alice"), newMember(t, db, "bob")
	e := acceptedCourse(t, db, a, b)

	got, err := svc.Update(context.Background(), a, e.ID, UpdateEnrollmentInput{Status: statusPtr(model.EnrollmentCancelled)})
	require.NoError(t, err)
	assert.NotNil(t, got.EndDate)

	_, err = svc.Update(context.Background(), a, e.ID, UpdateEnrollmentInput{Status: statusPtr(model.EnrollmentActive)})
	assert.ErrorIs(t, err, apperror.ErrInvalidState)
}

func TestListEnrollments(t *testing.T) {
	db := newTestStore(t)
	svc := NewEnrollmentService(db, testLogger())
	a, b, c := newMember(t, db, "alice"), newMember(t, db, "bob"), newMember(t, db, "carol")
	acceptedCourse(t, db, a, b)
	acceptedCourse(t, db, c, a)

	list, err := svc.List(context.Background(), a)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = svc.List(context.Background(), b)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
