package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/repository"
)

// createTestEnrollment accepts a fresh course request with an enrollment attached.
func createTestEnrollment(t *testing.T, db *DB, student, instructor *model.User) *model.Enrollment {
	t.Helper()
	req := createTestRequest(t, db, model.KindCourse, student, instructor)
	e := &model.Enrollment{
		RequestID:         req.ID,
		Student:           model.Party{ID: student.ID},
		Instructor:        model.Party{ID: instructor.ID},
		CourseName:        req.CourseName,
		CourseDescription: req.CourseDescription,
		Skill:             req.RequestedSkill,
		Status:            model.EnrollmentActive,
	}
	if _, err := db.TransitionRequest(context.Background(), repository.Transition{
		RequestID: req.ID, From: model.StatusPending, To: model.StatusAccepted, Enrollment: e,
	}); err != nil {
		t.Fatalf("failed to create test enrollment: %v", err)
	}
	return e
}

func TestGetEnrollment(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	e := createTestEnrollment(t, db, alice, bob)

	got, err := db.GetEnrollment(context.Background(), e.ID)
	if err != nil {
		t.Fatalf("GetEnrollment() error = %v", err)
	}
	if got.Instructor.Name != "bob" || got.Skill != "go" || got.Progress != 0 {
		t.Errorf("got %+v", got)
	}
	if got.StartDate.IsZero() {
		t.Error("StartDate not set")
	}

	if _, err := db.GetEnrollment(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListEnrollments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	createTestEnrollment(t, db, alice, bob)
	createTestEnrollment(t, db, carol, alice)
	createTestEnrollment(t, db, bob, carol)

	list, err := db.ListEnrollments(ctx, alice.ID)
	if err != nil {
		t.Fatalf("ListEnrollments() error = %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 enrollments for alice, got %d", len(list))
	}
}

func TestUpdateEnrollment(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	e := createTestEnrollment(t, db, alice, bob)

	e.Progress = 60
	if err := db.UpdateEnrollment(ctx, e, model.EnrollmentActive); err != nil {
		t.Fatalf("UpdateEnrollment(progress) error = %v", err)
	}
	if e.Progress != 60 {
		t.Errorf("Progress = %d, want 60", e.Progress)
	}

	end := time.Now().UTC()
	e.Status = model.EnrollmentCompleted
	e.EndDate = &end
	e.Feedback = &model.Feedback{Rating: 4, Comment: "solid", From: alice.ID}
	if err := db.UpdateEnrollment(ctx, e, model.EnrollmentActive); err != nil {
		t.Fatalf("UpdateEnrollment(complete) error = %v", err)
	}
	if e.EndDate == nil || e.Feedback == nil || e.Feedback.Rating != 4 {
		t.Errorf("after complete: %+v", e)
	}

	// Stale writer expecting active must lose.
	e.Status = model.EnrollmentCancelled
	if err := db.UpdateEnrollment(ctx, e, model.EnrollmentActive); !errors.Is(err, apperror.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestUpdateEnrollment_ProgressCheckConstraint(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	e := createTestEnrollment(t, db, alice, bob)

	e.Progress = 150
	if err := db.UpdateEnrollment(context.Background(), e, model.EnrollmentActive); err == nil {
		t.Error("expected CHECK constraint failure for progress 150")
	}
}
