package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/model"
)

const enrollmentSelect = `
	SELECT e.id, e.request_id, e.course_name, e.course_description, e.skill, e.status,
		e.progress, e.start_date, e.end_date, e.feedback_rating, e.feedback_comment,
		e.feedback_from, e.created_at, e.updated_at,
		s.id, s.name, s.email, s.profile_image,
		i.id, i.name, i.email, i.profile_image
	FROM enrollments e
	JOIN users s ON s.id = e.student_id
	JOIN users i ON i.id = e.instructor_id`

// insertEnrollment runs inside the accept transaction. The UNIQUE request_id
// column turns a second insert for the same request into a Conflict.
func insertEnrollment(ctx context.Context, tx *sql.Tx, e *model.Enrollment) error {
	t := now()
	e.ID = xid.New().String()
	e.CreatedAt = t
	e.UpdatedAt = t
	if e.StartDate.IsZero() {
		e.StartDate = t
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO enrollments (id, request_id, student_id, instructor_id, course_name,
			course_description, skill, status, progress, start_date, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, e.Student.ID, e.Instructor.ID, e.CourseName,
		e.CourseDescription, e.Skill, string(e.Status), e.Progress, e.StartDate,
		e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("an enrollment already exists for this course request")
		}
		return fmt.Errorf("sqlite: inserting enrollment for request %s: %w", e.RequestID, err)
	}

	stored, err := getEnrollment(ctx, tx, `e.id = ?`, e.ID)
	if err != nil {
		return err
	}
	*e = *stored
	return nil
}

// GetEnrollment retrieves an enrollment by ID.
func (db *DB) GetEnrollment(ctx context.Context, id string) (*model.Enrollment, error) {
	e, err := getEnrollment(ctx, db.conn, `e.id = ?`, id)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFound("enrollment", id)
	}
	return e, err
}

// GetEnrollmentByRequestID retrieves the enrollment derived from a course request.
func (db *DB) GetEnrollmentByRequestID(ctx context.Context, requestID string) (*model.Enrollment, error) {
	e, err := getEnrollment(ctx, db.conn, `e.request_id = ?`, requestID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.NotFound("enrollment for request", requestID)
	}
	return e, err
}

// ListEnrollments returns enrollments where userID is student or instructor,
// newest first.
func (db *DB) ListEnrollments(ctx context.Context, userID string) ([]model.Enrollment, error) {
	rows, err := db.conn.QueryContext(ctx,
		enrollmentSelect+`
		 WHERE e.student_id = ? OR e.instructor_id = ?
		 ORDER BY e.created_at DESC, e.id DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing enrollments: %w", err)
	}
	defer rows.Close()

	enrollments := []model.Enrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning enrollment row: %w", err)
		}
		enrollments = append(enrollments, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating enrollment rows: %w", err)
	}
	return enrollments, nil
}

// UpdateEnrollment writes progress, status, end date and feedback, provided
// the stored status still equals from. The stored record is copied back into e.
func (db *DB) UpdateEnrollment(ctx context.Context, e *model.Enrollment, from model.EnrollmentStatus) error {
	var fb feedbackColumns
	if e.Feedback != nil {
		fb.rating = sql.NullInt64{Int64: int64(e.Feedback.Rating), Valid: true}
		fb.comment = sql.NullString{String: e.Feedback.Comment, Valid: true}
		fb.from = sql.NullString{String: e.Feedback.From, Valid: true}
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE enrollments
		 SET status = ?, progress = ?, end_date = ?,
		     feedback_rating = ?, feedback_comment = ?, feedback_from = ?,
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(e.Status), e.Progress, nullTime(e.EndDate),
		fb.rating, fb.comment, fb.from,
		now(), e.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating enrollment %s: %w", e.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		current, err := db.GetEnrollment(ctx, e.ID)
		if err != nil {
			return err
		}
		return apperror.InvalidState(fmt.Sprintf("enrollment is now %s, not %s", current.Status, from))
	}

	stored, err := db.GetEnrollment(ctx, e.ID)
	if err != nil {
		return err
	}
	*e = *stored
	return nil
}

func getEnrollment(ctx context.Context, q querier, where string, arg any) (*model.Enrollment, error) {
	e, err := scanEnrollment(q.QueryRowContext(ctx, enrollmentSelect+` WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: getting enrollment: %w", err)
	}
	return e, nil
}

func scanEnrollment(row rowScanner) (*model.Enrollment, error) {
	var (
		e         model.Enrollment
		requestID sql.NullString
		endDate   sql.NullTime
		fb        feedbackColumns
	)
	err := row.Scan(
		&e.ID, &requestID, &e.CourseName, &e.CourseDescription, &e.Skill, &e.Status,
		&e.Progress, &e.StartDate, &endDate, &fb.rating, &fb.comment, &fb.from,
		&e.CreatedAt, &e.UpdatedAt,
		&e.Student.ID, &e.Student.Name, &e.Student.Email, &e.Student.ProfileImage,
		&e.Instructor.ID, &e.Instructor.Name, &e.Instructor.Email, &e.Instructor.ProfileImage,
	)
	if err != nil {
		return nil, err
	}
	e.RequestID = requestID.String
	e.EndDate = nullTimePtr(endDate)
	e.Feedback = fb.toModel()
	return &e, nil
}
