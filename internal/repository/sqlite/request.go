package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/repository"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so read helpers can run
// inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// requestSelect joins both parties so every request comes back with display data.
const requestSelect = `
	SELECT r.id, r.kind, r.status, r.offered_skill, r.requested_skill, r.course_name,
		r.course_description, r.message, r.feedback_rating, r.feedback_comment,
		r.feedback_from, r.created_at, r.updated_at,
		f.id, f.name, f.email, f.profile_image,
		t.id, t.name, t.email, t.profile_image
	FROM requests r
	JOIN users f ON f.id = r.from_user_id
	JOIN users t ON t.id = r.to_user_id`

// CreateRequest inserts a new pending request and fills in the parties'
// display data. The partial unique index idx_requests_one_active rejects a
// second pending/accepted request for the same (kind, from, to).
func (db *DB) CreateRequest(ctx context.Context, req *model.Request) error {
	t := now()
	req.ID = xid.New().String()
	req.Status = model.StatusPending
	req.CreatedAt = t
	req.UpdatedAt = t

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO requests (id, kind, from_user_id, to_user_id, status, offered_skill,
			requested_skill, course_name, course_description, message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, string(req.Kind), req.FromUser.ID, req.ToUser.ID, string(req.Status),
		req.OfferedSkill, req.RequestedSkill, req.CourseName, req.CourseDescription,
		req.Message, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict(fmt.Sprintf("an active %s request to this member already exists", req.Kind))
		}
		return fmt.Errorf("sqlite: inserting %s request: %w", req.Kind, err)
	}

	stored, err := getRequest(ctx, db.conn, req.ID)
	if err != nil {
		return err
	}
	*req = *stored
	return nil
}

// GetRequest retrieves a request by ID.
func (db *DB) GetRequest(ctx context.Context, id string) (*model.Request, error) {
	return getRequest(ctx, db.conn, id)
}

// ListRequests returns requests of the given kind where userID is either party,
// newest first.
func (db *DB) ListRequests(ctx context.Context, userID string, kind model.RequestKind) ([]model.Request, error) {
	rows, err := db.conn.QueryContext(ctx,
		requestSelect+`
		 WHERE r.kind = ? AND (r.from_user_id = ? OR r.to_user_id = ?)
		 ORDER BY r.created_at DESC, r.id DESC`,
		string(kind), userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s requests: %w", kind, err)
	}
	defer rows.Close()

	requests := []model.Request{}
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning request row: %w", err)
		}
		requests = append(requests, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating request rows: %w", err)
	}
	return requests, nil
}

// SharesRequest reports whether a and b have any request between them, of
// either kind, in either direction.
func (db *DB) SharesRequest(ctx context.Context, a, b string) (bool, error) {
	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM requests
			 WHERE (from_user_id = ? AND to_user_id = ?)
			    OR (from_user_id = ? AND to_user_id = ?)
		)`,
		a, b, b, a,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking requests between %s and %s: %w", a, b, err)
	}
	return exists, nil
}

// TransitionRequest applies a status change as a compare-and-set.
//
// TRANSACTION:
// The status update and the optional enrollment insert commit together or not
// at all. If the stored status is no longer t.From, someone else moved the
// request first and we return InvalidState without writing anything.
func (db *DB) TransitionRequest(ctx context.Context, t repository.Transition) (*model.Request, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		fbRating  sql.NullInt64
		fbComment sql.NullString
		fbFrom    sql.NullString
	)
	if t.Feedback != nil {
		fbRating = sql.NullInt64{Int64: int64(t.Feedback.Rating), Valid: true}
		fbComment = sql.NullString{String: t.Feedback.Comment, Valid: true}
		fbFrom = sql.NullString{String: t.Feedback.From, Valid: true}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE requests
		 SET status = ?,
		     feedback_rating = COALESCE(?, feedback_rating),
		     feedback_comment = COALESCE(?, feedback_comment),
		     feedback_from = COALESCE(?, feedback_from),
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(t.To), fbRating, fbComment, fbFrom, now(), t.RequestID, string(t.From),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: updating request %s: %w", t.RequestID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM requests WHERE id = ?`, t.RequestID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("request", t.RequestID)
		}
		if err != nil {
			return nil, fmt.Errorf("sqlite: reading request %s status: %w", t.RequestID, err)
		}
		return nil, apperror.InvalidState(fmt.Sprintf("request is now %s, not %s", current, t.From))
	}

	if t.Enrollment != nil {
		if err := insertEnrollment(ctx, tx, t.Enrollment); err != nil {
			return nil, err
		}
	}

	updated, err := getRequest(ctx, tx, t.RequestID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing transition of %s: %w", t.RequestID, err)
	}
	return updated, nil
}

// DeleteRequest removes a request. Its enrollment, if any, survives with
// request_id set to NULL; its chat messages are removed.
func (db *DB) DeleteRequest(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting request %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: reading rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("request", id)
	}
	return nil
}

func getRequest(ctx context.Context, q querier, id string) (*model.Request, error) {
	r, err := scanRequest(q.QueryRowContext(ctx, requestSelect+` WHERE r.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("request", id)
		}
		return nil, fmt.Errorf("sqlite: getting request %s: %w", id, err)
	}
	return r, nil
}

func scanRequest(row rowScanner) (*model.Request, error) {
	var (
		r  model.Request
		fb feedbackColumns
	)
	err := row.Scan(
		&r.ID, &r.Kind, &r.Status, &r.OfferedSkill, &r.RequestedSkill, &r.CourseName,
		&r.CourseDescription, &r.Message, &fb.rating, &fb.comment, &fb.from,
		&r.CreatedAt, &r.UpdatedAt,
		&r.FromUser.ID, &r.FromUser.Name, &r.FromUser.Email, &r.FromUser.ProfileImage,
		&r.ToUser.ID, &r.ToUser.Name, &r.ToUser.Email, &r.ToUser.ProfileImage,
	)
	if err != nil {
		return nil, err
	}
	r.Feedback = fb.toModel()
	return &r, nil
}

// feedbackColumns scans the three nullable feedback columns shared by
// requests and enrollments.
type feedbackColumns struct {
	rating  sql.NullInt64
	comment sql.NullString
	from    sql.NullString
}

func (f feedbackColumns) toModel() *model.Feedback {
	if !f.rating.Valid {
		return nil
	}
	return &model.Feedback{
		Rating:  int(f.rating.Int64),
		Comment: f.comment.String,
		From:    f.from.String,
	}
}
