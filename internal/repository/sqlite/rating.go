package sqlite

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/repository"
)

// CreateRating inserts a rating and refreshes the target's aggregate.
//
// FULL RECOMPUTE:
// Rather than nudging the stored average by the new value, we re-read every
// rating the target has received and let agg fold them. Insert, re-read and
// write-back share one transaction, so two concurrent ratings for the same
// member cannot overwrite each other's aggregate.
func (db *DB) CreateRating(ctx context.Context, r *model.Rating, agg repository.Aggregator) (model.RatingAggregate, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return model.RatingAggregate{}, fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	r.ID = xid.New().String()
	r.CreatedAt = now()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ratings (id, from_user_id, to_user_id, rating, feedback, skill_context, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.FromUser.ID, r.ToUserID, r.Rating, r.Feedback, r.SkillContext, r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.RatingAggregate{}, apperror.Conflict("you have already rated this member")
		}
		return model.RatingAggregate{}, fmt.Errorf("sqlite: inserting rating: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT rating FROM ratings WHERE to_user_id = ?`, r.ToUserID)
	if err != nil {
		return model.RatingAggregate{}, fmt.Errorf("sqlite: reading ratings for %s: %w", r.ToUserID, err)
	}
	var values []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return model.RatingAggregate{}, fmt.Errorf("sqlite: scanning rating: %w", err)
		}
		values = append(values, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.RatingAggregate{}, fmt.Errorf("sqlite: iterating ratings: %w", err)
	}

	aggregate := agg(values)
	result, err := tx.ExecContext(ctx,
		`UPDATE users SET rating_average = ?, rating_count = ?, updated_at = ? WHERE id = ?`,
		aggregate.Average, aggregate.Count, now(), r.ToUserID,
	)
	if err != nil {
		return model.RatingAggregate{}, fmt.Errorf("sqlite: writing aggregate for %s: %w", r.ToUserID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return model.RatingAggregate{}, apperror.NotFound("user", r.ToUserID)
	}

	if err := tx.Commit(); err != nil {
		return model.RatingAggregate{}, fmt.Errorf("sqlite: committing rating: %w", err)
	}
	return aggregate, nil
}

// ListRatingsFor returns ratings received by userID, newest first, with the
// rater's display data.
func (db *DB) ListRatingsFor(ctx context.Context, userID string) ([]model.Rating, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT r.id, r.to_user_id, r.rating, r.feedback, r.skill_context, r.created_at,
			f.id, f.name, f.email, f.profile_image
		 FROM ratings r
		 JOIN users f ON f.id = r.from_user_id
		 WHERE r.to_user_id = ?
		 ORDER BY r.created_at DESC, r.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing ratings for %s: %w", userID, err)
	}
	defer rows.Close()

	ratings := []model.Rating{}
	for rows.Next() {
		var r model.Rating
		if err := rows.Scan(
			&r.ID, &r.ToUserID, &r.Rating, &r.Feedback, &r.SkillContext, &r.CreatedAt,
			&r.FromUser.ID, &r.FromUser.Name, &r.FromUser.Email, &r.FromUser.ProfileImage,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning rating row: %w", err)
		}
		ratings = append(ratings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating rating rows: %w", err)
	}
	return ratings, nil
}
