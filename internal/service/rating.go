package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/repository"
)

const (
	maxFeedbackLength     = 1000
	maxSkillContextLength = 100
)

// Aggregate folds rating values into {average rounded to one decimal, count}.
// An empty slice yields the zero aggregate.
func Aggregate(values []int) model.RatingAggregate {
	if len(values) == 0 {
		return model.RatingAggregate{}
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	mean := float64(sum) / float64(len(values))
	return model.RatingAggregate{
		Average: math.Round(mean*10) / 10,
		Count:   len(values),
	}
}

// RatingService records ratings between members and keeps each member's
// aggregate current.
type RatingService struct {
	ratings repository.RatingRepository
	users   repository.UserRepository
	logger  *slog.Logger
}

func NewRatingService(ratings repository.RatingRepository, users repository.UserRepository, logger *slog.Logger) *RatingService {
	return &RatingService{ratings: ratings, users: users, logger: logger}
}

// SubmitRatingInput is the body of POST /api/ratings.
type SubmitRatingInput struct {
	ToUserID     string `json:"toUser"`
	Rating       int    `json:"rating"`
	Feedback     string `json:"feedback"`
	SkillContext string `json:"skillContext"`
}

// RatingResult is the stored rating plus the target's refreshed aggregate.
type RatingResult struct {
	Rating    *model.Rating         `json:"rating"`
	Aggregate model.RatingAggregate `json:"aggregate"`
}

// Submit stores actor's one rating of in.ToUserID.
func (s *RatingService) Submit(ctx context.Context, actor *model.User, in SubmitRatingInput) (*RatingResult, error) {
	toID := strings.TrimSpace(in.ToUserID)
	if toID == "" {
		return nil, apperror.ValidationFailed("toUser", "toUser is required")
	}
	if in.Rating < 1 || in.Rating > 5 {
		return nil, apperror.ValidationFailed("rating", "rating must be between 1 and 5")
	}
	feedback := strings.TrimSpace(in.Feedback)
	if feedback == "" {
		return nil, apperror.ValidationFailed("feedback", "feedback is required")
	}
	if utf8.RuneCountInString(feedback) > maxFeedbackLength {
		return nil, apperror.ValidationFailed("feedback",
			fmt.Sprintf("feedback must be at most %d characters", maxFeedbackLength))
	}
	skillContext := strings.TrimSpace(in.SkillContext)
	if utf8.RuneCountInString(skillContext) > maxSkillContextLength {
		return nil, apperror.ValidationFailed("skillContext",
			fmt.Sprintf("skillContext must be at most %d characters", maxSkillContextLength))
	}
	if toID == actor.ID {
		return nil, apperror.SelfReference("you cannot rate yourself")
	}

	if _, err := s.users.GetUserByID(ctx, toID); err != nil {
		return nil, fmt.Errorf("service/rating: loading target: %w", err)
	}

	r := &model.Rating{
		FromUser:     model.Party{ID: actor.ID, Name: actor.Name, Email: actor.Email, ProfileImage: actor.ProfileImage},
		ToUserID:     toID,
		Rating:       in.Rating,
		Feedback:     feedback,
		SkillContext: skillContext,
	}
	agg, err := s.ratings.CreateRating(ctx, r, Aggregate)
	if err != nil {
		return nil, fmt.Errorf("service/rating: storing rating: %w", err)
	}

	s.logger.Info("rating submitted",
		slog.String("rating_id", r.ID),
		slog.String("from", actor.ID),
		slog.String("to", toID),
		slog.Float64("average", agg.Average),
		slog.Int("count", agg.Count),
	)
	return &RatingResult{Rating: r, Aggregate: agg}, nil
}

// List returns the ratings userID has received, newest first.
func (s *RatingService) List(ctx context.Context, userID string) ([]model.Rating, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperror.ValidationFailed("userId", "userId is required")
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("service/rating: loading user: %w", err)
	}
	list, err := s.ratings.ListRatingsFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/rating: listing: %w", err)
	}
	return list, nil
}
