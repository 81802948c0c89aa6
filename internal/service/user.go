package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/skillswap/internal/apperror"
	"github.com/sakif/skillswap/internal/model"
	"github.com/sakif/skillswap/internal/repository"
)

const (
	maxPageSize           = 100
	maxNameLength         = 100
	maxProfileFieldLength = 200
	maxSkillsPerList      = 50
)

// SessionCloser ends a member's live connections. *relay.Hub implements it.
type SessionCloser interface {
	Disconnect(ctx context.Context, identity string) int
}

// UserService covers profiles, member browsing and admin moderation.
type UserService struct {
	users    repository.UserRepository
	sessions SessionCloser
	logger   *slog.Logger
}

// NewUserService creates a UserService. sessions may be nil, in which case a
// ban only takes effect on the member's next request.
func NewUserService(users repository.UserRepository, sessions SessionCloser, logger *slog.Logger) *UserService {
	return &UserService{users: users, sessions: sessions, logger: logger}
}

// UpdateProfileInput is the body of PUT /api/users/profile. A missing
// isProfilePublic makes the profile public.
type UpdateProfileInput struct {
	Name            string   `json:"name"`
	Location        string   `json:"location"`
	Availability    string   `json:"availability"`
	SkillsOffered   []string `json:"skillsOffered"`
	SkillsWanted    []string `json:"skillsWanted"`
	IsProfilePublic *bool    `json:"isProfilePublic"`
}

// UpdateProfile replaces actor's editable profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, actor *model.User, in UpdateProfileInput) (*model.User, error) {
	p := repository.ProfileUpdate{
		Name:            strings.TrimSpace(in.Name),
		Location:        strings.TrimSpace(in.Location),
		Availability:    strings.TrimSpace(in.Availability),
		SkillsOffered:   cleanSkills(in.SkillsOffered),
		SkillsWanted:    cleanSkills(in.SkillsWanted),
		IsProfilePublic: in.IsProfilePublic == nil || *in.IsProfilePublic,
	}

	if err := requireText("name", p.Name, maxNameLength); err != nil {
		return nil, err
	}
	for field, v := range map[string]string{"location": p.Location, "availability": p.Availability} {
		if utf8.RuneCountInString(v) > maxProfileFieldLength {
			return nil, apperror.ValidationFailed(field,
				fmt.Sprintf("%s must be at most %d characters", field, maxProfileFieldLength))
		}
	}
	for field, skills := range map[string][]string{"skillsOffered": p.SkillsOffered, "skillsWanted": p.SkillsWanted} {
		if err := validateSkills(field, skills); err != nil {
			return nil, err
		}
	}

	user, err := s.users.UpdateProfile(ctx, actor.ID, p)
	if err != nil {
		return nil, fmt.Errorf("service/user: updating profile of %s: %w", actor.ID, err)
	}
	s.logger.Info("profile updated",
		slog.String("userID", actor.ID),
		slog.Int("skills_offered", len(p.SkillsOffered)),
		slog.Int("skills_wanted", len(p.SkillsWanted)),
		slog.Bool("public", p.IsProfilePublic),
	)
	return user, nil
}

// ListAll returns every member, banned and private ones included. Admin only.
func (s *UserService) ListAll(ctx context.Context, actor *model.User, opts repository.ListOptions) ([]model.User, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("only admins may list all members")
	}
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, apperror.ValidationFailed("limit", "limit and offset must not be negative")
	}
	if opts.Limit > maxPageSize {
		opts.Limit = maxPageSize
	}
	list, err := s.users.ListAllUsers(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service/user: listing all members: %w", err)
	}
	return list, nil
}

// Browse lists public, non-banned members other than actor.
func (s *UserService) Browse(ctx context.Context, actor *model.User, opts repository.ListOptions) ([]model.User, error) {
	if opts.Limit < 0 || opts.Offset < 0 {
		return nil, apperror.ValidationFailed("limit", "limit and offset must not be negative")
	}
	if opts.Limit > maxPageSize {
		opts.Limit = maxPageSize
	}
	list, err := s.users.ListPublicUsers(ctx, actor.ID, opts)
	if err != nil {
		return nil, fmt.Errorf("service/user: browsing: %w", err)
	}
	return list, nil
}

// BanInput is the body of PATCH /api/admin/users/{id}.
type BanInput struct {
	Banned bool   `json:"isBanned"`
	Reason string `json:"banReason"`
}

// SetBan bans or unbans a member. Admins cannot ban themselves. A ban also
// closes the member's relay connections.
func (s *UserService) SetBan(ctx context.Context, actor *model.User, id string, in BanInput) (*model.User, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("only admins may ban members")
	}
	if id == actor.ID && in.Banned {
		return nil, apperror.SelfReference("you cannot ban yourself")
	}
	reason := strings.TrimSpace(in.Reason)
	if len(reason) > maxCommentLength {
		return nil, apperror.ValidationFailed("banReason",
			fmt.Sprintf("banReason must be at most %d characters", maxCommentLength))
	}

	user, err := s.users.SetBan(ctx, id, in.Banned, reason)
	if err != nil {
		return nil, fmt.Errorf("service/user: setting ban on %s: %w", id, err)
	}
	s.logger.Info("ban updated",
		slog.String("userID", id),
		slog.Bool("banned", in.Banned),
		slog.String("admin", actor.ID),
	)

	if in.Banned && s.sessions != nil {
		closed := s.sessions.Disconnect(ctx, id)
		s.logger.Debug("closed relay connections of banned member",
			slog.String("userID", id),
			slog.Int("connections", closed),
		)
	}
	return user, nil
}

func validateSkills(field string, skills []string) error {
	if len(skills) > maxSkillsPerList {
		return apperror.ValidationFailed(field,
			fmt.Sprintf("%s may list at most %d skills", field, maxSkillsPerList))
	}
	for _, skill := range skills {
		if utf8.RuneCountInString(skill) > maxSkillLength {
			return apperror.ValidationFailed(field,
				fmt.Sprintf("each skill must be at most %d characters", maxSkillLength))
		}
	}
	return nil
}
