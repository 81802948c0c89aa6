// Package model defines the data structures used throughout the application.
// Structs here carry JSON tags because handlers encode them directly.
package model

import "time"

// Role is a member's permission level.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// RatingAggregate is the running summary of ratings a user has received.
// It is derived data: only the rating aggregator writes it.
type RatingAggregate struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// User represents a registered member.
//
// Email is the unique identity used at login. GitHubID is set only for
// members who signed in with GitHub; it is nil for password accounts.
// PasswordHash never leaves the server (json:"-").
type User struct {
	ID              string          `json:"id"`
	Email           string          `json:"email"`
	Name            string          `json:"name"`
	PasswordHash    string          `json:"-"`
	GitHubID        *int64          `json:"githubId,omitempty"`
	Location        string          `json:"location,omitempty"`
	Availability    string          `json:"availability,omitempty"`
	ProfileImage    string          `json:"profileImage,omitempty"`
	SkillsOffered   []string        `json:"skillsOffered"`
	SkillsWanted    []string        `json:"skillsWanted"`
	IsProfilePublic bool            `json:"isProfilePublic"`
	Role            Role            `json:"role"`
	Banned          bool            `json:"isBanned"`
	BanReason       string          `json:"banReason,omitempty"`
	BannedAt        *time.Time      `json:"bannedAt,omitempty"`
	Rating          RatingAggregate `json:"rating"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// IsAdmin reports whether the user may use moderation endpoints.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Party is the display data of a user embedded in requests, enrollments,
// ratings and messages.
type Party struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage,omitempty"`
}
