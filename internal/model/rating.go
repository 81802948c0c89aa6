package model

import "time"

// Rating is one member's review of another. A (FromUser, ToUser) pair occurs
// at most once and ratings are never edited after creation.
type Rating struct {
	ID           string    `json:"id"`
	FromUser     Party     `json:"fromUser"`
	ToUserID     string    `json:"toUser"`
	Rating       int       `json:"rating"`
	Feedback     string    `json:"feedback"`
	SkillContext string    `json:"skillContext,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
