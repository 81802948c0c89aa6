package model

import "time"

// RequestKind distinguishes swap-requests from course-requests. Both share
// the same lifecycle and differ only in payload.
type RequestKind string

const (
	KindSwap   RequestKind = "swap"
	KindCourse RequestKind = "course"
)

// Valid reports whether k is a known kind.
func (k RequestKind) Valid() bool {
	return k == KindSwap || k == KindCourse
}

// RequestStatus is a state of the request lifecycle.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusAccepted  RequestStatus = "accepted"
	StatusRejected  RequestStatus = "rejected"
	StatusCompleted RequestStatus = "completed"
	StatusCancelled RequestStatus = "cancelled"
)

// Valid reports whether s is one of the five lifecycle statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the status counts toward the one-active-request-per-pair rule.
func (s RequestStatus) Active() bool {
	return s == StatusPending || s == StatusAccepted
}

// Terminal reports whether no further transition is permitted.
func (s RequestStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusCancelled
}

// Feedback is attached to a request or enrollment when it completes.
// From is the ID of the party who supplied it.
type Feedback struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
	From    string `json:"from"`
}

// RequestPayload holds the kind-specific fields.
//
// Swap: OfferedSkill + RequestedSkill.
// Course: CourseName + CourseDescription + RequestedSkill.
type RequestPayload struct {
	OfferedSkill      string `json:"offeredSkill,omitempty"`
	RequestedSkill    string `json:"requestedSkill"`
	CourseName        string `json:"courseName,omitempty"`
	CourseDescription string `json:"courseDescription,omitempty"`
	Message           string `json:"message,omitempty"`
}

// Request is a swap-request or course-request. FromUser is the initiator and
// ToUser the recipient; both are immutable after creation.
type Request struct {
	ID       string        `json:"id"`
	Kind     RequestKind   `json:"kind"`
	FromUser Party         `json:"fromUser"`
	ToUser   Party         `json:"toUser"`
	Status   RequestStatus `json:"status"`
	RequestPayload
	Feedback  *Feedback `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PartyRole is the actor's relationship to a request.
type PartyRole string

const (
	RoleInitiator PartyRole = "initiator"
	RoleRecipient PartyRole = "recipient"
	RoleOutsider  PartyRole = "outsider"
)

// RoleOf returns the role userID plays on the request.
func (r *Request) RoleOf(userID string) PartyRole {
	switch userID {
	case r.FromUser.ID:
		return RoleInitiator
	case r.ToUser.ID:
		return RoleRecipient
	}
	return RoleOutsider
}
