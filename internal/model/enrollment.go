package model

import "time"

// EnrollmentStatus is the state of a teaching relationship.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentCancelled EnrollmentStatus = "cancelled"
)

// Valid reports whether s is a known enrollment status.
func (s EnrollmentStatus) Valid() bool {
	return s == EnrollmentActive || s == EnrollmentCompleted || s == EnrollmentCancelled
}

// Terminal reports whether the enrollment can no longer change.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentCompleted || s == EnrollmentCancelled
}

// Enrollment is created once, when a course-request is accepted. The course
// fields are copied from the request at that moment and are not kept in sync.
//
// RequestID is the idempotency key: the store allows one enrollment per
// originating request. It becomes empty if that request is later deleted.
type Enrollment struct {
	ID                string           `json:"id"`
	RequestID         string           `json:"requestId,omitempty"`
	Student           Party            `json:"student"`
	Instructor        Party            `json:"instructor"`
	CourseName        string           `json:"courseName"`
	CourseDescription string           `json:"courseDescription"`
	Skill             string           `json:"skill"`
	Status            EnrollmentStatus `json:"status"`
	Progress          int              `json:"progress"`
	StartDate         time.Time        `json:"startDate"`
	EndDate           *time.Time       `json:"endDate,omitempty"`
	Feedback          *Feedback        `json:"feedback,omitempty"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// IsParty reports whether userID is the student or the instructor.
func (e *Enrollment) IsParty(userID string) bool {
	return userID == e.Student.ID || userID == e.Instructor.ID
}
