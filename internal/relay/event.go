// Package relay is the live presence and delivery layer.
//
// The hub keeps one in-memory map from member identity to the connection that
// most recently registered for it. Chat messages and notifications are pushed
// to a connected recipient and silently dropped otherwise: there is no queue
// and nothing is persisted. Durable chat history lives in the messages table
// and is written through the REST API, not here.
package relay

import (
	"fmt"

	"github.com/sakif/skillswap/internal/model"
)

// EventType names an outbound frame.
type EventType string

const (
	EventPresence     EventType = "presence"
	EventMessage      EventType = "message"
	EventNotification EventType = "notification"
	EventError        EventType = "error"

	// EventDisconnect travels between nodes only and is never written to a
	// client.
	EventDisconnect EventType = "disconnect"
)

// Event is one outbound frame.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// ChatPayload is the data of a message event.
type ChatPayload struct {
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

// NotificationPayload is the data of a notification event.
type NotificationPayload struct {
	SenderName string `json:"senderName"`
	Message    string `json:"message"`
}

// PresencePayload lists the identities connected to this node, sorted.
type PresencePayload struct {
	Users []string `json:"users"`
}

// ErrorPayload explains why an inbound frame was refused.
type ErrorPayload struct {
	Message string `json:"message"`
}

// RequestNotice is the text of a new-request notification.
func RequestNotice(senderName string, kind model.RequestKind) string {
	if kind == model.KindCourse {
		return fmt.Sprintf("%s has sent you a course request!", senderName)
	}
	return fmt.Sprintf("%s has sent you a swap request!", senderName)
}
