package model

import "time"

// Message is a stored chat line between the two parties of a swap. The relay
// delivers chat live; this is the durable history clients reload from.
type Message struct {
	ID         string    `json:"id"`
	SwapID     string    `json:"swapId"`
	Sender     Party     `json:"sender"`
	ReceiverID string    `json:"receiver"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}
