package domain

import "time"

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageOffer MessageType = "offer"
	MessageDeal  MessageType = "deal"
)

// Message is an immutable chat entry delivered by the transport.
// Offer messages additionally carry the proposed price and quantity.
type Message struct {
	ID           string
	Conversation ConversationID
	SenderID     string
	Body         string
	Type         MessageType
	Price        int64
	Quantity     int
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}

func (m Message) IsOffer() bool { return m.Type == MessageOffer }
