package event

import (
	"time"

	"nego-lab/domain"
)

// DomainEvent is one inbound transport event, routed by conversation.
// Delivery order within a conversation matches server emission order.
type DomainEvent interface {
	ConversationID() domain.ConversationID
}

type MessageReceived struct {
	Conversation domain.ConversationID
	MessageID    string
	SenderID     string
	Body         string
	Type         domain.MessageType
	OfferPrice   int64
	OfferQty     int
	ExpiresAt    *time.Time
	CreatedAt    time.Time
}

func (e MessageReceived) ConversationID() domain.ConversationID { return e.Conversation }

func (e MessageReceived) Message() domain.Message {
	return domain.Message{
		ID:           e.MessageID,
		Conversation: e.Conversation,
		SenderID:     e.SenderID,
		Body:         e.Body,
		Type:         e.Type,
		Price:        e.OfferPrice,
		Quantity:     e.OfferQty,
		ExpiresAt:    e.ExpiresAt,
		CreatedAt:    e.CreatedAt,
	}
}

// OfferResolved is the authoritative resolution of an offer.
// Whatever it says overwrites any optimistic local guess.
type OfferResolved struct {
	Conversation   domain.ConversationID
	OfferID        domain.OfferID
	Resolution     domain.ResolutionStatus // accepted | rejected | countered
	CounterOfferID domain.OfferID
	ResolvedBy     string
	At             time.Time
}

func (e OfferResolved) ConversationID() domain.ConversationID { return e.Conversation }

type PresenceChanged struct {
	Conversation domain.ConversationID
	UserID       string
	Online       bool
}

func (e PresenceChanged) ConversationID() domain.ConversationID { return e.Conversation }

type TypingChanged struct {
	Conversation domain.ConversationID
	UserID       string
	IsTyping     bool
}

func (e TypingChanged) ConversationID() domain.ConversationID { return e.Conversation }
