package domain

import "time"

// Command is an outbound instruction for the transport.
type Command interface {
	ConversationID() ConversationID
	Kind() string
}

// Receipt is the server confirmation of a sent command.
type Receipt struct {
	MessageID string
	OfferID   OfferID // set for propose/counter confirmations
	At        time.Time
}

type ProposeCommand struct {
	Conversation ConversationID
	Price        int64
	Quantity     int
	Note         string
	ExpiresAt    *time.Time
}

func (c ProposeCommand) ConversationID() ConversationID { return c.Conversation }
func (c ProposeCommand) Kind() string                   { return "propose" }

type AcceptCommand struct {
	Conversation ConversationID
	OfferID      OfferID
}

func (c AcceptCommand) ConversationID() ConversationID { return c.Conversation }
func (c AcceptCommand) Kind() string                   { return "accept" }

type RejectCommand struct {
	Conversation ConversationID
	OfferID      OfferID
}

func (c RejectCommand) ConversationID() ConversationID { return c.Conversation }
func (c RejectCommand) Kind() string                   { return "reject" }

// CounterCommand resolves the prior offer and proposes a fresh one in a
// single exchange, mirroring the server's respond_to_offer endpoint.
type CounterCommand struct {
	Conversation ConversationID
	OfferID      OfferID
	Price        int64
	Quantity     int
	Note         string
}

func (c CounterCommand) ConversationID() ConversationID { return c.Conversation }
func (c CounterCommand) Kind() string                   { return "counter" }

type SendTextCommand struct {
	Conversation ConversationID
	Body         string
}

func (c SendTextCommand) ConversationID() ConversationID { return c.Conversation }
func (c SendTextCommand) Kind() string                   { return "sendText" }

// PresenceCommand is advisory only; transports may drop it silently.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

type PresenceCommand struct {
	Conversation ConversationID
	Status       PresenceStatus
}

func (c PresenceCommand) ConversationID() ConversationID { return c.Conversation }
func (c PresenceCommand) Kind() string                   { return "presence" }

type TypingCommand struct {
	Conversation ConversationID
	IsTyping     bool
}

func (c TypingCommand) ConversationID() ConversationID { return c.Conversation }
func (c TypingCommand) Kind() string                   { return "typing" }
