package domain

// Action is a local user intent routed to one conversation's state machine.
// Actions are validated twice: structurally (tags below) before dispatch,
// then against the machine state. The server re-validates everything anyway;
// the local checks only save pointless round trips.
type Action interface {
	ConversationID() ConversationID
	Name() string
}

type ProposeAction struct {
	Conversation ConversationID `validate:"required"`
	Price        int64          `validate:"gte=0"`
	Quantity     int            `validate:"gte=1"`
	Note         string
}

func (a ProposeAction) ConversationID() ConversationID { return a.Conversation }
func (a ProposeAction) Name() string                   { return "propose" }

type AcceptAction struct {
	Conversation ConversationID `validate:"required"`
	OfferID      OfferID        `validate:"required"`
}

func (a AcceptAction) ConversationID() ConversationID { return a.Conversation }
func (a AcceptAction) Name() string                   { return "accept" }

type RejectAction struct {
	Conversation ConversationID `validate:"required"`
	OfferID      OfferID        `validate:"required"`
}

func (a RejectAction) ConversationID() ConversationID { return a.Conversation }
func (a RejectAction) Name() string                   { return "reject" }

type CounterAction struct {
	Conversation ConversationID `validate:"required"`
	OfferID      OfferID        `validate:"required"`
	Price        int64          `validate:"gte=0"`
	Quantity     int            `validate:"gte=1"`
	Note         string
}

func (a CounterAction) ConversationID() ConversationID { return a.Conversation }
func (a CounterAction) Name() string                   { return "counter" }
