// Package transport carries commands to the marketplace server and delivers
// its events back, over either a polled HTTP channel or a pushed WebSocket.
// Both implementations present the same contract upward; the negotiation
// core never learns which one is underneath.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"nego-lab/domain"
	"nego-lab/domain/event"
)

// Frame event names, matching the server's emission vocabulary.
const (
	frameSendMessage    = "send_message"
	frameRespondToOffer = "respond_to_offer"
	frameTyping         = "typing"
	framePresence       = "presence"
	frameJoin           = "join_conversation"
	frameLeave          = "leave_conversation"

	frameNewMessage    = "new_message"
	frameOfferResponse = "offer_response"
	frameUserTyping    = "user_typing"
	frameUserOnline    = "user_online"
	frameUserOffline   = "user_offline"
	frameMessageSent   = "message_sent"
	frameResponseSent  = "response_sent"
	frameError         = "error"
)

// frame is the socket envelope: one event name plus its payload.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func newFrame(eventName string, payload any) (frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return frame{}, err
	}
	return frame{Event: eventName, Data: data}, nil
}

// wireMessage is one chat entry as the server serializes it.
type wireMessage struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Body           string     `json:"message"`
	Type           string     `json:"message_type"`
	OfferPrice     int64      `json:"offer_price,omitempty"`
	OfferQuantity  int        `json:"offer_quantity,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (w wireMessage) toEvent() event.MessageReceived {
	return event.MessageReceived{
		Conversation: domain.ConversationID(w.ConversationID),
		MessageID:    w.ID,
		SenderID:     w.SenderID,
		Body:         w.Body,
		Type:         domain.MessageType(w.Type),
		OfferPrice:   w.OfferPrice,
		OfferQty:     w.OfferQuantity,
		ExpiresAt:    w.ExpiresAt,
		CreatedAt:    w.CreatedAt,
	}
}

// wireOfferResponse is the server's resolution broadcast.
type wireOfferResponse struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	Action         string    `json:"action"`
	CounterOfferID string    `json:"counter_offer_id,omitempty"`
	UserID         string    `json:"user_id"`
	At             time.Time `json:"at"`
}

func (w wireOfferResponse) toEvent() (event.OfferResolved, error) {
	var resolution domain.ResolutionStatus
	switch w.Action {
	case "accept", "accepted":
		resolution = domain.OfferAccepted
	case "reject", "rejected":
		resolution = domain.OfferRejected
	case "counter", "countered":
		resolution = domain.OfferCountered
	default:
		return event.OfferResolved{}, fmt.Errorf("unknown offer action %q", w.Action)
	}
	return event.OfferResolved{
		Conversation:   domain.ConversationID(w.ConversationID),
		OfferID:        domain.OfferID(w.MessageID),
		Resolution:     resolution,
		CounterOfferID: domain.OfferID(w.CounterOfferID),
		ResolvedBy:     w.UserID,
		At:             w.At,
	}, nil
}

type wirePresence struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Status         string `json:"status,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
}

// sendMessageBody is the payload of send_message, for both plain text and
// new offers.
type sendMessageBody struct {
	ConversationID string     `json:"conversation_id"`
	Body           string     `json:"message"`
	Type           string     `json:"message_type"`
	OfferPrice     int64      `json:"offer_price,omitempty"`
	OfferQuantity  int        `json:"offer_quantity,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// respondBody is the payload of respond_to_offer. A counter both resolves
// the prior offer and proposes alternate terms in one exchange.
type respondBody struct {
	ConversationID  string `json:"conversation_id"`
	MessageID       string `json:"message_id"`
	Action          string `json:"action"`
	CounterPrice    int64  `json:"counter_price,omitempty"`
	CounterQuantity int    `json:"counter_quantity,omitempty"`
	Note            string `json:"note,omitempty"`
}

// confirmation is the server ack for a sent command.
type confirmation struct {
	Status         string `json:"status"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Error          string `json:"error,omitempty"`
}

func (c confirmation) toReceipt(at time.Time) (domain.Receipt, error) {
	if c.Status != "success" {
		return domain.Receipt{}, fmt.Errorf("server rejected command: %s", c.Error)
	}
	return domain.Receipt{
		MessageID: c.MessageID,
		OfferID:   domain.OfferID(c.MessageID),
		At:        at,
	}, nil
}

// encodeCommand maps one domain command to its frame name and payload.
func encodeCommand(cmd domain.Command) (string, any, error) {
	switch c := cmd.(type) {
	case domain.ProposeCommand:
		return frameSendMessage, sendMessageBody{
			ConversationID: string(c.Conversation),
			Body:           c.Note,
			Type:           string(domain.MessageOffer),
			OfferPrice:     c.Price,
			OfferQuantity:  c.Quantity,
			ExpiresAt:      c.ExpiresAt,
		}, nil
	case domain.SendTextCommand:
		return frameSendMessage, sendMessageBody{
			ConversationID: string(c.Conversation),
			Body:           c.Body,
			Type:           string(domain.MessageText),
		}, nil
	case domain.AcceptCommand:
		return frameRespondToOffer, respondBody{
			ConversationID: string(c.Conversation),
			MessageID:      string(c.OfferID),
			Action:         "accept",
		}, nil
	case domain.RejectCommand:
		return frameRespondToOffer, respondBody{
			ConversationID: string(c.Conversation),
			MessageID:      string(c.OfferID),
			Action:         "reject",
		}, nil
	case domain.CounterCommand:
		return frameRespondToOffer, respondBody{
			ConversationID:  string(c.Conversation),
			MessageID:       string(c.OfferID),
			Action:          "counter",
			CounterPrice:    c.Price,
			CounterQuantity: c.Quantity,
			Note:            c.Note,
		}, nil
	case domain.TypingCommand:
		return frameTyping, wirePresence{
			ConversationID: string(c.Conversation),
			IsTyping:       c.IsTyping,
		}, nil
	case domain.PresenceCommand:
		return framePresence, wirePresence{
			ConversationID: string(c.Conversation),
			Status:         string(c.Status),
		}, nil
	default:
		return "", nil, fmt.Errorf("unknown command %q", cmd.Kind())
	}
}

// decodeEvent maps one inbound frame to a domain event.
// Confirmation frames are handled separately; nil means "not an event".
func decodeEvent(f frame) (event.DomainEvent, error) {
	switch f.Event {
	case frameNewMessage:
		var w wireMessage
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, err
		}
		return w.toEvent(), nil
	case frameOfferResponse:
		var w wireOfferResponse
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, err
		}
		return w.toEvent()
	case frameUserTyping:
		var w wirePresence
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, err
		}
		return event.TypingChanged{
			Conversation: domain.ConversationID(w.ConversationID),
			UserID:       w.UserID,
			IsTyping:     w.IsTyping,
		}, nil
	case frameUserOnline, frameUserOffline:
		var w wirePresence
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return nil, err
		}
		return event.PresenceChanged{
			Conversation: domain.ConversationID(w.ConversationID),
			UserID:       w.UserID,
			Online:       f.Event == frameUserOnline,
		}, nil
	default:
		return nil, nil
	}
}
