// Package projection builds local read models from observed events.
// Handles ordering, deduplication, and unread counting.
// Does not emit events or interact with the renderer directly.
package projection

import (
	"nego-lab/domain"
	"nego-lab/domain/event"
	"nego-lab/domain/nego"
)

// ConversationView is the read-only snapshot handed to the renderer after
// every transition.
type ConversationView struct {
	Conversation domain.ConversationID
	State        nego.State
	ActiveOffer  *domain.Offer
	Offers       []domain.Offer
	Messages     []domain.Message
	Unread       int
	Completed    bool
	DealPrice    int64
	PeerOnline   bool
	PeerTyping   bool
}

// Timeline accumulates the message history of one conversation.
type Timeline struct {
	conversation domain.ConversationID
	selfID       string
	visible      bool
	messages     []domain.Message
	seen         map[string]struct{}
	unread       int
	completed    bool
	dealPrice    int64
	peerOnline   bool
	peerTyping   bool
}

func NewTimeline(conversation domain.ConversationID, selfID string) *Timeline {
	return &Timeline{
		conversation: conversation,
		selfID:       selfID,
		visible:      true,
		seen:         make(map[string]struct{}),
	}
}

// Observe folds one inbound event into the timeline.
// Duplicate message ids are dropped so replayed poll batches stay harmless.
func (t *Timeline) Observe(e event.DomainEvent) {
	switch evt := e.(type) {
	case event.MessageReceived:
		if _, dup := t.seen[evt.MessageID]; dup {
			return
		}
		t.seen[evt.MessageID] = struct{}{}
		t.messages = append(t.messages, evt.Message())
		if evt.Type == domain.MessageDeal {
			t.completed = true
			t.dealPrice = evt.OfferPrice
		}
		if !t.visible && evt.SenderID != t.selfID {
			t.unread++
		}
	case event.PresenceChanged:
		if evt.UserID != t.selfID {
			t.peerOnline = evt.Online
		}
	case event.TypingChanged:
		if evt.UserID != t.selfID {
			t.peerTyping = evt.IsTyping
		}
	}
}

// SetVisible tracks the foreground/background state of the view.
// Returning to the foreground clears the unread counter.
func (t *Timeline) SetVisible(visible bool) {
	t.visible = visible
	if visible {
		t.unread = 0
	}
}

func (t *Timeline) Unread() int { return t.unread }

// View merges the timeline with the machine state into one snapshot.
func (t *Timeline) View(m *nego.Machine) ConversationView {
	messages := make([]domain.Message, len(t.messages))
	copy(messages, t.messages)
	return ConversationView{
		Conversation: t.conversation,
		State:        m.State(),
		ActiveOffer:  m.ActiveOffer(),
		Offers:       m.Offers(),
		Messages:     messages,
		Unread:       t.unread,
		Completed:    t.completed,
		DealPrice:    t.dealPrice,
		PeerOnline:   t.peerOnline,
		PeerTyping:   t.peerTyping,
	}
}
