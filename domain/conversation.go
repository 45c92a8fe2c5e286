// Package domain contains core concepts of the negotiation client.
// Offers, messages and conversations are validated by the domain and
// never depend on a transport or storage implementation.
package domain

import "fmt"

// ConversationID is the server-assigned identifier of a two-party thread,
// e.g. "conv_12_40_product_7".
type ConversationID string

type ConversationStatus string

const (
	ConversationActive      ConversationStatus = "active"
	ConversationNegotiating ConversationStatus = "negotiating"
	ConversationCompleted   ConversationStatus = "completed"
)

// Conversation is the thread in which offers are embedded.
// Exactly two participants: the seller and the buyer.
type Conversation struct {
	ID        ConversationID
	SellerID  string
	BuyerID   string
	ProductID string
	Status    ConversationStatus
}

// PeerOf returns the other participant of the thread.
func (c Conversation) PeerOf(userID string) (string, error) {
	switch userID {
	case c.SellerID:
		return c.BuyerID, nil
	case c.BuyerID:
		return c.SellerID, nil
	default:
		return "", fmt.Errorf("user %s is not part of conversation %s", userID, c.ID)
	}
}

func (c Conversation) HasParticipant(userID string) bool {
	return userID == c.SellerID || userID == c.BuyerID
}
