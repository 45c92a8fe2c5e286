package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nego-lab/domain"
	"nego-lab/domain/nego"
	"nego-lab/errors"
	"nego-lab/projection"
)

func TestTermRenderer_Shows_Pending_Offer_And_Messages(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	renderer := NewTermRenderer(&out, false)

	now := time.Now()
	renderer.RenderConversation(projection.ConversationView{
		Conversation: "conv_1_2_product_7",
		State:        nego.StateOfferPending,
		ActiveOffer:  &domain.Offer{ID: "offer-1", ProposerID: "seller-2", Price: 40_000, Quantity: 1},
		Offers:       []domain.Offer{{ID: "offer-1", ProposerID: "seller-2", Price: 40_000, Quantity: 1}},
		Messages: []domain.Message{
			{ID: "msg-1", SenderID: "seller-2", Body: "take it", Type: domain.MessageText, CreatedAt: now},
		},
		Unread: 2,
	})

	rendered := out.String()
	req.Contains(rendered, "offer offer-1 pending at 40000")
	req.Contains(rendered, "2 unread")
	req.Contains(rendered, "take it")
	req.Contains(rendered, "seller-2")
}

func TestTermRenderer_Notice_Carries_The_Conversation(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	renderer := NewTermRenderer(&out, false)

	renderer.RenderNotice("conv_1_2_product_7", errors.ErrEmptyBody)

	req.Contains(out.String(), "conv_1_2_product_7")
}
