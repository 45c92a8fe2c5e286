package transport

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nego-lab/domain"
	"nego-lab/domain/event"
)

func TestEncodeCommand_Counter_Resolves_And_Proposes(t *testing.T) {
	req := require.New(t)

	name, payload, err := encodeCommand(domain.CounterCommand{
		Conversation: "conv_1_2_product_7",
		OfferID:      "offer-1",
		Price:        45_000,
		Quantity:     2,
		Note:         "meet me halfway",
	})

	req.NoError(err)
	req.Equal(frameRespondToOffer, name)
	body, ok := payload.(respondBody)
	req.True(ok)
	req.Equal("counter", body.Action)
	req.Equal("offer-1", body.MessageID)
	req.Equal(int64(45_000), body.CounterPrice)
	req.Equal(2, body.CounterQuantity)
}

func TestEncodeCommand_Propose_Carries_Offer_Fields(t *testing.T) {
	req := require.New(t)

	name, payload, err := encodeCommand(domain.ProposeCommand{
		Conversation: "conv_1_2_product_7",
		Price:        50_000,
		Quantity:     2,
		Note:         "nego",
	})

	req.NoError(err)
	req.Equal(frameSendMessage, name)
	body, ok := payload.(sendMessageBody)
	req.True(ok)
	req.Equal(string(domain.MessageOffer), body.Type)
	req.Equal(int64(50_000), body.OfferPrice)
	req.Equal(2, body.OfferQuantity)
}

func TestDecodeEvent_New_Message(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC().Truncate(time.Second)
	data, err := json.Marshal(wireMessage{
		ID: "msg-9", ConversationID: "conv_1_2_general", SenderID: "buyer-1",
		Body: "nego", Type: "offer", OfferPrice: 50_000, OfferQuantity: 2, CreatedAt: now,
	})
	req.NoError(err)

	evt, err := decodeEvent(frame{Event: frameNewMessage, Data: data})
	req.NoError(err)

	msg, ok := evt.(event.MessageReceived)
	req.True(ok)
	req.Equal(domain.ConversationID("conv_1_2_general"), msg.Conversation)
	req.Equal(domain.MessageOffer, msg.Type)
	req.Equal(int64(50_000), msg.OfferPrice)
	req.Equal(now, msg.CreatedAt)
}

func TestDecodeEvent_Offer_Response_Action_Spelling(t *testing.T) {
	// The server spells actions as verbs; resolutions as participles are
	// accepted too.
	for wire, want := range map[string]domain.ResolutionStatus{
		"accept":    domain.OfferAccepted,
		"accepted":  domain.OfferAccepted,
		"reject":    domain.OfferRejected,
		"counter":   domain.OfferCountered,
		"countered": domain.OfferCountered,
	} {
		t.Run(wire, func(t *testing.T) {
			req := require.New(t)
			data, err := json.Marshal(wireOfferResponse{
				ConversationID: "conv_1_2_general", MessageID: "offer-1", Action: wire,
			})
			req.NoError(err)

			evt, err := decodeEvent(frame{Event: frameOfferResponse, Data: data})
			req.NoError(err)
			resolved, ok := evt.(event.OfferResolved)
			req.True(ok)
			req.Equal(want, resolved.Resolution)
		})
	}
}

func TestDecodeEvent_Unknown_Action_Fails(t *testing.T) {
	req := require.New(t)
	data, _ := json.Marshal(wireOfferResponse{MessageID: "offer-1", Action: "shrug"})

	_, err := decodeEvent(frame{Event: frameOfferResponse, Data: data})

	req.Error(err)
}

func TestDecodeEvent_Presence_Frames(t *testing.T) {
	req := require.New(t)
	data, _ := json.Marshal(wirePresence{ConversationID: "conv_1_2_general", UserID: "seller-2"})

	online, err := decodeEvent(frame{Event: frameUserOnline, Data: data})
	req.NoError(err)
	req.True(online.(event.PresenceChanged).Online)

	offline, err := decodeEvent(frame{Event: frameUserOffline, Data: data})
	req.NoError(err)
	req.False(offline.(event.PresenceChanged).Online)
}

func TestConfirmation_Rejection_Is_An_Error(t *testing.T) {
	req := require.New(t)

	_, err := confirmation{Status: "error", Error: "offer already resolved"}.
		toReceipt(time.Now())

	req.Error(err)
	req.Contains(err.Error(), "offer already resolved")
}
