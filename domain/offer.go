package domain

import (
	"fmt"
	"time"
)

// OfferID is opaque and server-assigned, unique within a conversation.
type OfferID string

// DefaultOfferTTL is applied to proposals whose caller did not pick an expiry.
const DefaultOfferTTL = 24 * time.Hour

type ResolutionStatus string

const (
	OfferPending   ResolutionStatus = "pending"
	OfferAccepted  ResolutionStatus = "accepted"
	OfferRejected  ResolutionStatus = "rejected"
	OfferCountered ResolutionStatus = "countered"
	OfferExpired   ResolutionStatus = "expired"
)

// Resolution is the only mutable part of an Offer.
// Once it leaves OfferPending it never returns there.
type Resolution struct {
	Status         ResolutionStatus
	CounterOfferID OfferID // set when Status == OfferCountered
	ResolvedAt     time.Time
}

// Offer is one proposed price/quantity pair within a conversation.
// Price and Quantity are immutable once created; only Resolution changes.
// Price is an integer in currency minor units.
type Offer struct {
	ID           OfferID
	Conversation ConversationID
	ProposerID   string
	Price        int64
	Quantity     int
	Note         string
	CreatedAt    time.Time
	ExpiresAt    *time.Time
	Resolution   Resolution
}

func NewOffer(id OfferID, conversation ConversationID, proposerID string,
	price int64, quantity int, note string, createdAt time.Time, expiresAt *time.Time) Offer {
	if expiresAt == nil {
		ttl := createdAt.Add(DefaultOfferTTL)
		expiresAt = &ttl
	}
	return Offer{
		ID:           id,
		Conversation: conversation,
		ProposerID:   proposerID,
		Price:        price,
		Quantity:     quantity,
		Note:         note,
		CreatedAt:    createdAt,
		ExpiresAt:    expiresAt,
		Resolution:   Resolution{Status: OfferPending},
	}
}

func (o Offer) IsPending() bool {
	return o.Resolution.Status == OfferPending
}

// ExpiredAt reports whether the offer was still pending when its expiry elapsed.
// Authoritative expiry is server time; this check only drives local display.
func (o Offer) ExpiredAt(now time.Time) bool {
	return o.IsPending() && o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// Resolve moves the offer out of OfferPending.
// Resolving an already resolved offer is refused: resolutions are terminal,
// a counter spawns a new Offer instead of mutating this one further.
func (o *Offer) Resolve(status ResolutionStatus, counterID OfferID, at time.Time) error {
	if status == OfferPending {
		return fmt.Errorf("offer %s: cannot resolve back to pending", o.ID)
	}
	if !o.IsPending() {
		return fmt.Errorf("offer %s: already resolved as %s", o.ID, o.Resolution.Status)
	}
	o.Resolution = Resolution{Status: status, CounterOfferID: counterID, ResolvedAt: at}
	return nil
}

// Overwrite applies an authoritative server resolution regardless of the
// current local status. The server is the source of truth: a local expiry or
// optimistic guess never wins against a delivered resolution event.
func (o *Offer) Overwrite(status ResolutionStatus, counterID OfferID, at time.Time) {
	o.Resolution = Resolution{Status: status, CounterOfferID: counterID, ResolvedAt: at}
}
