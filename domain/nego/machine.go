// Package nego holds the negotiation rules: how a priced offer moves from
// pending to accepted, rejected, countered or expired, and which local
// actions are allowed at each step. The machine is pure; transports and
// storage live elsewhere and feed it events.
package nego

import (
	"time"

	"nego-lab/domain"
	"nego-lab/domain/event"
	"nego-lab/errors"
)

type State string

const (
	StateIdle         State = "idle"
	StateOfferPending State = "offerPending"
	StateResolved     State = "resolved"
)

// Machine is the per-conversation negotiation state machine.
// It is not safe for concurrent use; the session serializes access.
type Machine struct {
	conversation domain.ConversationID
	selfID       string
	state        State

	// active is the current offer: the pending one in StateOfferPending,
	// or the last resolved one in StateResolved. Superseded offers move
	// to history with their own resolution record retained.
	active   *domain.Offer
	history  []domain.Offer
	inflight domain.Action
}

func NewMachine(conversation domain.ConversationID, selfID string) *Machine {
	return &Machine{
		conversation: conversation,
		selfID:       selfID,
		state:        StateIdle,
	}
}

func (m *Machine) State() State { return m.state }

func (m *Machine) AwaitingConfirm() bool { return m.inflight != nil }

// ActiveOffer returns a copy of the current offer, nil when idle.
func (m *Machine) ActiveOffer() *domain.Offer {
	if m.active == nil {
		return nil
	}
	cp := *m.active
	return &cp
}

// Offers returns the full offer history, oldest first, current offer last.
func (m *Machine) Offers() []domain.Offer {
	out := make([]domain.Offer, 0, len(m.history)+1)
	out = append(out, m.history...)
	if m.active != nil {
		out = append(out, *m.active)
	}
	return out
}

// Begin validates a local action against the current state and returns the
// command to transmit. Invalid actions fail here and never reach the
// transport; the server still re-validates, this is only an optimization.
// The machine refuses a second action while one awaits confirmation.
func (m *Machine) Begin(action domain.Action, now time.Time) (domain.Command, error) {
	if m.inflight != nil {
		return nil, &errors.ActionInProgressError{
			Conversation: string(m.conversation),
			Pending:      m.inflight.Name(),
		}
	}

	var cmd domain.Command
	switch a := action.(type) {
	case domain.ProposeAction:
		if m.state == StateOfferPending {
			return nil, &errors.InvalidActionError{
				Action: a.Name(), Reason: "an offer is already pending",
			}
		}
		cmd = domain.ProposeCommand{
			Conversation: m.conversation,
			Price:        a.Price,
			Quantity:     a.Quantity,
			Note:         a.Note,
		}
	case domain.AcceptAction:
		if err := m.checkResponse(a.Name(), a.OfferID, now); err != nil {
			return nil, err
		}
		cmd = domain.AcceptCommand{Conversation: m.conversation, OfferID: a.OfferID}
	case domain.RejectAction:
		if err := m.checkResponse(a.Name(), a.OfferID, now); err != nil {
			return nil, err
		}
		cmd = domain.RejectCommand{Conversation: m.conversation, OfferID: a.OfferID}
	case domain.CounterAction:
		if err := m.checkResponse(a.Name(), a.OfferID, now); err != nil {
			return nil, err
		}
		cmd = domain.CounterCommand{
			Conversation: m.conversation,
			OfferID:      a.OfferID,
			Price:        a.Price,
			Quantity:     a.Quantity,
			Note:         a.Note,
		}
	default:
		return nil, &errors.InvalidActionError{
			Action: action.Name(), Reason: "unknown action",
		}
	}

	m.inflight = action
	return cmd, nil
}

// checkResponse guards accept/reject/counter: only the non-proposing party
// may respond, only to the currently pending offer, and not after expiry.
func (m *Machine) checkResponse(name string, offerID domain.OfferID, now time.Time) error {
	if m.state != StateOfferPending || m.active == nil {
		return &errors.InvalidActionError{
			Action: name, OfferID: string(offerID),
			Reason: "no offer is pending",
		}
	}
	if m.active.ID != offerID {
		return &errors.InvalidActionError{
			Action: name, OfferID: string(offerID),
			Reason: "offer is not the pending one",
		}
	}
	if m.active.ProposerID == m.selfID {
		return &errors.InvalidActionError{
			Action: name, OfferID: string(offerID),
			Reason: "proposer cannot respond to own offer",
		}
	}
	if m.active.ExpiredAt(now) {
		return &errors.InvalidActionError{
			Action: name, OfferID: string(offerID),
			Reason: "offer has expired",
		}
	}
	return nil
}

// Confirm applies the optimistic transition once the transport confirmed the
// in-flight action. The server broadcast for the same change is applied
// idempotently later.
func (m *Machine) Confirm(receipt domain.Receipt) error {
	if m.inflight == nil {
		return nil
	}
	action := m.inflight
	m.inflight = nil

	switch a := action.(type) {
	case domain.ProposeAction:
		m.installConfirmed(receipt, a.Price, a.Quantity, a.Note)
	case domain.AcceptAction:
		m.confirmResponse(a.OfferID, domain.OfferAccepted, "", receipt.At)
	case domain.RejectAction:
		m.confirmResponse(a.OfferID, domain.OfferRejected, "", receipt.At)
	case domain.CounterAction:
		// One exchange resolves the prior offer and proposes a fresh one.
		// The proposer role flips to us.
		m.confirmResponse(a.OfferID, domain.OfferCountered, receipt.OfferID, receipt.At)
		m.installConfirmed(receipt, a.Price, a.Quantity, a.Note)
	}
	return nil
}

// confirmResponse settles the offer the in-flight action targeted, by id.
// Events keep flowing while the action awaits its confirmation, so the target
// may no longer be the active offer: a peer offer that superseded it mid
// flight already moved it to history marked countered, and the confirmed
// response overwrites that provisional record. The conversation only moves to
// resolved when the target still holds the floor; a fresh pending peer offer
// stays pending untouched.
func (m *Machine) confirmResponse(id domain.OfferID, status domain.ResolutionStatus,
	counterID domain.OfferID, at time.Time) {
	target := m.findOffer(id)
	if target == nil {
		return
	}
	if target.IsPending() {
		_ = target.Resolve(status, counterID, at)
	} else {
		target.Overwrite(status, counterID, at)
	}
	if target == m.active {
		m.state = StateResolved
	}
}

// installConfirmed installs the offer the server minted for our propose or
// counter. A pending peer offer that landed mid flight keeps the floor: the
// server echo of our offer arrives in broadcast order and supersedes it then,
// if ours really came later.
func (m *Machine) installConfirmed(receipt domain.Receipt, price int64, quantity int, note string) {
	if m.active != nil && m.active.IsPending() && m.active.ProposerID != m.selfID {
		return
	}
	offer := domain.NewOffer(receipt.OfferID, m.conversation, m.selfID,
		price, quantity, note, receipt.At, nil)
	m.supersede(&offer, receipt.At)
	m.state = StateOfferPending
}

// Fail settles a rejected or timed-out in-flight action.
// The machine stays in its last-known-good state.
func (m *Machine) Fail() {
	m.inflight = nil
}

// ApplyMessage feeds one inbound message. Plain text and deal messages do
// not transition the machine; offer messages install a new pending offer,
// superseding the prior one. Reports whether the negotiation state changed.
func (m *Machine) ApplyMessage(ev event.MessageReceived, now time.Time) bool {
	if ev.Type != domain.MessageOffer {
		return false
	}
	if m.active != nil && m.active.ID == domain.OfferID(ev.MessageID) {
		// Echo of an offer we already installed optimistically.
		return false
	}
	offer := domain.NewOffer(domain.OfferID(ev.MessageID), m.conversation,
		ev.SenderID, ev.OfferPrice, ev.OfferQty, ev.Body, ev.CreatedAt, ev.ExpiresAt)
	m.supersede(&offer, now)
	m.state = StateOfferPending
	return true
}

// ApplyResolution applies an authoritative server resolution verbatim.
// If it disagrees with an optimistic or expiry-based local guess, the local
// state is overwritten, not merged; the returned StaleStateError is
// reconciliation detail for logs, never surfaced to the user.
func (m *Machine) ApplyResolution(ev event.OfferResolved) (bool, *errors.StaleStateError) {
	target := m.findOffer(ev.OfferID)
	if target == nil {
		return false, nil
	}

	var stale *errors.StaleStateError
	if !target.IsPending() && target.Resolution.Status != ev.Resolution {
		stale = &errors.StaleStateError{
			OfferID: string(ev.OfferID),
			Local:   string(target.Resolution.Status),
			Server:  string(ev.Resolution),
		}
	} else if !target.IsPending() {
		// Already agrees, nothing to reconcile.
		return false, nil
	}
	target.Overwrite(ev.Resolution, ev.CounterOfferID, ev.At)

	if m.active != nil && m.active.ID == ev.OfferID {
		// The counter offer itself arrives as its own offer message and
		// flips the state back to pending when it does.
		m.state = StateResolved
	}
	return true, stale
}

// CheckExpiry performs the local-only expiry transition. Only the receiving
// side reports it, and a later authoritative resolution still overrides it.
func (m *Machine) CheckExpiry(now time.Time) bool {
	if m.state != StateOfferPending || m.active == nil {
		return false
	}
	if m.active.ProposerID == m.selfID {
		return false
	}
	if !m.active.ExpiredAt(now) {
		return false
	}
	_ = m.active.Resolve(domain.OfferExpired, "", now)
	m.state = StateResolved
	return true
}

// supersede retires the current offer and installs the new one. A still
// pending prior offer is recorded as countered by the newcomer so the
// conversation never shows two pending offers.
func (m *Machine) supersede(next *domain.Offer, at time.Time) {
	if m.active != nil {
		if m.active.IsPending() {
			_ = m.active.Resolve(domain.OfferCountered, next.ID, at)
		}
		m.history = append(m.history, *m.active)
	}
	m.active = next
}

func (m *Machine) findOffer(id domain.OfferID) *domain.Offer {
	if m.active != nil && m.active.ID == id {
		return m.active
	}
	for i := range m.history {
		if m.history[i].ID == id {
			return &m.history[i]
		}
	}
	return nil
}
