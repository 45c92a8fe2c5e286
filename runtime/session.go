// Package runtime owns the conversation sessions: it routes local actions
// and inbound events to the right negotiation machine, serializes actions
// per conversation, and pushes snapshots to the renderer. It contains no
// negotiation rules itself.
package runtime

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"nego-lab/contract"
	"nego-lab/domain"
	"nego-lab/domain/event"
	"nego-lab/domain/nego"
	"nego-lab/errors"
	"nego-lab/moderation"
	"nego-lab/observability"
	"nego-lab/projection"
)

const defaultSendTimeout = 10 * time.Second

// Session binds one conversation to its machine, timeline and subscription.
type Session struct {
	mu           sync.Mutex
	handle       uuid.UUID
	conversation domain.ConversationID
	machine      *nego.Machine
	timeline     *projection.Timeline
	sub          contract.Subscription
	inflight     string // name of the action awaiting its outcome, "" if none
	closed       bool
}

// Manager opens, routes and closes conversation sessions. One local action
// may be in flight per conversation; a second one fails immediately rather
// than queueing, because negotiation actions are not idempotent to replay.
type Manager struct {
	log         *slog.Logger
	transport   contract.Transport
	renderer    contract.Renderer
	registry    *Registry
	validate    *validator.Validate
	masker      *moderation.Masker
	sinks       []contract.EventSink
	monitor     *observability.Monitor
	selfID      string
	sendTimeout time.Duration
	now         func() time.Time
}

type Option func(*Manager)

// WithSendTimeout bounds how long a Send may stay without an outcome before
// it resolves to a transport timeout.
func WithSendTimeout(d time.Duration) Option {
	return func(m *Manager) { m.sendTimeout = d }
}

// WithMasker moderates outgoing text bodies before transmission.
func WithMasker(masker *moderation.Masker) Option {
	return func(m *Manager) { m.masker = masker }
}

// WithSinks adds permanent event sinks (cache, search index) fed after the
// per-conversation routing.
func WithSinks(sinks ...contract.EventSink) Option {
	return func(m *Manager) { m.sinks = append(m.sinks, sinks...) }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithMonitor feeds the telemetry counters.
func WithMonitor(monitor *observability.Monitor) Option {
	return func(m *Manager) { m.monitor = monitor }
}

func NewManager(log *slog.Logger, transport contract.Transport,
	renderer contract.Renderer, selfID string, opts ...Option) *Manager {
	m := &Manager{
		log:         log,
		transport:   transport,
		renderer:    renderer,
		registry:    NewRegistry(),
		validate:    validator.New(),
		selfID:      selfID,
		sendTimeout: defaultSendTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open creates the negotiation machine for a conversation and subscribes
// the transport. Opening an already open conversation returns its handle.
func (m *Manager) Open(id domain.ConversationID) (Handle, error) {
	if s, ok := m.registry.Get(id); ok {
		return Handle{ID: s.handle, Conversation: id}, nil
	}

	s := &Session{
		handle:       uuid.New(),
		conversation: id,
		machine:      nego.NewMachine(id, m.selfID),
		timeline:     projection.NewTimeline(id, m.selfID),
	}
	sub, err := m.transport.Subscribe(id, &sessionSink{manager: m, session: s})
	if err != nil {
		return Handle{}, err
	}
	s.sub = sub
	m.registry.Register(s)

	if m.monitor != nil {
		m.monitor.SessionOpened()
	}
	m.render(s)
	m.log.Info("Conversation opened", "conversation", id)
	return Handle{ID: s.handle, Conversation: id}, nil
}

// Close unsubscribes the transport and discards the session state.
// An in-flight action's late outcome is discarded, never applied.
func (m *Manager) Close(h Handle) {
	s, ok := m.registry.GetByHandle(h)
	if !ok {
		return
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.sub.Unsubscribe()
	m.registry.Remove(h.Conversation)
	if m.monitor != nil {
		m.monitor.SessionClosed()
	}
	m.log.Info("Conversation closed", "conversation", h.Conversation)
}

// Dispatch routes a negotiation action to its machine, sends the resulting
// command, and applies the optimistic transition on confirmation. All
// failures come back as typed outcomes; none leave the machine in a state
// other than its last-known-good one.
func (m *Manager) Dispatch(ctx context.Context, action domain.Action) error {
	if err := m.validate.Struct(action); err != nil {
		return m.notice(action.ConversationID(), &errors.InvalidActionError{
			Action: action.Name(), Reason: err.Error(),
		})
	}

	s, ok := m.registry.Get(action.ConversationID())
	if !ok {
		return errors.ErrSessionClosed
	}

	cmd, err := m.begin(s, action)
	if err != nil {
		return m.notice(s.conversation, err)
	}

	receipt, sendErr := m.send(ctx, cmd)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = ""
	if s.closed {
		// The view closed while the command was on the wire; the session
		// is gone and the outcome has nowhere to land.
		m.log.Debug("Outcome discarded for closed session", "conversation", s.conversation)
		return nil
	}
	if sendErr != nil {
		s.machine.Fail()
		return m.notice(s.conversation, sendErr)
	}
	if err := s.machine.Confirm(receipt); err != nil {
		return m.notice(s.conversation, err)
	}
	m.renderLocked(s)
	return nil
}

// SendText moderates and transmits a plain text message. Text never touches
// the state machine but shares the one-in-flight guard, since replaying a
// duplicate message on retry is just as unwanted.
func (m *Manager) SendText(ctx context.Context, id domain.ConversationID, body string) error {
	if body == "" {
		return m.notice(id, errors.ErrEmptyBody)
	}
	s, ok := m.registry.Get(id)
	if !ok {
		return errors.ErrSessionClosed
	}

	if m.masker != nil {
		body = m.masker.Mask(body)
	}

	s.mu.Lock()
	if s.inflight != "" {
		pending := s.inflight
		s.mu.Unlock()
		return m.notice(id, &errors.ActionInProgressError{
			Conversation: string(id), Pending: pending,
		})
	}
	s.inflight = "sendText"
	s.mu.Unlock()

	_, err := m.send(ctx, domain.SendTextCommand{Conversation: id, Body: body})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight = ""
	if s.closed {
		return nil
	}
	if err != nil {
		return m.notice(id, err)
	}
	return nil
}

// NotifyTyping transmits the typing indicator for an open conversation.
// Advisory: it never touches the machine and skips the one-in-flight guard,
// since a duplicate or lost indicator is harmless. Failures are logged,
// never surfaced.
func (m *Manager) NotifyTyping(ctx context.Context, id domain.ConversationID, isTyping bool) {
	if _, ok := m.registry.Get(id); !ok {
		return
	}
	if _, err := m.send(ctx, domain.TypingCommand{Conversation: id, IsTyping: isTyping}); err != nil {
		m.log.Debug("Typing indicator lost", "conversation", id, "error", err)
	}
}

// Snapshot exposes the current read-only view of one conversation.
func (m *Manager) Snapshot(id domain.ConversationID) (projection.ConversationView, bool) {
	s, ok := m.registry.Get(id)
	if !ok {
		return projection.ConversationView{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.View(s.machine), true
}

// ExpireDue runs the local-only expiry check over every open session.
// Driven by the expiry worker's ticker.
func (m *Manager) ExpireDue(now time.Time) {
	for _, s := range m.registry.Each() {
		s.mu.Lock()
		if !s.closed && s.machine.CheckExpiry(now) {
			m.log.Info("Offer expired locally",
				"conversation", s.conversation, "offer", s.machine.ActiveOffer().ID)
			m.renderLocked(s)
		}
		s.mu.Unlock()
	}
}

// SetVisible propagates the foreground/background switch to the timelines.
func (m *Manager) SetVisible(visible bool) {
	for _, s := range m.registry.Each() {
		s.mu.Lock()
		if !s.closed {
			s.timeline.SetVisible(visible)
			m.renderLocked(s)
		}
		s.mu.Unlock()
	}
}

func (m *Manager) begin(s *Session, action domain.Action) (domain.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.ErrSessionClosed
	}
	if s.inflight != "" {
		return nil, &errors.ActionInProgressError{
			Conversation: string(s.conversation), Pending: s.inflight,
		}
	}
	cmd, err := s.machine.Begin(action, m.now())
	if err != nil {
		return nil, err
	}
	s.inflight = action.Name()
	return cmd, nil
}

// send bounds every transmission: a command with no outcome within the
// configured timeout resolves to a transport timeout instead of hanging.
func (m *Manager) send(ctx context.Context, cmd domain.Command) (domain.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, m.sendTimeout)
	defer cancel()

	receipt, err := m.transport.Send(ctx, cmd)
	if err == nil {
		if m.monitor != nil {
			m.monitor.IncrCommandsSent()
		}
		return receipt, nil
	}
	if m.monitor != nil {
		m.monitor.IncrCommandsFailed()
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return domain.Receipt{}, errors.NewTimeoutError(
			cmd.Kind(), string(cmd.ConversationID()), m.sendTimeout)
	}
	var te *errors.TransportError
	if stderrors.As(err, &te) {
		return domain.Receipt{}, err
	}
	return domain.Receipt{}, &errors.TransportError{
		Op: "send", Conversation: string(cmd.ConversationID()), Err: err,
	}
}

func (m *Manager) notice(id domain.ConversationID, err error) error {
	if m.renderer != nil {
		m.renderer.RenderNotice(id, err)
	}
	return err
}

func (m *Manager) render(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.renderLocked(s)
}

func (m *Manager) renderLocked(s *Session) {
	if m.renderer != nil {
		m.renderer.RenderConversation(s.timeline.View(s.machine))
	}
}

// sessionSink adapts one session to the transport's EventSink contract.
type sessionSink struct {
	manager *Manager
	session *Session
}

// Consume applies one inbound event in delivery order: the timeline first,
// then the machine, then the permanent sinks, then a snapshot push.
func (k *sessionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	s := k.session
	m := k.manager

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.timeline.Observe(e)
	if m.monitor != nil {
		m.monitor.IncrEventsDelivered()
	}

	switch evt := e.(type) {
	case event.MessageReceived:
		s.machine.ApplyMessage(evt, m.now())
	case event.OfferResolved:
		applied, stale := s.machine.ApplyResolution(evt)
		if applied && m.monitor != nil {
			m.monitor.IncrOffersResolved()
		}
		if stale != nil {
			// Server disagreed with a local guess; reconciled silently.
			m.log.Debug("Reconciled stale local state", "detail", stale.Error())
			if m.monitor != nil {
				m.monitor.IncrStaleReconciled()
			}
		}
	}
	m.renderLocked(s)
	s.mu.Unlock()

	for _, sink := range m.sinks {
		if err := sink.Consume(ctx, e); err != nil {
			m.log.Warn("Permanent sink failed", "error", err)
		}
	}
	return nil
}
