package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nego-lab/auth"
	"nego-lab/contract"
	"nego-lab/domain"
	"nego-lab/errors"
)

// Socket implements the transport contract over one persistent WebSocket.
// A single read loop decodes frames and hands events to the subscribed
// sinks synchronously, which preserves server emission order per
// conversation. Writes are serialized by a mutex.
type Socket struct {
	log      *slog.Logger
	conn     *websocket.Conn
	identity auth.Identity

	writeMu sync.Mutex

	mu      sync.Mutex
	sinks   map[domain.ConversationID]contract.EventSink
	pending map[domain.ConversationID]chan confirmation
	closed  bool
	done    chan struct{}
}

// DialSocket connects, authenticates via the bearer header, announces
// presence, and starts the read loop. The visibility tracker, when given,
// drives away/online presence updates.
func DialSocket(ctx context.Context, log *slog.Logger, url string,
	identity auth.Identity, visibility *Visibility) (*Socket, error) {
	header := http.Header{}
	header.Set("Authorization", identity.BearerHeader())

	conn, response, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if response != nil {
			_ = response.Body.Close()
		}
		return nil, &errors.TransportError{Op: "connect", Err: err}
	}

	s := &Socket{
		log:      log,
		conn:     conn,
		identity: identity,
		sinks:    make(map[domain.ConversationID]contract.EventSink),
		pending:  make(map[domain.ConversationID]chan confirmation),
		done:     make(chan struct{}),
	}
	go s.readLoop()

	s.emitPresence(domain.PresenceOnline)
	if visibility != nil {
		visibility.OnChange(func(visible bool) {
			if visible {
				s.emitPresence(domain.PresenceOnline)
			} else {
				s.emitPresence(domain.PresenceAway)
			}
		})
	}
	return s, nil
}

// Close announces offline presence and tears the connection down.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.emitPresence(domain.PresenceOffline)
	err := s.conn.Close()
	<-s.done
	return err
}

// Send writes one command frame and waits for the server confirmation of
// that conversation, the context deadline, whichever first. The session
// manager guarantees at most one confirmable command in flight per
// conversation, so correlation by conversation id is unambiguous.
func (s *Socket) Send(ctx context.Context, cmd domain.Command) (domain.Receipt, error) {
	eventName, payload, err := encodeCommand(cmd)
	if err != nil {
		return domain.Receipt{}, err
	}

	// Advisory frames are fire-and-forget.
	if eventName == framePresence || eventName == frameTyping {
		return domain.Receipt{}, s.write(eventName, payload)
	}

	id := cmd.ConversationID()
	wait := make(chan confirmation, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Receipt{}, errors.ErrSessionClosed
	}
	s.pending[id] = wait
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.write(eventName, payload); err != nil {
		return domain.Receipt{}, &errors.TransportError{
			Op: "send", Conversation: string(id), Err: err,
		}
	}

	select {
	case <-ctx.Done():
		return domain.Receipt{}, ctx.Err()
	case <-s.done:
		return domain.Receipt{}, &errors.TransportError{
			Op: "send", Conversation: string(id), Err: fmt.Errorf("connection closed"),
		}
	case confirm := <-wait:
		receipt, err := confirm.toReceipt(time.Now().UTC())
		if err != nil {
			return domain.Receipt{}, &errors.TransportError{
				Op: "send", Conversation: string(id), Err: err,
			}
		}
		return receipt, nil
	}
}

// Subscribe registers the sink and joins the server-side room.
func (s *Socket) Subscribe(id domain.ConversationID, sink contract.EventSink) (contract.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.ErrSessionClosed
	}
	if _, exists := s.sinks[id]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("conversation %s already subscribed", id)
	}
	s.sinks[id] = sink
	s.mu.Unlock()

	if err := s.write(frameJoin, wirePresence{ConversationID: string(id)}); err != nil {
		s.mu.Lock()
		delete(s.sinks, id)
		s.mu.Unlock()
		return nil, &errors.TransportError{Op: "connect", Conversation: string(id), Err: err}
	}
	return &socketSubscription{transport: s, conversation: id}, nil
}

func (s *Socket) readLoop() {
	defer close(s.done)
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.log.Warn("Socket read failed, events stop", "error", err)
			}
			return
		}
		s.dispatch(f)
	}
}

func (s *Socket) dispatch(f frame) {
	switch f.Event {
	case frameMessageSent, frameResponseSent:
		var confirm confirmation
		if err := json.Unmarshal(f.Data, &confirm); err != nil {
			s.log.Warn("Undecodable confirmation frame", "error", err)
			return
		}
		s.mu.Lock()
		wait, ok := s.pending[domain.ConversationID(confirm.ConversationID)]
		s.mu.Unlock()
		if ok {
			wait <- confirm
		}
	case frameError:
		var confirm confirmation
		_ = json.Unmarshal(f.Data, &confirm)
		s.log.Warn("Server error frame", "detail", confirm.Error)
	default:
		evt, err := decodeEvent(f)
		if err != nil {
			s.log.Warn("Undecodable event frame", "event", f.Event, "error", err)
			return
		}
		if evt == nil {
			return
		}
		s.mu.Lock()
		sink, ok := s.sinks[evt.ConversationID()]
		s.mu.Unlock()
		if !ok {
			return
		}
		// Synchronous consume keeps per-conversation delivery order.
		if err := sink.Consume(context.Background(), evt); err != nil {
			s.log.Warn("Sink rejected event", "conversation", evt.ConversationID(), "error", err)
		}
	}
}

func (s *Socket) write(eventName string, payload any) error {
	f, err := newFrame(eventName, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(f)
}

func (s *Socket) emitPresence(status domain.PresenceStatus) {
	if err := s.write(framePresence, wirePresence{
		UserID: s.identity.UserID,
		Status: string(status),
	}); err != nil {
		// Presence is advisory; a lost update never breaks negotiation.
		s.log.Debug("Presence update lost", "status", status, "error", err)
	}
}

func (s *Socket) unsubscribe(id domain.ConversationID) {
	s.mu.Lock()
	_, ok := s.sinks[id]
	delete(s.sinks, id)
	closed := s.closed
	s.mu.Unlock()

	if ok && !closed {
		if err := s.write(frameLeave, wirePresence{ConversationID: string(id)}); err != nil {
			s.log.Debug("Leave frame lost", "conversation", id, "error", err)
		}
	}
}

type socketSubscription struct {
	transport    *Socket
	conversation domain.ConversationID
	once         sync.Once
}

// Unsubscribe stops delivery and leaves the room; idempotent.
func (s *socketSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.transport.unsubscribe(s.conversation)
	})
}
