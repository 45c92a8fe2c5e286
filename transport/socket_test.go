package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"nego-lab/domain"
	"nego-lab/domain/event"
)

// socketServer is a scriptable in-process peer. It records every frame the
// client writes and lets tests push frames back down the wire.
type socketServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	received []frame
	ready    chan struct{}
}

func newSocketServer(t *testing.T) (*socketServer, string) {
	t.Helper()
	s := &socketServer{t: t, ready: make(chan struct{})}
	ts := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (s *socketServer) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	close(s.ready)

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, f)
		s.mu.Unlock()
	}
}

func (s *socketServer) push(f frame) {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(f); err != nil {
		s.t.Errorf("server push failed: %v", err)
	}
}

func (s *socketServer) frames() []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame, len(s.received))
	copy(out, s.received)
	return out
}

func (s *socketServer) waitForFrame(t *testing.T, eventName string) frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, f := range s.frames() {
			if f.Event == eventName {
				return f
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %q frame arrived", eventName)
	return frame{}
}

func mustFrame(t *testing.T, eventName string, payload any) frame {
	t.Helper()
	f, err := newFrame(eventName, payload)
	require.NoError(t, err)
	return f
}

func TestSocket_Announces_Presence_On_Connect(t *testing.T) {
	req := require.New(t)
	server, url := newSocketServer(t)

	socket, err := DialSocket(context.Background(), slog.Default(), url, testIdentity(t), nil)
	req.NoError(err)
	defer func() { _ = socket.Close() }()

	f := server.waitForFrame(t, framePresence)
	req.Contains(string(f.Data), string(domain.PresenceOnline))
}

func TestSocket_Send_Correlates_Confirmation(t *testing.T) {
	req := require.New(t)
	server, url := newSocketServer(t)

	socket, err := DialSocket(context.Background(), slog.Default(), url, testIdentity(t), nil)
	req.NoError(err)
	defer func() { _ = socket.Close() }()

	go func() {
		server.waitForFrame(t, frameSendMessage)
		server.push(mustFrame(t, frameMessageSent, confirmation{
			Status: "success", ConversationID: string(conv), MessageID: "offer-42",
		}))
	}()

	receipt, err := socket.Send(context.Background(), domain.ProposeCommand{
		Conversation: conv, Price: 50_000, Quantity: 1,
	})

	req.NoError(err)
	req.Equal(domain.OfferID("offer-42"), receipt.OfferID)
}

func TestSocket_Send_Honors_Context_Deadline(t *testing.T) {
	req := require.New(t)
	_, url := newSocketServer(t)

	socket, err := DialSocket(context.Background(), slog.Default(), url, testIdentity(t), nil)
	req.NoError(err)
	defer func() { _ = socket.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The server never confirms.
	_, err = socket.Send(ctx, domain.AcceptCommand{Conversation: conv, OfferID: "offer-1"})

	req.ErrorIs(err, context.DeadlineExceeded)
}

func TestSocket_Delivers_Events_To_Subscribed_Sink(t *testing.T) {
	req := require.New(t)
	server, url := newSocketServer(t)

	socket, err := DialSocket(context.Background(), slog.Default(), url, testIdentity(t), nil)
	req.NoError(err)
	defer func() { _ = socket.Close() }()

	sink := &recordingSink{}
	sub, err := socket.Subscribe(conv, sink)
	req.NoError(err)
	defer sub.Unsubscribe()
	server.waitForFrame(t, frameJoin)

	now := time.Now().UTC()
	server.push(mustFrame(t, frameNewMessage, wireMessage{
		ID: "msg-1", ConversationID: string(conv), SenderID: "seller-2",
		Body: "offer", Type: "offer", OfferPrice: 40_000, OfferQuantity: 1, CreatedAt: now,
	}))
	server.push(mustFrame(t, frameOfferResponse, wireOfferResponse{
		ConversationID: string(conv), MessageID: "msg-1", Action: "accepted", UserID: "buyer-1",
	}))

	events := sink.waitFor(t, 2)
	req.IsType(event.MessageReceived{}, events[0])
	req.IsType(event.OfferResolved{}, events[1])
}

func TestSocket_Ignores_Events_For_Other_Conversations(t *testing.T) {
	req := require.New(t)
	server, url := newSocketServer(t)

	socket, err := DialSocket(context.Background(), slog.Default(), url, testIdentity(t), nil)
	req.NoError(err)
	defer func() { _ = socket.Close() }()

	sink := &recordingSink{}
	sub, err := socket.Subscribe(conv, sink)
	req.NoError(err)
	defer sub.Unsubscribe()
	server.waitForFrame(t, frameJoin)

	server.push(mustFrame(t, frameNewMessage, wireMessage{
		ID: "msg-x", ConversationID: "conv_9_9_other", SenderID: "seller-9",
		Body: "wrong room", Type: "text", CreatedAt: time.Now().UTC(),
	}))
	server.push(mustFrame(t, frameNewMessage, wireMessage{
		ID: "msg-1", ConversationID: string(conv), SenderID: "seller-2",
		Body: "right room", Type: "text", CreatedAt: time.Now().UTC(),
	}))

	events := sink.waitFor(t, 1)
	req.Len(events, 1)
	req.Equal("msg-1", events[0].(event.MessageReceived).MessageID)
}

func TestSocket_Unsubscribe_Leaves_Room_Once(t *testing.T) {
	req := require.New(t)
	server, url := newSocketServer(t)

	socket, err := DialSocket(context.Background(), slog.Default(), url, testIdentity(t), nil)
	req.NoError(err)
	defer func() { _ = socket.Close() }()

	sub, err := socket.Subscribe(conv, &recordingSink{})
	req.NoError(err)

	sub.Unsubscribe()
	sub.Unsubscribe()

	server.waitForFrame(t, frameLeave)
	count := 0
	for _, f := range server.frames() {
		if f.Event == frameLeave {
			count++
		}
	}
	req.Equal(1, count)
}
