package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nego-lab/auth"
	"nego-lab/domain"
	"nego-lab/domain/event"
	"nego-lab/errors"
)

const conv = domain.ConversationID("conv_1_2_product_7")

type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) snapshot() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.DomainEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) waitFor(t *testing.T, n int) []event.DomainEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := s.snapshot(); len(events) >= n {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %d", n, len(s.snapshot()))
	return nil
}

type memoryCursorStore struct {
	mu      sync.Mutex
	cursors map[domain.ConversationID]string
}

func newMemoryCursorStore() *memoryCursorStore {
	return &memoryCursorStore{cursors: make(map[domain.ConversationID]string)}
}

func (s *memoryCursorStore) LoadCursor(id domain.ConversationID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors[id], nil
}

func (s *memoryCursorStore) StoreCursor(id domain.ConversationID, cursor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[id] = cursor
	return nil
}

// pollServer scripts get_chat_messages responses keyed by the since cursor.
type pollServer struct {
	mu      sync.Mutex
	batches map[string]pollBatch
	polls   int
}

func (p *pollServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/get_chat_messages/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.polls++
		batch := p.batches[r.URL.Query().Get("since")]
		p.mu.Unlock()
		_ = json.NewEncoder(w).Encode(batch)
	})
	mux.HandleFunc("/send_chat_message", func(w http.ResponseWriter, r *http.Request) {
		var body sendMessageBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(confirmation{
			Status: "success", ConversationID: body.ConversationID, MessageID: "offer-77",
		})
	})
	return mux
}

func (p *pollServer) pollCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

func testIdentity(t *testing.T) auth.Identity {
	t.Helper()
	return auth.Identity{UserID: "buyer-1", Token: "token"}
}

func TestPolling_Delivers_In_Server_Order(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	server := &pollServer{batches: map[string]pollBatch{
		"": {
			Messages: []wireMessage{
				{ID: "msg-1", ConversationID: string(conv), SenderID: "seller-2", Body: "hi", Type: "text", CreatedAt: now},
				{ID: "msg-2", ConversationID: string(conv), SenderID: "seller-2", Body: "offer", Type: "offer", OfferPrice: 40_000, OfferQuantity: 1, CreatedAt: now},
			},
			OfferResponses: []wireOfferResponse{
				{ConversationID: string(conv), MessageID: "offer-0", Action: "reject", At: now.Add(time.Second)},
			},
			Cursor: "msg-2",
		},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	polling := NewPolling(slog.Default(), ts.URL, testIdentity(t), NewVisibility(),
		WithPollInterval(10*time.Millisecond))
	sink := &recordingSink{}
	sub, err := polling.Subscribe(conv, sink)
	req.NoError(err)
	defer sub.Unsubscribe()

	events := sink.waitFor(t, 3)
	req.IsType(event.MessageReceived{}, events[0])
	req.IsType(event.MessageReceived{}, events[1])
	req.IsType(event.OfferResolved{}, events[2])
	req.Equal("msg-1", events[0].(event.MessageReceived).MessageID)
	req.Equal("msg-2", events[1].(event.MessageReceived).MessageID)
}

func TestPolling_Interleaves_Responses_By_Emission_Time(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	// The response happened between the two messages server-side
	server := &pollServer{batches: map[string]pollBatch{
		"": {
			Messages: []wireMessage{
				{ID: "offer-1", ConversationID: string(conv), SenderID: "seller-2", Type: "offer", OfferPrice: 40_000, OfferQuantity: 1, CreatedAt: now},
				{ID: "offer-2", ConversationID: string(conv), SenderID: "buyer-1", Type: "offer", OfferPrice: 35_000, OfferQuantity: 1, CreatedAt: now.Add(2 * time.Second)},
			},
			OfferResponses: []wireOfferResponse{
				{ConversationID: string(conv), MessageID: "offer-1", Action: "counter", CounterOfferID: "offer-2", At: now.Add(time.Second)},
			},
			Cursor: "offer-2",
		},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	polling := NewPolling(slog.Default(), ts.URL, testIdentity(t), NewVisibility(),
		WithPollInterval(10*time.Millisecond))
	sink := &recordingSink{}
	sub, err := polling.Subscribe(conv, sink)
	req.NoError(err)
	defer sub.Unsubscribe()

	// The resolution of offer-1 lands before the counter that caused it
	events := sink.waitFor(t, 3)
	req.Equal("offer-1", events[0].(event.MessageReceived).MessageID)
	req.Equal(domain.OfferID("offer-1"), events[1].(event.OfferResolved).OfferID)
	req.Equal("offer-2", events[2].(event.MessageReceived).MessageID)
}

func TestPolling_Response_Only_Batch_Delivered_Once(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	// No messages and no server cursor: the since parameter never advances
	server := &pollServer{batches: map[string]pollBatch{
		"": {
			OfferResponses: []wireOfferResponse{
				{ConversationID: string(conv), MessageID: "offer-1", Action: "accept", At: now},
			},
		},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	polling := NewPolling(slog.Default(), ts.URL, testIdentity(t), NewVisibility(),
		WithPollInterval(10*time.Millisecond))
	sink := &recordingSink{}
	sub, err := polling.Subscribe(conv, sink)
	req.NoError(err)
	defer sub.Unsubscribe()

	sink.waitFor(t, 1)

	// Later ticks see the same batch again without redelivering it
	deadline := time.Now().Add(time.Second)
	for server.pollCount() < 3 {
		req.True(time.Now().Before(deadline), "not enough polls happened")
		time.Sleep(5 * time.Millisecond)
	}
	req.Len(sink.snapshot(), 1)
}

func TestPolling_Resumes_From_Persisted_Cursor(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	server := &pollServer{batches: map[string]pollBatch{
		"msg-2": {
			Messages: []wireMessage{
				{ID: "msg-3", ConversationID: string(conv), SenderID: "seller-2", Body: "again", Type: "text", CreatedAt: now},
			},
			Cursor: "msg-3",
		},
	}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	store := newMemoryCursorStore()
	req.NoError(store.StoreCursor(conv, "msg-2"))

	polling := NewPolling(slog.Default(), ts.URL, testIdentity(t), NewVisibility(),
		WithPollInterval(10*time.Millisecond), WithCursorStore(store))
	sink := &recordingSink{}
	sub, err := polling.Subscribe(conv, sink)
	req.NoError(err)
	defer sub.Unsubscribe()

	events := sink.waitFor(t, 1)
	req.Equal("msg-3", events[0].(event.MessageReceived).MessageID)

	// The advanced position is persisted for the next run
	deadline := time.Now().Add(time.Second)
	for {
		cursor, _ := store.LoadCursor(conv)
		if cursor == "msg-3" {
			break
		}
		req.True(time.Now().Before(deadline), "cursor never advanced")
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPolling_Suppresses_Refresh_While_Hidden(t *testing.T) {
	req := require.New(t)
	server := &pollServer{batches: map[string]pollBatch{}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	visibility := NewVisibility()
	visibility.Set(false)

	polling := NewPolling(slog.Default(), ts.URL, testIdentity(t), visibility,
		WithPollInterval(10*time.Millisecond))
	sub, err := polling.Subscribe(conv, &recordingSink{})
	req.NoError(err)
	defer sub.Unsubscribe()

	time.Sleep(100 * time.Millisecond)
	req.Zero(server.pollCount())

	// Back to the foreground, ticks resume
	visibility.Set(true)
	deadline := time.Now().Add(time.Second)
	for server.pollCount() == 0 {
		req.True(time.Now().Before(deadline), "polling never resumed")
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPolling_Send_Returns_Server_Receipt(t *testing.T) {
	req := require.New(t)
	server := &pollServer{batches: map[string]pollBatch{}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	polling := NewPolling(slog.Default(), ts.URL, testIdentity(t), NewVisibility())

	receipt, err := polling.Send(context.Background(), domain.ProposeCommand{
		Conversation: conv, Price: 50_000, Quantity: 2,
	})

	req.NoError(err)
	req.Equal(domain.OfferID("offer-77"), receipt.OfferID)
}

func TestPolling_Send_Wraps_Network_Failure(t *testing.T) {
	req := require.New(t)
	// Nothing listens on this address
	polling := NewPolling(slog.Default(), "http://127.0.0.1:1", testIdentity(t), NewVisibility())

	_, err := polling.Send(context.Background(), domain.SendTextCommand{
		Conversation: conv, Body: "hello",
	})

	req.ErrorIs(err, errors.ErrTransport)
}

func TestPolling_Unsubscribe_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	server := &pollServer{batches: map[string]pollBatch{}}
	ts := httptest.NewServer(server.handler())
	defer ts.Close()

	polling := NewPolling(slog.Default(), ts.URL, testIdentity(t), NewVisibility(),
		WithPollInterval(10*time.Millisecond))
	sub, err := polling.Subscribe(conv, &recordingSink{})
	req.NoError(err)

	sub.Unsubscribe()
	sub.Unsubscribe()

	// The slot is free again
	_, err = polling.Subscribe(conv, &recordingSink{})
	req.NoError(err)
}
