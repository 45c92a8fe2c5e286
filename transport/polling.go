package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"nego-lab/auth"
	"nego-lab/contract"
	"nego-lab/domain"
	"nego-lab/domain/event"
	"nego-lab/errors"
)

// DefaultPollInterval matches the original client's refresh cadence.
const DefaultPollInterval = 3 * time.Second

// CursorStore persists the last delivered position per conversation so a
// restarted client resumes without re-delivering history.
// Satisfied by repositories.MessageRepository.
type CursorStore interface {
	LoadCursor(conversation domain.ConversationID) (string, error)
	StoreCursor(conversation domain.ConversationID, cursor string) error
}

// pollBatch is the response of the list-messages endpoint: everything that
// happened after the cursor, each array in server emission order.
type pollBatch struct {
	Messages       []wireMessage       `json:"messages"`
	OfferResponses []wireOfferResponse `json:"offer_responses"`
	Cursor         string              `json:"cursor"`
}

// pollPosition is the delivery position of one poll loop: the message cursor
// the server honors, plus a timestamp high-water mark for offer responses,
// which carry no id the cursor could cover.
type pollPosition struct {
	cursor      string
	respondedAt time.Time
}

type timedEvent struct {
	at    time.Time
	event event.DomainEvent
}

// Polling implements the transport contract over periodic HTTP requests.
// One goroutine per subscribed conversation issues a list-messages call on
// a fixed interval and diffs against the last-seen cursor, so delivery
// order within a conversation matches server order. Refreshes are
// suppressed while the view is not visible.
type Polling struct {
	log        *slog.Logger
	client     *http.Client
	baseURL    string
	identity   auth.Identity
	interval   time.Duration
	visibility *Visibility
	cursors    CursorStore

	mu   sync.Mutex
	subs map[domain.ConversationID]*pollSubscription
}

type PollingOption func(*Polling)

func WithPollInterval(d time.Duration) PollingOption {
	return func(p *Polling) { p.interval = d }
}

func WithHTTPClient(client *http.Client) PollingOption {
	return func(p *Polling) { p.client = client }
}

// WithCursorStore persists poll positions between runs.
func WithCursorStore(store CursorStore) PollingOption {
	return func(p *Polling) { p.cursors = store }
}

func NewPolling(log *slog.Logger, baseURL string, identity auth.Identity,
	visibility *Visibility, opts ...PollingOption) *Polling {
	p := &Polling{
		log:        log,
		client:     &http.Client{},
		baseURL:    baseURL,
		identity:   identity,
		interval:   DefaultPollInterval,
		visibility: visibility,
		subs:       make(map[domain.ConversationID]*pollSubscription),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Send posts one command and parses the server confirmation.
func (p *Polling) Send(ctx context.Context, cmd domain.Command) (domain.Receipt, error) {
	eventName, payload, err := encodeCommand(cmd)
	if err != nil {
		return domain.Receipt{}, err
	}

	var path string
	switch eventName {
	case frameSendMessage:
		path = "/send_chat_message"
	case frameRespondToOffer:
		path = "/respond_to_offer"
	case framePresence:
		path = "/update_online_status"
	case frameTyping:
		// Typing is advisory and has no polling endpoint; dropped.
		return domain.Receipt{}, nil
	default:
		return domain.Receipt{}, fmt.Errorf("command %q has no polling endpoint", cmd.Kind())
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.Receipt{}, err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return domain.Receipt{}, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", p.identity.BearerHeader())

	response, err := p.client.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Receipt{}, ctx.Err()
		}
		return domain.Receipt{}, &errors.TransportError{
			Op: "send", Conversation: string(cmd.ConversationID()), Err: err,
		}
	}
	defer func() { _ = response.Body.Close() }()

	if eventName == framePresence {
		// Advisory; the ack body is irrelevant.
		_, _ = io.Copy(io.Discard, response.Body)
		return domain.Receipt{}, nil
	}
	if response.StatusCode != http.StatusOK {
		return domain.Receipt{}, &errors.TransportError{
			Op: "send", Conversation: string(cmd.ConversationID()),
			Err: fmt.Errorf("server returned %s", response.Status),
		}
	}

	var confirm confirmation
	if err := json.NewDecoder(response.Body).Decode(&confirm); err != nil {
		return domain.Receipt{}, &errors.TransportError{
			Op: "send", Conversation: string(cmd.ConversationID()), Err: err,
		}
	}
	receipt, err := confirm.toReceipt(time.Now().UTC())
	if err != nil {
		return domain.Receipt{}, &errors.TransportError{
			Op: "send", Conversation: string(cmd.ConversationID()), Err: err,
		}
	}
	return receipt, nil
}

// Subscribe starts the poll loop for one conversation.
func (p *Polling) Subscribe(id domain.ConversationID, sink contract.EventSink) (contract.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.subs[id]; exists {
		return nil, fmt.Errorf("conversation %s already subscribed", id)
	}

	cursor := ""
	if p.cursors != nil {
		persisted, err := p.cursors.LoadCursor(id)
		if err != nil {
			p.log.Warn("Poll cursor unavailable, starting fresh", "conversation", id, "error", err)
		} else {
			cursor = persisted
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &pollSubscription{transport: p, conversation: id, cancel: cancel}
	p.subs[id] = sub

	go p.loop(ctx, id, sink, pollPosition{cursor: cursor})
	return sub, nil
}

func (p *Polling) loop(ctx context.Context, id domain.ConversationID,
	sink contract.EventSink, pos pollPosition) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.visibility != nil && !p.visibility.Visible() {
				// Background tab: skip the refresh entirely.
				continue
			}
			next, err := p.pollOnce(ctx, id, sink, pos)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Recovered by the next tick.
				p.log.Warn("Poll failed", "conversation", id, "error", err)
				continue
			}
			if next.cursor != pos.cursor && p.cursors != nil {
				if err := p.cursors.StoreCursor(id, next.cursor); err != nil {
					p.log.Warn("Persisting poll cursor failed", "conversation", id, "error", err)
				}
			}
			pos = next
		}
	}
}

// pollOnce fetches and delivers everything after the position, in order.
// The server hands messages and offer responses as two arrays; a stable
// merge by emission timestamp restores the single server-ordered stream.
func (p *Polling) pollOnce(ctx context.Context, id domain.ConversationID,
	sink contract.EventSink, pos pollPosition) (pollPosition, error) {
	url := fmt.Sprintf("%s/get_chat_messages/%s", p.baseURL, id)
	if pos.cursor != "" {
		url += "?since=" + pos.cursor
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pos, err
	}
	request.Header.Set("Authorization", p.identity.BearerHeader())

	response, err := p.client.Do(request)
	if err != nil {
		return pos, err
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		return pos, fmt.Errorf("server returned %s", response.Status)
	}

	var batch pollBatch
	if err := json.NewDecoder(response.Body).Decode(&batch); err != nil {
		return pos, err
	}

	next := pos
	entries := make([]timedEvent, 0, len(batch.Messages)+len(batch.OfferResponses))
	for _, w := range batch.Messages {
		entries = append(entries, timedEvent{at: w.CreatedAt, event: w.toEvent()})
	}
	for _, w := range batch.OfferResponses {
		evt, err := w.toEvent()
		if err != nil {
			p.log.Warn("Skipping undecodable offer response", "conversation", id, "error", err)
			continue
		}
		if !pos.respondedAt.IsZero() && !w.At.After(pos.respondedAt) {
			// Delivered on a previous tick; the cursor cannot exclude it.
			continue
		}
		entries = append(entries, timedEvent{at: w.At, event: evt})
		if w.At.After(next.respondedAt) {
			next.respondedAt = w.At
		}
	}
	slices.SortStableFunc(entries, func(a, b timedEvent) int {
		return a.at.Compare(b.at)
	})

	for _, e := range entries {
		if err := sink.Consume(ctx, e.event); err != nil {
			return pos, err
		}
	}

	if batch.Cursor != "" {
		next.cursor = batch.Cursor
	} else if n := len(batch.Messages); n > 0 {
		next.cursor = batch.Messages[n-1].ID
	}
	return next, nil
}

func (p *Polling) unsubscribe(sub *pollSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.subs[sub.conversation]; ok && current == sub {
		delete(p.subs, sub.conversation)
	}
}

type pollSubscription struct {
	transport    *Polling
	conversation domain.ConversationID
	once         sync.Once
	cancel       context.CancelFunc
}

// Unsubscribe stops the poll loop; calling it twice is harmless.
func (s *pollSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.transport.unsubscribe(s)
	})
}
