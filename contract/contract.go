//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"nego-lab/domain"
	"nego-lab/domain/event"
	"nego-lab/projection"
)

// Transport abstracts the channel to the marketplace server. Both the
// polling and the socket implementation honor the same contract so the
// negotiation machine never knows which one is underneath.
type Transport interface {
	// Send transmits one command and blocks until the server confirms it,
	// the context ends, or the transport's own send timeout elapses.
	Send(ctx context.Context, cmd domain.Command) (domain.Receipt, error)
	// Subscribe registers a sink invoked once per inbound event, in server
	// emission order within the conversation.
	Subscribe(id domain.ConversationID, sink EventSink) (Subscription, error)
}

// Subscription stops event delivery for one conversation.
type Subscription interface {
	// Unsubscribe is idempotent.
	Unsubscribe()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Renderer is the display collaborator. It receives a read-only snapshot
// after every transition and typed outcomes for failures; presentation is
// entirely its concern.
type Renderer interface {
	RenderConversation(view projection.ConversationView)
	RenderNotice(id domain.ConversationID, err error)
}

type WorkerName string

// Worker doesn't protect itself; the supervisor does.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// used for logging and supervision during lifecycle events.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
