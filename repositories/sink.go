package repositories

import (
	"context"
	"log/slog"

	"nego-lab/domain/event"
	"nego-lab/search"
)

// CacheSink feeds every delivered message into the local cache and the
// full-text index. Registered as a permanent sink on the session manager.
type CacheSink struct {
	repository IMessageRepository
	index      *search.Index
	log        *slog.Logger
}

func NewCacheSink(repository IMessageRepository, index *search.Index, log *slog.Logger) *CacheSink {
	return &CacheSink{repository: repository, index: index, log: log}
}

func (s *CacheSink) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessageReceived)
	if !ok {
		return nil
	}
	message := evt.Message()
	if err := s.repository.StoreMessage(message); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.IndexMessage(message); err != nil {
			// A broken index never blocks caching; search degrades only.
			s.log.Warn("Indexing failed", "message", message.ID, "error", err)
		}
	}
	return nil
}
