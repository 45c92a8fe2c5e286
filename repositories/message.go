//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"nego-lab/domain"
)

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	GetMessages(conversation domain.ConversationID, cursor *string) ([]domain.Message, *string, error)
	StoreCursor(conversation domain.ConversationID, cursor string) error
	LoadCursor(conversation domain.ConversationID) (string, error)
}

// MessageRepository caches delivered messages locally so reopened
// conversations render instantly and polling resumes from the last seen
// position after a restart. The server stays the system of record.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// cachedMessage is the on-disk shape. The wire protocol is JSON, so the
// cache uses the same encoding.
type cachedMessage struct {
	ID           string     `json:"id"`
	Conversation string     `json:"conversation"`
	SenderID     string     `json:"sender_id"`
	Body         string     `json:"body"`
	Type         string     `json:"type"`
	Price        int64      `json:"price,omitempty"`
	Quantity     int        `json:"quantity,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// StoreMessage persists one message.
// The key is "msg:{conversation}:{timestamp_padded}:{id}" so that:
//  1. a prefix scan per conversation returns chronological order
//     (19-digit zero padding keeps the lexicographic sort correct);
//  2. the server id disambiguates two messages in the same nanosecond.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	key := fmt.Sprintf("msg:%s:%019d:%s",
		message.Conversation,
		message.CreatedAt.UnixNano(),
		message.ID,
	)
	bytes, err := json.Marshal(fromDomain(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// GetMessages walks one conversation newest-first from the cursor, stopping
// at the configured limit. The returned cursor resumes the next page.
func (m MessageRepository) GetMessages(conversation domain.ConversationID,
	cursor *string) ([]domain.Message, *string, error) {
	var raw [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", conversation)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past every possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}
		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(raw) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d cached messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			if err := item.Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var messages []domain.Message
	for _, b := range raw {
		var cached cachedMessage
		if err := json.Unmarshal(b, &cached); err != nil {
			return nil, nil, err
		}
		messages = append(messages, toDomain(cached))
	}
	return messages, &lastKey, nil
}

// StoreCursor remembers the last event id delivered by the polling
// transport for one conversation.
func (m MessageRepository) StoreCursor(conversation domain.ConversationID, cursor string) error {
	key := fmt.Sprintf("cursor:%s", conversation)
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(cursor))
	})
}

// LoadCursor returns the persisted poll position, empty when none exists.
func (m MessageRepository) LoadCursor(conversation domain.ConversationID) (string, error) {
	key := fmt.Sprintf("cursor:%s", conversation)
	var cursor string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(value []byte) error {
			cursor = string(value)
			return nil
		})
	})
	return cursor, err
}

func fromDomain(message domain.Message) cachedMessage {
	return cachedMessage{
		ID:           message.ID,
		Conversation: string(message.Conversation),
		SenderID:     message.SenderID,
		Body:         message.Body,
		Type:         string(message.Type),
		Price:        message.Price,
		Quantity:     message.Quantity,
		ExpiresAt:    message.ExpiresAt,
		CreatedAt:    message.CreatedAt,
	}
}

func toDomain(cached cachedMessage) domain.Message {
	return domain.Message{
		ID:           cached.ID,
		Conversation: domain.ConversationID(cached.Conversation),
		SenderID:     cached.SenderID,
		Body:         cached.Body,
		Type:         domain.MessageType(cached.Type),
		Price:        cached.Price,
		Quantity:     cached.Quantity,
		ExpiresAt:    cached.ExpiresAt,
		CreatedAt:    cached.CreatedAt,
	}
}
