// Package search maintains a full-text index over the locally cached
// message history, so the renderer can offer history search without any
// server round trip.
package search

import (
	"context"
	"time"

	"github.com/blugelabs/bluge"

	"nego-lab/domain"
)

// Hit is one search result, newest match first.
type Hit struct {
	MessageID    string
	Conversation domain.ConversationID
	Body         string
	CreatedAt    time.Time
}

type Index struct {
	writer *bluge.Writer
}

func Open(path string) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &Index{writer: writer}, nil
}

// OpenInMemory backs the index with memory only, used by tests.
func OpenInMemory() (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.InMemoryOnlyConfig())
	if err != nil {
		return nil, err
	}
	return &Index{writer: writer}, nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

// IndexMessage upserts one message; re-delivered messages overwrite their
// previous entry instead of duplicating it.
func (i *Index) IndexMessage(message domain.Message) error {
	doc := bluge.NewDocument(message.ID).
		AddField(bluge.NewTextField("body", message.Body).StoreValue()).
		AddField(bluge.NewKeywordField("conversation", string(message.Conversation)).StoreValue()).
		AddField(bluge.NewKeywordField("sender", message.SenderID)).
		AddField(bluge.NewKeywordField("created_at", message.CreatedAt.UTC().Format(time.RFC3339Nano)).StoreValue())
	return i.writer.Update(doc.ID(), doc)
}

// Search matches the query against message bodies of one conversation.
func (i *Index) Search(ctx context.Context, conversation domain.ConversationID,
	query string, limit int) ([]Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField("body")).
		AddMust(bluge.NewTermQuery(string(conversation)).SetField("conversation"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		var hit Hit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "body":
				hit.Body = string(value)
			case "conversation":
				hit.Conversation = domain.ConversationID(value)
			case "created_at":
				if at, err := time.Parse(time.RFC3339Nano, string(value)); err == nil {
					hit.CreatedAt = at
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
