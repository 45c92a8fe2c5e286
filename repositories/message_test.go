package repositories

import (
	"fmt"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/mama165/sdk-go/database"
	"github.com/stretchr/testify/require"

	"nego-lab/domain"
)

const conv = domain.ConversationID("conv_1_2_product_7")

func TestMessageRepository_Stores_And_Sorts(t *testing.T) {
	req := require.New(t)
	_, _, badgerDB, blugeWriter, err := database.SetupBenchmark(database.DefaultPath)
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repository := NewMessageRepository(badgerDB, slog.Default(), nil)
	at := time.Now().UTC()
	messages := []domain.Message{
		{ID: "msg-1", Conversation: conv, SenderID: "alice", Body: "hi", Type: domain.MessageText, CreatedAt: at},
		{ID: "msg-2", Conversation: conv, SenderID: "bob", Body: "offer", Type: domain.MessageOffer, Price: 50_000, Quantity: 2, CreatedAt: at.Add(time.Minute)},
		{ID: "msg-3", Conversation: conv, SenderID: "alice", Body: "deal", Type: domain.MessageDeal, Price: 50_000, CreatedAt: at.Add(2 * time.Minute)},
	}

	sorted := make([]domain.Message, len(messages))
	copy(sorted, messages)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	for _, msg := range messages {
		req.NoError(repository.StoreMessage(msg))
	}

	// When fetching the conversation
	fetched, _, err := repository.GetMessages(conv, nil)
	req.NoError(err)

	// Then messages come back newest first
	req.Equal(sorted, fetched)
}

func TestMessageRepository_Limit_And_Pagination(t *testing.T) {
	req := require.New(t)
	_, _, badgerDB, blugeWriter, err := database.SetupBenchmark(database.DefaultPath)
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	limit := 4
	repository := NewMessageRepository(badgerDB, slog.Default(), &limit)
	now := time.Now().UTC()
	for i := 1; i <= 10; i++ {
		req.NoError(repository.StoreMessage(domain.Message{
			ID:           fmt.Sprintf("msg-%02d", i),
			Conversation: conv,
			SenderID:     "alice",
			Body:         fmt.Sprintf("message %d", i),
			Type:         domain.MessageText,
			CreatedAt:    now.Add(time.Duration(i) * time.Minute),
		}))
	}

	// Page 1: the four newest
	page1, cursor1, err := repository.GetMessages(conv, nil)
	req.NoError(err)
	req.Len(page1, 4)
	req.Equal("msg-10", page1[0].ID)
	req.NotNil(cursor1)

	// Page 2 resumes after the cursor without overlap
	page2, _, err := repository.GetMessages(conv, cursor1)
	req.NoError(err)
	req.Len(page2, 4)
	req.Equal("msg-06", page2[0].ID)
}

func TestMessageRepository_Conversations_Are_Isolated(t *testing.T) {
	req := require.New(t)
	_, _, badgerDB, blugeWriter, err := database.SetupBenchmark(database.DefaultPath)
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repository := NewMessageRepository(badgerDB, slog.Default(), nil)
	now := time.Now().UTC()
	req.NoError(repository.StoreMessage(domain.Message{
		ID: "msg-1", Conversation: conv, SenderID: "a", Body: "x",
		Type: domain.MessageText, CreatedAt: now,
	}))
	req.NoError(repository.StoreMessage(domain.Message{
		ID: "msg-2", Conversation: "conv_3_4_general", SenderID: "b", Body: "y",
		Type: domain.MessageText, CreatedAt: now,
	}))

	fetched, _, err := repository.GetMessages(conv, nil)
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal("msg-1", fetched[0].ID)
}

func TestMessageRepository_Cursor_Roundtrip(t *testing.T) {
	req := require.New(t)
	_, _, badgerDB, blugeWriter, err := database.SetupBenchmark(database.DefaultPath)
	req.NoError(err)
	defer database.CleanupDB(badgerDB, blugeWriter)

	repository := NewMessageRepository(badgerDB, slog.Default(), nil)

	// No cursor stored yet
	cursor, err := repository.LoadCursor(conv)
	req.NoError(err)
	req.Empty(cursor)

	req.NoError(repository.StoreCursor(conv, "msg-17"))
	cursor, err = repository.LoadCursor(conv)
	req.NoError(err)
	req.Equal("msg-17", cursor)
}
