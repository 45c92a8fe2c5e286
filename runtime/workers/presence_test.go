package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"nego-lab/domain"
	"nego-lab/mocks"
	"nego-lab/transport"
)

func TestPresenceWorker_Reports_Away_While_Hidden(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	transportMock := mocks.NewMockTransport(ctrl)

	visibility := transport.NewVisibility()
	visibility.Set(false)

	statuses := make(chan domain.PresenceStatus, 16)
	transportMock.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, cmd domain.Command) (domain.Receipt, error) {
			statuses <- cmd.(domain.PresenceCommand).Status
			return domain.Receipt{}, nil
		}).AnyTimes()

	worker := NewPresenceWorker(slog.Default(), transportMock, visibility, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	select {
	case status := <-statuses:
		req.Equal(domain.PresenceAway, status)
	case <-time.After(time.Second):
		req.Fail("no heartbeat emitted")
	}

	// Back to the foreground, the next beat reports online
	visibility.Set(true)
	deadline := time.After(time.Second)
	for {
		select {
		case status := <-statuses:
			if status == domain.PresenceOnline {
				return
			}
		case <-deadline:
			req.Fail("heartbeat never switched to online")
			return
		}
	}
}
