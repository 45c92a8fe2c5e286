package e2e

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"

	"nego-lab/auth"
	"nego-lab/domain"
	"nego-lab/domain/nego"
	"nego-lab/projection"
	"nego-lab/runtime"
	"nego-lab/transport"
)

// e2ePollInterval keeps the scenarios snappy against a local server.
const e2ePollInterval = 250 * time.Millisecond

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests.
// Without a server address the whole suite is skipped.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerURL == "" {
		s.T().Skip("E2E_SERVER_URL not set, skipping end-to-end suite")
	}
}

// Step prints a colorized header so the scenario reads as a script in logs.
func (s *BaseSuite) Step(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// Client wires one manager over the polling transport for the given token.
func (s *BaseSuite) Client(t *testing.T, token string) *runtime.Manager {
	identity, err := auth.ParseIdentity(token, time.Now().UTC())
	s.Require().NoError(err, "e2e token must parse")

	log := slog.Default()
	polling := transport.NewPolling(log, s.Config.ServerURL, identity,
		transport.NewVisibility(), transport.WithPollInterval(e2ePollInterval))
	return runtime.NewManager(log, polling, &logRenderer{t: t, colours: s.Config.Colours},
		identity.UserID)
}

// WaitForState polls the snapshot until the machine reaches the wanted state.
func (s *BaseSuite) WaitForState(t *testing.T, manager *runtime.Manager,
	id domain.ConversationID, want nego.State, timeout time.Duration) projection.ConversationView {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if view, ok := manager.Snapshot(id); ok && view.State == want {
			return view
		}
		time.Sleep(e2ePollInterval / 2)
	}
	view, _ := manager.Snapshot(id)
	s.Require().Failf("timeout", "state %q never reached, stuck at %q", want, view.State)
	return view
}

// logRenderer routes snapshots and notices into the test log.
type logRenderer struct {
	t       *testing.T
	colours bool
}

func (r *logRenderer) RenderConversation(view projection.ConversationView) {
	line := fmt.Sprintf("[%s] state=%s messages=%d offers=%d",
		view.Conversation, view.State, len(view.Messages), len(view.Offers))
	if r.colours {
		line = color.New(color.FgCyan).Render(line)
	}
	r.t.Log(line)
}

func (r *logRenderer) RenderNotice(id domain.ConversationID, err error) {
	line := fmt.Sprintf("[%s] notice: %v", id, err)
	if r.colours {
		line = color.New(color.FgYellow).Render(line)
	}
	r.t.Log(line)
}
