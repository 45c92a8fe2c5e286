package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"nego-lab/auth"
	"nego-lab/contract"
	"nego-lab/domain"
	"nego-lab/internal"
	"nego-lab/moderation"
	"nego-lab/observability"
	"nego-lab/repositories"
	"nego-lab/runtime"
	"nego-lab/runtime/workers"
	"nego-lab/search"
	"nego-lab/transport"
	"nego-lab/ui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the client lifecycle, and
// centralizes error reporting, so every defer (database cleanup included)
// executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	identity, err := auth.ParseIdentity(config.SessionToken, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("session token: %w", err)
	}

	// 2. Local cache (BadgerDB) & search index (Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("cache opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	var index *search.Index
	if config.BlugeFilepath != "" {
		index, err = search.Open(config.BlugeFilepath)
	} else {
		index, err = search.OpenInMemory()
	}
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() { _ = index.Close() }()

	repository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	cacheSink := repositories.NewCacheSink(repository, index, log)

	// 3. Moderation
	maskRune, err := characterRune(config.CharReplacement)
	if err != nil {
		return err
	}
	masker, err := moderation.NewMasker(maskRune)
	if err != nil {
		return fmt.Errorf("masker setup failed: %w", err)
	}

	// 4. Transport
	visibility := transport.NewVisibility()
	var tr contract.Transport
	var socket *transport.Socket
	switch config.Transport {
	case "socket":
		if config.SocketURL == "" {
			return fmt.Errorf("TRANSPORT=socket requires SOCKET_URL")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		socket, err = transport.DialSocket(ctx, log, config.SocketURL, identity, visibility)
		cancel()
		if err != nil {
			return fmt.Errorf("socket connect failed: %w", err)
		}
		defer func() { _ = socket.Close() }()
		tr = socket
	case "polling":
		opts := []transport.PollingOption{transport.WithCursorStore(repository)}
		if config.PollInterval > 0 {
			opts = append(opts, transport.WithPollInterval(config.PollInterval))
		}
		tr = transport.NewPolling(log, config.ServerURL, identity, visibility, opts...)
	default:
		return fmt.Errorf("unknown transport %q", config.Transport)
	}

	// 5. Sessions
	monitor := observability.NewMonitor()
	renderer := ui.NewTermRenderer(os.Stdout, config.Colours)
	managerOpts := []runtime.Option{
		runtime.WithMasker(masker),
		runtime.WithSinks(cacheSink),
		runtime.WithMonitor(monitor),
	}
	if config.SendTimeout > 0 {
		managerOpts = append(managerOpts, runtime.WithSendTimeout(config.SendTimeout))
	}
	manager := runtime.NewManager(log, tr, renderer, identity.UserID, managerOpts...)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Background workers under supervision
	sup := workers.NewSupervisor(log)
	sup.Add(
		workers.NewExpiryWorker(log, manager, config.ExpiryInterval),
		workers.NewPresenceWorker(log, tr, visibility, config.PresenceInterval),
		workers.NewTelemetryWorker(log, monitor, config.MetricInterval),
	)
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 8. Debug inspector
	if config.DebugPort > 0 {
		internal.StartDebugServer(db, config.DebugPort, "/inspect",
			internal.MessageMapper, func() map[string]any {
				stats := monitor.Snapshot()
				return map[string]any{
					"commands_sent":      stats.CommandsSent,
					"events_delivered":   stats.EventsDelivered,
					"open_conversations": stats.OpenConversations,
				}
			})
		log.Info("Debug inspector started", "url",
			fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort))
	}

	// 9. Interactive prompt
	log.Info("Chat client ready", "user", identity.UserID, "transport", config.Transport)
	replDone := make(chan struct{})
	go func() {
		defer close(replDone)
		repl(ctx, manager, visibility, os.Stdin)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case <-replDone:
		log.Info("Prompt closed, shutting down...")
		stop()
	}

	// 10. Final cleanup
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")
	return nil
}

const usage = `commands:
  open <conversation>
  close <conversation>
  text <conversation> <body...>
  typing <conversation> on|off
  propose <conversation> <price> <quantity> [note...]
  accept <conversation> <offer>
  reject <conversation> <offer>
  counter <conversation> <offer> <price> <quantity> [note...]
  show <conversation>
  visible on|off
  quit`

// repl reads one command per line until EOF or cancellation. Errors already
// reached the renderer as notices; they are not printed twice.
func repl(ctx context.Context, manager *runtime.Manager,
	visibility *transport.Visibility, in *os.File) {
	handles := make(map[domain.ConversationID]runtime.Handle)
	scanner := bufio.NewScanner(in)
	fmt.Println(usage)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return
		case "open":
			if len(fields) != 2 {
				fmt.Println(usage)
				continue
			}
			id := domain.ConversationID(fields[1])
			handle, err := manager.Open(id)
			if err != nil {
				fmt.Printf("open failed: %v\n", err)
				continue
			}
			handles[id] = handle
		case "close":
			if len(fields) != 2 {
				fmt.Println(usage)
				continue
			}
			id := domain.ConversationID(fields[1])
			if handle, ok := handles[id]; ok {
				manager.Close(handle)
				delete(handles, id)
			}
		case "text":
			if len(fields) < 3 {
				fmt.Println(usage)
				continue
			}
			_ = manager.SendText(ctx, domain.ConversationID(fields[1]),
				strings.Join(fields[2:], " "))
		case "typing":
			if len(fields) != 3 {
				fmt.Println(usage)
				continue
			}
			manager.NotifyTyping(ctx, domain.ConversationID(fields[1]), fields[2] == "on")
		case "propose":
			if len(fields) < 4 {
				fmt.Println(usage)
				continue
			}
			price, quantity, ok := parseTerms(fields[2], fields[3])
			if !ok {
				continue
			}
			_ = manager.Dispatch(ctx, domain.ProposeAction{
				Conversation: domain.ConversationID(fields[1]),
				Price:        price,
				Quantity:     quantity,
				Note:         strings.Join(fields[4:], " "),
			})
		case "accept":
			if len(fields) != 3 {
				fmt.Println(usage)
				continue
			}
			_ = manager.Dispatch(ctx, domain.AcceptAction{
				Conversation: domain.ConversationID(fields[1]),
				OfferID:      domain.OfferID(fields[2]),
			})
		case "reject":
			if len(fields) != 3 {
				fmt.Println(usage)
				continue
			}
			_ = manager.Dispatch(ctx, domain.RejectAction{
				Conversation: domain.ConversationID(fields[1]),
				OfferID:      domain.OfferID(fields[2]),
			})
		case "counter":
			if len(fields) < 5 {
				fmt.Println(usage)
				continue
			}
			price, quantity, ok := parseTerms(fields[3], fields[4])
			if !ok {
				continue
			}
			_ = manager.Dispatch(ctx, domain.CounterAction{
				Conversation: domain.ConversationID(fields[1]),
				OfferID:      domain.OfferID(fields[2]),
				Price:        price,
				Quantity:     quantity,
				Note:         strings.Join(fields[5:], " "),
			})
		case "show":
			if len(fields) != 2 {
				fmt.Println(usage)
				continue
			}
			view, ok := manager.Snapshot(domain.ConversationID(fields[1]))
			if !ok {
				fmt.Println("conversation is not open")
				continue
			}
			fmt.Printf("state=%s unread=%d messages=%d offers=%d\n",
				view.State, view.Unread, len(view.Messages), len(view.Offers))
		case "visible":
			if len(fields) != 2 {
				fmt.Println(usage)
				continue
			}
			visible := fields[1] == "on"
			visibility.Set(visible)
			manager.SetVisible(visible)
		default:
			fmt.Println(usage)
		}
	}
}

func parseTerms(priceField, quantityField string) (int64, int, bool) {
	price, err := strconv.ParseInt(priceField, 10, 64)
	if err != nil {
		fmt.Println("price must be an integer in minor units")
		return 0, 0, false
	}
	quantity, err := strconv.Atoi(quantityField)
	if err != nil {
		fmt.Println("quantity must be an integer")
		return 0, 0, false
	}
	return price, quantity, true
}

func characterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q", str)
	}
	return r[0], nil
}
