package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/mahaj/chatrelay/pkg/config"
	"github.com/mahaj/chatrelay/pkg/conversation"
	"github.com/mahaj/chatrelay/pkg/identity"
	"github.com/mahaj/chatrelay/pkg/journal"
	"github.com/mahaj/chatrelay/pkg/lifecycle"
	"github.com/mahaj/chatrelay/pkg/mirror"
	"github.com/mahaj/chatrelay/pkg/presence"
	"github.com/mahaj/chatrelay/pkg/router"
	"github.com/mahaj/chatrelay/pkg/snowflake"
	"github.com/mahaj/chatrelay/pkg/typing"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// server owns the relay components of one gateway process.
type server struct {
	log      logrus.FieldLogger
	pump     pumpConfig
	hub      *Hub
	registry *identity.Registry
	store    *conversation.Store
	driver   lifecycle.Driver
	typing   *typing.Coordinator
	router   *router.Router
	mirror   *mirror.Presence
	journal  *journal.Journal
}

func newServer(cfg config.Config, log logrus.FieldLogger) (*server, error) {
	ids, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}

	store := conversation.NewStore(ids)
	for _, group := range cfg.SeedGroups {
		if _, err := store.Ensure(group); err != nil {
			return nil, fmt.Errorf("seed group %q: %w", group, err)
		}
	}

	machine := lifecycle.NewMachine(store)
	var driver lifecycle.Driver = lifecycle.AckDriver{}
	if cfg.LifecycleDriver == config.DriverTimer {
		driver = lifecycle.NewTimerDriver(machine, cfg.DeliveryDelay, cfg.ReadDelay)
	}

	s := &server{
		log:      log,
		pump:     pumpConfig{sendBuffer: cfg.SendBuffer, maxMessageSize: cfg.MaxMessageSize},
		hub:      NewHub(log.WithField("component", "hub")),
		registry: identity.NewRegistry(),
		store:    store,
		driver:   driver,
		typing:   typing.NewCoordinator(cfg.TypingTimeout),
	}

	var observers []router.Observer
	if cfg.MirrorEnabled() {
		s.mirror = mirror.NewPresence(mirror.NewClient(cfg.RedisAddr), mirror.DefaultQueue, log.WithField("component", "mirror"))
		observers = append(observers, s.mirror)
	}
	if cfg.JournalEnabled() {
		s.journal = journal.New(journal.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic), journal.DefaultQueue, log.WithField("component", "journal"))
		observers = append(observers, s.journal)
	}

	s.router = router.New(router.Deps{
		Identities: s.registry,
		Store:      store,
		Machine:    machine,
		Driver:     driver,
		Typing:     s.typing,
		Presence:   presence.NewTracker(),
		Sink:       s.hub,
		Observers:  observers,
		Log:        log.WithField("component", "router"),
	})
	s.hub.Attach(s.router)

	log.WithFields(logrus.Fields{
		"driver":  cfg.LifecycleDriver,
		"groups":  len(cfg.SeedGroups),
		"mirror":  cfg.MirrorEnabled(),
		"journal": cfg.JournalEnabled(),
	}).Info("Relay ready")
	return s, nil
}

// Handler routes the gateway endpoints. Connections live until ctx is done.
func (s *server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(ctx, s.hub, s.pump, w, r)
	})
	mux.Handle("/presence", CORSMiddleware(NewPresenceHandler(s.registry, s.log)))
	mux.Handle("/healthz", CORSMiddleware(healthHandler(s.hub)))
	return mux
}

// Run drives the hub and the enabled observers until ctx is done.
func (s *server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.hub.Run(ctx) })
	if s.mirror != nil {
		g.Go(func() error { return s.mirror.Run(ctx) })
	}
	if s.journal != nil {
		g.Go(func() error { return s.journal.Run(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *server) Close() error {
	s.driver.Stop()
	s.typing.Close()

	var errs []error
	if s.mirror != nil {
		errs = append(errs, s.mirror.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	return errors.Join(errs...)
}
