// ABOUTME: Gateway orchestrator wiring store, guard, dialogue, delivery and the HTTP server
// ABOUTME: Manages the WhatsApp bridge, event publisher and health endpoints lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marcelomst/begaia-gateway/internal/auth"
	"github.com/marcelomst/begaia-gateway/internal/config"
	"github.com/marcelomst/begaia-gateway/internal/conversation"
	"github.com/marcelomst/begaia-gateway/internal/delivery"
	"github.com/marcelomst/begaia-gateway/internal/dialogue"
	"github.com/marcelomst/begaia-gateway/internal/events"
	"github.com/marcelomst/begaia-gateway/internal/guard"
	"github.com/marcelomst/begaia-gateway/internal/hotelapi"
	"github.com/marcelomst/begaia-gateway/internal/identity"
	"github.com/marcelomst/begaia-gateway/internal/ingest"
	"github.com/marcelomst/begaia-gateway/internal/store"
	"github.com/marcelomst/begaia-gateway/internal/whatsapp"
)

// Gateway orchestrates the begaia-gateway server components.
type Gateway struct {
	config     *config.Config
	store      store.Store
	engine     *dialogue.Engine
	ingest     *ingest.Service
	review     *conversation.Service
	httpServer *http.Server
	logger     *slog.Logger

	// eventBroadcaster pushes transcript messages to guest and staff streams
	eventBroadcaster *conversation.EventBroadcaster

	// verifier is nil when auth.jwt_secret is empty; staff routes are then disabled
	verifier *auth.JWTVerifier

	// streams signs the tokens web guests present to watch their conversation
	streams *auth.StreamSigner

	publisher events.Publisher

	// guard backend resources
	storeClaimer  *guard.StoreClaimer
	memoryClaimer *guard.MemoryClaimer
	redisClient   *redis.Client

	// whatsappClient and whatsappTransport are nil when the channel is disabled
	whatsappClient    *whatsapp.Client
	whatsappTransport *delivery.WhatsApp

	startedAt time.Time
}

func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return s, nil
}

// initGuard builds the idempotency guard over the configured backend
func (g *Gateway) initGuard(cfg *config.Config, s store.Store) (*guard.Guard, error) {
	var claimer guard.Claimer
	switch cfg.Guard.Backend {
	case config.GuardBackendRedis:
		g.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		claimer = guard.NewRedisClaimer(g.redisClient, g.logger)
	case config.GuardBackendMemory:
		g.memoryClaimer = guard.NewMemoryClaimer(100_000)
		claimer = g.memoryClaimer
	default:
		g.storeClaimer = guard.NewStoreClaimer(s, g.logger)
		claimer = g.storeClaimer
	}
	g.logger.Info("idempotency guard ready", "backend", cfg.Guard.Backend, "ttl", cfg.Guard.TTL)
	return guard.New(claimer, cfg.Guard.TTL, g.logger), nil
}

// initCollaborators picks remote services when configured and built-ins otherwise
func initCollaborators(cfg *config.Config, s store.Store, logger *slog.Logger) dialogue.Deps {
	c := cfg.Collaborators
	deps := dialogue.Deps{Store: s, DefaultLocale: cfg.Hotel.DefaultLocale}

	if c.AvailabilityURL != "" {
		deps.Availability = hotelapi.NewAvailabilityClient(c.AvailabilityURL, c.Timeout, logger)
	} else {
		deps.Availability = hotelapi.NewStaticAvailability(c.StaticRates)
	}
	if c.BookingURL != "" {
		deps.Booking = hotelapi.NewBookingClient(c.BookingURL, c.Timeout, logger)
	} else {
		deps.Booking = hotelapi.NewLocalBooking(s)
	}
	if c.ExtractorURL != "" {
		deps.Extractor = hotelapi.NewExtractorClient(c.ExtractorURL, c.Timeout, logger)
	}
	return deps
}

func (g *Gateway) initPublisher(cfg *config.Config) error {
	if cfg.Events.AMQPURL == "" {
		g.publisher = events.Noop{}
		g.logger.Info("domain events disabled (no events.amqp_url)")
		return nil
	}
	p, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, g.logger)
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	g.publisher = p
	return nil
}

// initTransports builds the closed channel table of the delivery adapter
func (g *Gateway) initTransports(cfg *config.Config) map[store.Channel]delivery.Transport {
	transports := map[store.Channel]delivery.Transport{
		store.ChannelWeb:            delivery.NewWeb(g.eventBroadcaster),
		store.ChannelChannelManager: delivery.NewChannelManager(g.publisher),
	}

	if wa := cfg.Channels.WhatsApp; wa.Enabled {
		g.whatsappClient = whatsapp.NewClient(wa.BridgeURL, wa.BridgeToken, g.handleWhatsAppInbound, g.logger)
		g.whatsappTransport = delivery.NewWhatsApp(g.whatsappClient, wa.ReadyTimeout, wa.Backoff, g.logger)
		transports[store.ChannelWhatsApp] = g.whatsappTransport
	}

	if em := cfg.Channels.Email; em.Enabled {
		mailer := delivery.NewSMTPMailer(em.SMTPHost, em.SMTPPort, em.Username, em.Password, em.From)
		transports[store.ChannelEmail] = delivery.NewEmail(mailer)
	}
	return transports
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		config:           cfg,
		store:            s,
		logger:           logger.With("component", "gateway"),
		eventBroadcaster: conversation.NewEventBroadcaster(logger),
		startedAt:        time.Now(),
	}

	if cfg.Auth.JWTSecret != "" {
		g.verifier, err = auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
	} else {
		g.logger.Warn("auth.jwt_secret not set, staff API and staff streams are disabled")
	}
	g.streams, err = auth.NewStreamSigner([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating stream signer: %w", err)
	}

	claimer, err := g.initGuard(cfg, s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := g.initPublisher(cfg); err != nil {
		g.closeOptionalComponents()
		_ = s.Close()
		return nil, err
	}

	adapter := delivery.NewAdapter(s, g.initTransports(cfg), logger)
	g.engine = dialogue.NewEngine(initCollaborators(cfg, s, logger), logger)
	g.review = conversation.New(s, adapter, g.eventBroadcaster, logger)
	g.ingest = ingest.New(ingest.Deps{
		Store:         s,
		Guard:         claimer,
		Identity:      identity.NewResolver(s, cfg.Hotel.DefaultMode, logger),
		Dialogue:      g.engine,
		Replier:       adapter,
		Emitter:       g.eventBroadcaster,
		Events:        g.publisher,
		DefaultLocale: cfg.Hotel.DefaultLocale,
		DefaultMode:   cfg.Hotel.DefaultMode,
	}, logger)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g, nil
}

// handleWhatsAppInbound feeds bridge messages into ingestion
func (g *Gateway) handleWhatsAppInbound(ctx context.Context, msg whatsapp.Inbound) {
	ev := ingest.Event{
		HotelID:     g.config.Hotel.ID,
		Channel:     store.ChannelWhatsApp,
		From:        msg.From(),
		Content:     msg.Content,
		SourceMsgID: msg.ID,
		Name:        msg.PushName,
		Phone:       whatsapp.PhoneFromJID(msg.From()),
	}
	if msg.Timestamp > 0 {
		ev.Timestamp = time.Unix(msg.Timestamp, 0).UTC()
	}
	if _, err := g.ingest.Handle(ctx, ev); err != nil {
		g.logger.Warn("dropping malformed bridge message", "message_id", msg.ID, "error", err)
	}
}

// Run starts the HTTP server and the WhatsApp bridge and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	if g.whatsappClient != nil {
		go func() {
			if err := g.whatsappClient.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				g.logger.Error("whatsapp bridge stopped", "error", err)
			}
		}()
	}
	if g.storeClaimer != nil {
		go g.storeClaimer.RunPurger(ctx, g.config.Guard.PurgeInterval)
	}

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout,
// since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeOptionalComponents closes optional components that may be nil.
func (g *Gateway) closeOptionalComponents() {
	if g.memoryClaimer != nil {
		g.memoryClaimer.Close()
	}
	if g.redisClient != nil {
		_ = g.redisClient.Close()
	}
	if g.publisher != nil {
		_ = g.publisher.Close()
	}
	if g.eventBroadcaster != nil {
		g.eventBroadcaster.Close()
	}
}

// Shutdown stops the HTTP server and releases every resource.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.closeOptionalComponents()
	errs = appendCloseError(errs, "store close", g.store.Close())

	return errors.Join(errs...)
}
