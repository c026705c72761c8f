package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/quickeats/internal/auth"
	"github.com/xenking/quickeats/internal/domain/catalog"
	"github.com/xenking/quickeats/internal/domain/identity"
	"github.com/xenking/quickeats/internal/domain/order"
	"github.com/xenking/quickeats/internal/domain/owner"
	"github.com/xenking/quickeats/internal/events"
	"github.com/xenking/quickeats/internal/handler"
	"github.com/xenking/quickeats/internal/storage/memory"
	"github.com/xenking/quickeats/internal/storage/postgres"
	redisstore "github.com/xenking/quickeats/internal/storage/redis"
	"github.com/xenking/quickeats/pkg/health"
	"github.com/xenking/quickeats/pkg/httpmiddleware"
)

const serviceName = "quickeats-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application. m is usually
// the *app.Telemetry of go-faster/sdk.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	cat, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}
	lg.Info("Catalog loaded", zap.Int("restaurants", len(cat.Restaurants())))

	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	st, err := openStores(ctx, lg, cfg, cat, healthSvc)
	if err != nil {
		return err
	}
	defer st.close()

	slots, closeSlots, err := openSessionSlots(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeSlots()

	publisher, closePublisher := openPublisher(lg, cfg, healthSvc)
	defer closePublisher()

	// Domain services.
	ownerSvc := owner.NewService(st.owners, st.users, cat)
	orderSvc, err := order.NewService(st.orders, cat, ownerSvc, publisher, lg.Named("order"),
		m.MeterProvider().Meter(serviceName),
		m.TracerProvider().Tracer(serviceName),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	profileSvc := identity.NewService(st.profiles)
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.Audience)

	// HTTP handlers.
	sessions := handler.NewSessions(slots, lg.Named("session"))
	h := handler.New(handler.Config{}, orderSvc, ownerSvc, profileSvc, verifier, sessions)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// No write timeout: event streams stay open. Streams clear their own
		// deadline and end on shutdown through CloseStreams.
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{"Content-Type", "Authorization",
					handler.HeaderSessionID, httpmiddleware.HeaderRequestID},
				ExposeHeaders: []string{handler.HeaderSessionID, httpmiddleware.HeaderRequestID,
					"Location", "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}
	server.RegisterOnShutdown(h.CloseStreams)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	if st.listener != nil {
		g.Go(func() error {
			return st.listener.Run(gctx, postgres.ChannelOrders, postgres.ChannelOwners)
		})
	}
	g.Go(func() error {
		return sessions.Run(gctx, time.Minute, cfg.Session.IdleEviction)
	})

	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

type stores struct {
	orders   order.Repository
	profiles identity.ProfileRepository
	owners   owner.Repository
	users    owner.BusinessUsers
	listener *postgres.Listener
	close    func()
}

// openStores connects PostgreSQL when configured. Without a database URL
// everything lives in process memory and business users come from the
// catalog contacts, as seed-db would write them.
func openStores(ctx context.Context, lg *zap.Logger, cfg *Config, cat *catalog.Catalog, hs *health.Health) (*stores, error) {
	if cfg.DatabaseURL == "" {
		lg.Warn("No database configured, orders are kept in memory")
		var emails []string
		for _, r := range cat.Restaurants() {
			if r.Email != "" {
				emails = append(emails, r.Email)
			}
		}
		return &stores{
			orders:   memory.NewOrderStore(),
			profiles: memory.NewProfileStore(),
			owners:   memory.NewOwnerStore(),
			users:    memory.NewBusinessUserStore(emails...),
			close:    func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	hs.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))

	listener := postgres.NewListener(pool, lg.Named("listen"))
	return &stores{
		orders:   postgres.NewOrderRepository(pool, listener, lg.Named("orders")),
		profiles: postgres.NewProfileRepository(pool),
		owners:   postgres.NewOwnerRepository(pool, listener, lg.Named("owners")),
		users:    postgres.NewBusinessUserRepository(pool),
		listener: listener,
		close:    pool.Close,
	}, nil
}

func openSessionSlots(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health) (handler.SlotProvider, func(), error) {
	if cfg.RedisURL == "" {
		lg.Info("No redis configured, sessions are kept in memory")
		return memory.NewSessionStore(), func() {}, nil
	}
	client, err := redisstore.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect redis")
	}
	hs.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	closeFn := func() {
		if err := client.Close(); err != nil {
			lg.Warn("Close redis", zap.Error(err))
		}
	}
	return redisstore.New(client, cfg.Session.TTL), closeFn, nil
}

// openPublisher returns the Kafka publisher, or a no-op one without brokers.
// Events are best effort, so a failing broker only degrades readiness after
// several consecutive probes.
func openPublisher(lg *zap.Logger, cfg *Config, hs *health.Health) (order.Publisher, func()) {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.Nop{}, func() {}
	}
	brokers := cfg.Kafka.Brokers
	pub := events.NewPublisher(events.NewWriter(brokers, cfg.Kafka.Topic))
	hs.AddReadinessCheck("kafka", 3*time.Second, func(ctx context.Context) error {
		return events.Ping(ctx, brokers)
	}, health.WithThresholds(5, 1))
	lg.Info("Publishing order events", zap.Strings("brokers", brokers), zap.String("topic", cfg.Kafka.Topic))
	return pub, func() {
		if err := pub.Close(); err != nil {
			lg.Warn("Close kafka writer", zap.Error(err))
		}
	}
}
