// Package app wires the accessgate runtime: config, logging, stores, throttle,
// audit fan-out, HTTP routes and the server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"accessgate/cmd/access"
	authapi "accessgate/cmd/internal/auth/api"
	"accessgate/cmd/internal/auth/audit"
	"accessgate/cmd/internal/auth/delivery"
	"accessgate/cmd/internal/auth/otp"
	"accessgate/cmd/internal/auth/throttle"
	"accessgate/cmd/security/secret"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// closer is one resource released at shutdown, in reverse acquisition order.
type closer struct {
	name  string
	close func(ctx context.Context) error
}

// App is the accessgate server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	rdb    *redis.Client

	metrics *Metrics
	auth    *authapi.Handler

	closers []closer
}

// New constructs a fully wired App instance from config and logger.
// Resources opened before a failure are released before New returns.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	a := &App{cfg: cfg, log: log}
	ready := false
	defer func() {
		if !ready {
			a.close(context.Background())
		}
	}()

	tokens, err := sessionTokenHasher(cfg)
	if err != nil {
		return nil, err
	}
	otpCfg, err := otp.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	secrets, err := secret.FromEnv()
	if err != nil {
		return nil, err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	limiter, err := a.openLimiter(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.openPublisher()
	if err != nil {
		return nil, err
	}

	opts := []otp.Option{
		otp.WithLogger(log),
		otp.WithPublisher(publisher),
		otp.WithPhoneNormalizer(access.NationalPlan{CountryCode: cfg.PhoneCountryCode, TrunkPrefix: cfg.PhoneTrunkPrefix}),
	}
	if cfg.MetricsEnabled {
		a.metrics = NewMetrics()
		opts = append(opts, otp.WithRecorder(a.metrics))
	}

	svc := otp.NewService(otpCfg, store, secrets, tokens, a.newSender(), opts...)

	a.auth, err = authapi.NewHandler(log, authapi.LoadConfigFromEnv(), svc, authapi.WithLimiter(limiter))
	if err != nil {
		return nil, err
	}
	ready = true

	log.Info("app.ready",
		"db_enabled", a.dbPool != nil,
		"redis_enabled", a.rdb != nil,
		"kafka_enabled", len(cfg.KafkaBrokers) > 0,
		"token_hmac", tokens.HMAC(),
	)
	return a, nil
}

// openStore decides between Postgres-backed persistence and the in-memory dev store.
func (a *App) openStore(ctx context.Context) (access.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Warn("db.disabled.inmemory_store")
		return access.NewMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	a.dbPool = pool
	a.closers = append(a.closers, closer{name: "db", close: func(context.Context) error {
		pool.Close()
		return nil
	}})

	if a.cfg.DBAutoMigrate {
		if err := migrateDB(ctx, pool, a.cfg.DBSchema, a.log); err != nil {
			return nil, err
		}
	}

	st, err := access.NewPostgresStore(pool, access.WithSchema(a.cfg.DBSchema))
	if err != nil {
		return nil, err
	}
	a.log.Info("db.enabled.postgres_store", "schema", st.Schema())
	return st, nil
}

func (a *App) openLimiter(ctx context.Context) (throttle.Limiter, error) {
	if a.cfg.RedisURL == "" {
		a.log.Info("throttle.memory")
		return throttle.NewMemoryLimiter(nil), nil
	}

	rdb, err := NewRedisClient(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	a.closers = append(a.closers, closer{name: "redis", close: func(context.Context) error { return rdb.Close() }})

	a.log.Info("throttle.redis")
	return throttle.NewRedisLimiter(rdb, a.cfg.RedisKeyPrefix), nil
}

func (a *App) openPublisher() (audit.Publisher, error) {
	if len(a.cfg.KafkaBrokers) == 0 {
		return audit.NopPublisher{}, nil
	}

	p, err := audit.NewKafkaPublisher(audit.KafkaConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        a.cfg.KafkaTopic,
		WriteTimeout: a.cfg.KafkaWriteTimeout,
	}, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closer{name: "kafka", close: func(context.Context) error { return p.Close() }})
	return p, nil
}

func (a *App) newSender() delivery.Sender {
	fallback := delivery.LogSender{Log: a.log, IncludeCode: a.cfg.DeliveryLogCodes}
	if a.cfg.DeliveryLogCodes {
		a.log.Warn("delivery.log_codes.enabled")
	}

	return delivery.NewWebhookSender(delivery.Config{
		URLs: map[access.Channel]string{
			access.ChannelKakao: a.cfg.DeliveryKakaoURL,
			access.ChannelPass:  a.cfg.DeliveryPassURL,
		},
		BearerToken: a.cfg.DeliveryBearerToken,
		Timeout:     a.cfg.DeliveryTimeout,
	}, &http.Client{}, fallback)
}

// Handler returns the full middleware chain around the route mux.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a)

	var h http.Handler = a.auth.RequireSession(mux)
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, a.log, a.metrics)
	return WithRequestID(h)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.close(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}
	a.close(shutdownCtx)

	a.log.Info("server.stopped")
	return err
}

func (a *App) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			a.log.Error("resource.close.fail", "resource", c.name, "err", err)
		}
	}
	a.closers = nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
