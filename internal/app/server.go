// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"towbook-service/internal/config"
	"towbook-service/internal/db"
	adminHandler "towbook-service/internal/handlers/admin"
	bookingHandler "towbook-service/internal/handlers/booking"
	wsHandler "towbook-service/internal/handlers/websocket"
	"towbook-service/internal/middleware"
	"towbook-service/internal/pkg/jwt"
	"towbook-service/internal/pkg/kafka"
	"towbook-service/internal/pkg/ratelimit"
	"towbook-service/internal/repository/postgres"
	"towbook-service/internal/repository/redisstore"
	adminUsecase "towbook-service/internal/service/admin"
	bookingUsecase "towbook-service/internal/service/booking"
	"towbook-service/internal/service/email"
	notifyUsecase "towbook-service/internal/service/notification"
	"towbook-service/internal/service/payment"
	"towbook-service/internal/service/routing"
	"towbook-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// chargeResultTTL is how long a settled charge outcome is replayed for a
// repeated idempotency key.
const chargeResultTTL = 24 * time.Hour

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	httpServer *http.Server

	mu        sync.Mutex
	pool      *pgxpool.Pool
	redis     redis.UniversalClient
	publisher *kafka.Publisher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) *Server {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:    cfg,
		engine: engine,
		logger: logger,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start connects the backing stores, wires the services and serves HTTP
// until Shutdown is called.
func (s *Server) Start() error {
	ctx := s.ctx

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.PostgresURL)
	if err != nil {
		return err
	}
	s.track(func() { s.pool = pool })
	dbWrapper := postgres.NewDB(pool)
	if err := dbWrapper.Migrate(ctx); err != nil {
		return err
	}
	s.logger.Info("connected to postgres")

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(ctx, db.RedisConfig{
		Addrs:    s.cfg.Redis.Addrs,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
		PoolSize: s.cfg.Redis.PoolSize,
	})
	if err != nil {
		return err
	}
	s.track(func() { s.redis = redisClient })
	s.logger.Info("connected to redis", zap.Strings("addrs", s.cfg.Redis.Addrs))

	// ----- JWT -----
	verifier, err := buildVerifier(s.cfg.JWT)
	if err != nil {
		return err
	}

	// ----- Pricing -----
	pricer, err := s.cfg.PricingEngine()
	if err != nil {
		return err
	}

	// ----- Repositories -----
	bookingRepo := postgres.NewBookingRepository(dbWrapper)
	routeCache := redisstore.NewRouteCache(redisClient, s.cfg.RouteCacheTTL)
	chargeLedger := redisstore.NewChargeLedger(redisClient, chargeResultTTL)
	reconQueue := redisstore.NewReconciliationQueue(redisClient)

	// ----- External services -----
	osrm := routing.NewOSRMClient(s.cfg.OSRMBaseURL, &http.Client{Timeout: s.cfg.DistanceTimeout})
	distance := routing.NewCachedProvider(osrm, routeCache, s.logger)

	stripeGateway := payment.NewStripeGateway(s.cfg.StripeSecretKey, s.cfg.Currency, s.logger)
	gateway := payment.NewGuardedGateway(stripeGateway, chargeLedger, s.cfg.ChargeLockTTL, s.logger)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(verifier, s.logger)

	// ----- Notifications -----
	var events notifyUsecase.EventPublisher
	if len(s.cfg.Kafka.Brokers) > 0 {
		publisher := kafka.NewPublisher(s.cfg.Kafka.Brokers, s.cfg.Kafka.Topic)
		s.track(func() { s.publisher = publisher })
		events = publisher
	} else {
		s.logger.Warn("KAFKA_ADDR not set, booking event stream disabled")
	}

	var mailer notifyUsecase.Mailer
	if s.cfg.SMTP.Host != "" {
		mailer = email.NewEmailSender(
			s.cfg.SMTP.Host,
			s.cfg.SMTP.Port,
			s.cfg.SMTP.User,
			s.cfg.SMTP.Pass,
			s.cfg.SMTP.FromName,
			s.cfg.SMTP.Secure,
		)
	} else {
		s.logger.Warn("SMTP_HOST not set, customer emails disabled")
	}

	notifService := notifyUsecase.NewNotificationService(hub, events, mailer, s.cfg.Currency, s.logger)

	// ----- Services (Usecases) -----
	bookingService := bookingUsecase.NewBookingService(pricer, bookingUsecase.Dependencies{
		Distance:       distance,
		Payments:       gateway,
		Store:          bookingRepo,
		Notifier:       notifService,
		Reconciliation: reconQueue,
		PersistRetry:   s.cfg.PersistRetry(),
		Timeouts: bookingUsecase.Timeouts{
			Distance:     s.cfg.DistanceTimeout,
			Payment:      s.cfg.PaymentTimeout,
			Persistence:  s.cfg.PersistenceTimeout,
			Notification: s.cfg.NotificationTimeout,
		},
	}, s.cfg.MaxPaymentAttempts, s.cfg.DraftIdleTTL, s.logger)

	adminService := adminUsecase.NewAdminService(bookingRepo, reconQueue, notifService, s.logger)

	hub.RegisterHandler(websocket.NewDraftHandler(bookingService))

	// ----- Background workers -----
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer s.wg.Done()
		bookingService.RunJanitor(ctx, s.cfg.JanitorInterval)
	}()

	// ----- Handlers -----
	limiter := ratelimit.NewLimiter(redisClient, "towbook:ratelimit")
	authMiddleware := middleware.NewAuthMiddleware(verifier)

	s.engine.Use(
		middleware.LoggingMiddleware(s.logger),
		middleware.RecoveryMiddleware(s.logger),
		middleware.CORSMiddleware(s.cfg.AllowedOrigins),
	)

	SetupRouter(s.engine, s.logger, &Handlers{
		BookingHandler: bookingHandler.NewBookingHandler(bookingService, bookingRepo),
		AdminHandler:   adminHandler.NewAdminHandler(adminService),
		WSHandler:      wsHandler.NewWebSocketHandler(hub, s.cfg.AllowedOrigins, s.logger),
		AuthMiddleware: authMiddleware,
		DraftLimit:     middleware.RateLimit(limiter, "drafts", s.cfg.DraftRateLimit, s.cfg.DraftRateWindow, s.logger),
		Health: &healthChecker{
			db:       dbWrapper,
			redis:    redisClient,
			bookings: bookingService,
			hub:      hub,
		},
	})

	// ----- Start HTTP -----
	s.logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr), zap.String("env", s.cfg.Env))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains HTTP requests, then stops the workers and closes the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return errors.Join(errs...)
}

// track records a resource for Shutdown to close.
func (s *Server) track(set func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set()
}

func buildVerifier(cfg config.JWTConfig) (*jwt.Verifier, error) {
	switch {
	case cfg.PublicKeyPath != "":
		pub, err := jwt.LoadRSAPublicKeyFromPEM(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load JWT public key: %w", err)
		}
		return jwt.NewVerifier(pub, cfg.Issuer, cfg.Audience), nil
	case cfg.Secret != "":
		return jwt.NewHMACVerifier([]byte(cfg.Secret), cfg.Issuer, cfg.Audience), nil
	}
	return nil, fmt.Errorf("either JWT_PUBLIC_KEY_PATH or JWT_SECRET must be set")
}

type healthChecker struct {
	db       *postgres.DB
	redis    redis.UniversalClient
	bookings *bookingUsecase.BookingService
	hub      *websocket.Hub
}

func (h *healthChecker) Check(ctx context.Context) map[string]string {
	checks := map[string]string{"postgres": "ok", "redis": "ok"}
	if err := h.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
	}
	return checks
}

func (h *healthChecker) Stats() gin.H {
	return gin.H{
		"active_drafts":         h.bookings.ActiveDrafts(),
		"websocket_connections": h.hub.TotalClients(),
	}
}
