// Package app wires the stores, coordinators and HTTP handlers into one
// router.
package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"agrirent/internal/config"
	"agrirent/internal/lock"
	"agrirent/internal/middleware"
	"agrirent/internal/modules/booking"
	"agrirent/internal/modules/groupbooking"
	"agrirent/internal/modules/notification"
	"agrirent/internal/modules/payment"
	jwtsvc "agrirent/internal/pkg/jwt"
	"agrirent/internal/repository"
)

type Options struct {
	Config *config.Config
	DB     *gorm.DB
	Log    logrus.FieldLogger
	// Redis, when set, backs the equipment locks and the rate limit counters.
	Redis *redis.Client
	// Gate defaults to Razorpay.
	Gate     payment.Gate
	NewRelic *newrelic.Application
}

type App struct {
	Router     *gin.Engine
	Store      *repository.Store
	Dispatcher *notification.Dispatcher
	Hub        *notification.Hub
	Tokens     *jwtsvc.Service
}

func New(opts Options) (*App, error) {
	cfg, log := opts.Config, opts.Log

	var locker lock.Locker = lock.NewKeyedMutex()
	if opts.Redis != nil {
		locker = lock.NewRedisLocker(opts.Redis, lock.WithTTL(cfg.Redis.LockTTL))
	}

	store := repository.NewStore(opts.DB)
	guard := lock.NewGuard(store, locker, cfg.Server.LockTimeout)

	hub := notification.NewHub()
	dispatcher := notification.NewDispatcher(store.Outbox,
		[]notification.Sink{notification.NewInboxSink(store.Notifications), hub},
		log,
		notification.DispatcherConfig{
			Schedule:    cfg.Notification.DispatchSpec,
			BatchSize:   cfg.Notification.BatchSize,
			MaxAttempts: cfg.Notification.MaxAttempts,
		})
	guard.OnCommit(dispatcher.Signal)

	gate := opts.Gate
	if gate == nil {
		gate = payment.NewRazorpayGate(cfg.Payment)
	}

	tokens := jwtsvc.New(cfg.JWT.Secret, 24*time.Hour)
	bookingService := booking.NewService(store, guard, log)
	coordinator := groupbooking.NewCoordinator(store, guard, log)
	paymentService := payment.NewService(store, guard, gate, bookingService, coordinator, cfg.Payment.WebhookSecret, log)

	joinLimit, err := middleware.RateLimit("group_join", cfg.RateLimit.Join, opts.Redis)
	if err != nil {
		return nil, err
	}
	webhookLimit, err := middleware.RateLimit("payment_webhook", cfg.RateLimit.Webhook, opts.Redis)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	if opts.NewRelic != nil {
		r.Use(nrgin.Middleware(opts.NewRelic))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	bookingHandler := booking.NewHandler(bookingService, log)
	groupHandler := groupbooking.NewHandler(coordinator, log)
	paymentHandler := payment.NewHandler(paymentService, log)
	notificationHandler := notification.NewHandler(notification.NewService(store.Notifications), hub, tokens, log)

	v1 := r.Group("/api/v1")
	{
		bookingHandler.RegisterPublicRoutes(v1)
		paymentHandler.RegisterPublicRoutes(v1, webhookLimit)
		notificationHandler.RegisterWebSocket(v1)

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(tokens))
		{
			bookingHandler.RegisterRoutes(protected)
			groupHandler.RegisterRoutes(protected, joinLimit)
			paymentHandler.RegisterProtectedRoutes(protected)
			notificationHandler.RegisterRoutes(protected)

			admin := protected.Group("/admin")
			admin.Use(middleware.AdminOnly())
			notificationHandler.RegisterAdminRoutes(admin, dispatcher)
		}
	}

	return &App{
		Router:     r,
		Store:      store,
		Dispatcher: dispatcher,
		Hub:        hub,
		Tokens:     tokens,
	}, nil
}
