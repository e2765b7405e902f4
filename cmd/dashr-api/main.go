// README: Entry point; loads config, wires services, starts HTTP server, task worker and dispatch scheduler.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"

	"dashr/internal/config"
	httptransport "dashr/internal/http"
	"dashr/internal/http/middleware"
	"dashr/internal/infra"
	"dashr/internal/jobs"
	"dashr/internal/maps"
	"dashr/internal/metrics"
	"dashr/internal/modules/delivery"
	"dashr/internal/modules/dispatch"
	"dashr/internal/modules/driver"
	"dashr/internal/modules/location"
	"dashr/internal/modules/order"
	"dashr/internal/modules/payment"
	"dashr/internal/modules/pricing"
	"dashr/internal/modules/stats"
	"dashr/internal/modules/venue"
	"dashr/internal/notify"
	"dashr/internal/tasks"
	"dashr/migrations"
)

const limiterSweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("dashr-api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Payment.StripeKey == "" {
		return errors.New("DASHR_PAYMENT_STRIPE_KEY is required")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	if err := infra.ApplyMigrations(ctx, infra.SQLDB(dbPool), migrations.FS); err != nil {
		return err
	}

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	var (
		verifier infra.TokenVerifier
		pusher   notify.Pusher
		tracker  location.Tracker
	)
	if cfg.Auth.FirebaseProjectID != "" {
		app, err := infra.NewFirebaseApp(ctx, cfg.Auth.FirebaseProjectID, cfg.Auth.FirebaseDatabaseURL, cfg.Auth.CredentialsFile)
		if err != nil {
			return err
		}
		if verifier, err = infra.NewFirebaseVerifier(ctx, app); err != nil {
			return err
		}
		if pusher, err = newPusher(ctx, app); err != nil {
			return err
		}
		if cfg.Auth.FirebaseDatabaseURL != "" {
			rtdb, err := infra.NewRealtimeDB(ctx, app)
			if err != nil {
				return err
			}
			tracker = location.NewRTDBTracker(rtdb)
		}
	} else {
		if verifier, err = infra.NewJWTVerifier(cfg.Auth.JWTSecret); err != nil {
			return err
		}
		logger.Warn("firebase disabled; using HS256 tokens and no push notifications")
	}

	var queue tasks.Queue
	if cfg.Queue.Host != "" {
		queue = tasks.NewLmstfyQueue(cfg.Queue)
	} else {
		logger.Warn("queue.host is empty; tasks are kept in memory")
		queue = tasks.NewMemoryQueue(int(cfg.Queue.Tries), time.Duration(cfg.Queue.TTRSeconds)*time.Second, time.Second)
	}
	publisher := tasks.NewPublisher(queue)

	var mailer notify.Mailer
	if cfg.Mail.Host != "" {
		mailer = notify.NewSMTPMailer(cfg.Mail)
	}

	distance, err := maps.NewDistanceService(cfg.Maps.APIKey, logger.Named("maps"))
	if err != nil {
		return err
	}

	m := metrics.New()

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool), cfg.Pricing, cfg.Payment.Currency)
	paymentStore := payment.NewStore(dbPool)
	paymentSvc := payment.NewService(payment.NewStripeGateway(cfg.Payment.StripeKey), paymentStore, logger.Named("payment"))

	locationSvc := location.NewService(location.NewStore(dbPool, redisClient), tracker, logger.Named("location"))
	driverSvc := driver.NewService(driver.NewStore(dbPool), locationSvc, logger.Named("driver"))
	notifier := notify.NewNotifier(pusher, notify.NewRedisPublisher(redisClient), mailer, logger.Named("notify"))

	orderStore := order.NewStore(dbPool)
	deliveryStore := delivery.NewStore(dbPool)

	dispatchSvc := dispatch.NewService(dispatch.Deps{
		Store:    dispatch.NewStore(redisClient),
		Orders:   orderStore,
		Requests: deliveryStore,
		Locator:  locationSvc,
		Drivers:  driverSvc,
		Notifier: notifier,
		Metrics:  m,
		Config:   cfg.Dispatch,
		Log:      logger.Named("dispatch"),
	})

	orderSvc := order.NewService(order.Deps{
		Store:    orderStore,
		Venues:   venue.NewStore(dbPool),
		Pricing:  pricingSvc,
		Distance: distance,
		Payments: paymentSvc,
		Tasks:    publisher,
		Dispatch: dispatchSvc,
		Metrics:  m,
		Log:      logger.Named("order"),
	})
	deliverySvc := delivery.NewService(deliveryStore, orderStore, dispatchSvc, publisher, logger.Named("delivery"))
	statsSvc := stats.NewService(stats.NewStore(dbPool), logger.Named("stats"))

	worker := tasks.NewWorker(queue, tasks.WorkerConfig{
		Threads:     cfg.Queue.Threads,
		TaskTimeout: time.Duration(cfg.Queue.TaskTimeoutMs) * time.Millisecond,
	}, logger.Named("worker"), m)
	jobs.New(jobs.Deps{
		Stats:    statsSvc,
		Refunds:  paymentSvc,
		Notifier: notifier,
		Orders:   orderStore,
		Payments: paymentStore,
		Dispatch: dispatchSvc,
		Log:      logger.Named("jobs"),
	}).Register(worker)

	limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst)
	router := httptransport.NewRouter(httptransport.RouterDeps{
		Orders:     orderSvc,
		Deliveries: deliverySvc,
		Drivers:    driverSvc,
		Locations:  locationSvc,
		Stats:      statsSvc,
		Verifier:   verifier,
		Metrics:    m,
		Limiter:    limiter,
		Log:        logger.Named("http"),
	})

	stopBackground := startBackground(ctx,
		dispatchSvc.RunScheduler,
		worker.Run,
		func(ctx context.Context) { limiter.RunSweeper(ctx, limiterSweepInterval) },
	)

	logger.Info("dashr-api listening", zap.String("addr", cfg.HTTP.Addr))
	err = httptransport.NewServer(cfg.HTTP.Addr, router, logger).Run(ctx)
	// The worker drains pulled jobs against the pools, so they close only after it returns.
	stopBackground()
	logger.Info("background loops stopped")
	return err
}

// startBackground runs each loop in its own goroutine. The returned stop cancels them
// and blocks until every loop has returned.
func startBackground(ctx context.Context, loops ...func(context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, loop := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx)
		}()
	}
	return func() {
		cancel()
		wg.Wait()
	}
}

func newPusher(ctx context.Context, app *firebase.App) (notify.Pusher, error) {
	client, err := infra.NewMessaging(ctx, app)
	if err != nil {
		return nil, err
	}
	return notify.NewFCMPusher(client), nil
}
