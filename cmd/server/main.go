package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/showtime-booking/internal/config"
	"github.com/iliyamo/showtime-booking/internal/database"
	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/logger"
	"github.com/iliyamo/showtime-booking/internal/middleware"
	"github.com/iliyamo/showtime-booking/internal/queue"
	"github.com/iliyamo/showtime-booking/internal/repository"
	"github.com/iliyamo/showtime-booking/internal/router"
	"github.com/iliyamo/showtime-booking/internal/service"
	"github.com/iliyamo/showtime-booking/internal/worker"
)

// store is what both the services and the sweeper need from a reservation
// store.
type store interface {
	service.BookingStore
	worker.ExpiryStore
}

func main() {
	_ = godotenv.Load() // .env is optional

	cfg := config.Load()
	bookingCfg := config.LoadBookingConfig()
	brokerCfg := config.LoadBrokerConfig()

	log := logger.Init(cfg.LogLevel, cfg.Development())
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bookings, catalog, db := openStores(ctx, cfg, log)
	if db != nil {
		defer db.Close()
	}

	var events queue.Publisher = queue.NopPublisher{}
	if brokerCfg.Enabled {
		pub := queue.NewAMQPPublisher(brokerCfg.URL, log,
			queue.WithDialTimeout(brokerCfg.DialTimeout),
			queue.WithRedialBackoff(brokerCfg.RedialBackoff),
		)
		defer pub.Close()
		events = pub
		log.Info("booking events enabled", zap.String("queue", queue.BookingQueue))
	}
	if brokerCfg.Audit {
		go func() {
			_ = queue.NewAuditConsumer(brokerCfg.URL, log).Run(ctx)
		}()
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithPublisher(events),
		service.WithRetry(bookingCfg.Retry()),
	}
	bookingSvc := service.NewBookingService(bookings, catalog, opts...)
	paymentSvc := service.NewPaymentService(bookings, bookingCfg.GatewayURL, opts...)
	showtimeSvc := service.NewShowtimeService(catalog, opts...)

	sweeper := worker.NewSweeper(bookings, bookingCfg.Sweeper(),
		worker.WithPublisher(events), worker.WithLogger(log)).Periodic()
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal("start expiry sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	rdb := config.NewRedisClient(config.LoadRedisConfig(), log)
	if rdb != nil {
		defer rdb.Close()
	}
	limit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover(), middleware.RequestID(), middleware.AccessLog(log))

	ready := map[string]handler.Pinger{}
	if db != nil {
		ready["mysql"] = db
	}
	if rdb != nil {
		ready["redis"] = redisPinger{rdb}
	}
	router.RegisterRoutes(e, handler.Ready(ready))
	router.RegisterBookings(e, handler.NewBookingHandler(bookingSvc, cfg.RequestTimeout), cfg.JWTSecret, limit)
	router.RegisterPayments(e, handler.NewPaymentHandler(paymentSvc, bookingSvc, cfg.RequestTimeout), cfg.JWTSecret, limit)
	router.RegisterShowtimes(e, handler.NewShowtimeHandler(showtimeSvc, cfg.RequestTimeout), cfg.JWTSecret)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
}

// openStores returns the reservation store and catalog for the configured
// driver.  db is nil for the memory driver.
func openStores(ctx context.Context, cfg config.Config, log *logger.Logger) (store, service.CatalogStore, *sql.DB) {
	if cfg.StoreDriver == config.StoreMemory {
		cat := repository.NewMemoryCatalogRepo()
		seedDemoCatalog(cat)
		log.Warn("using in-memory store; data is lost on exit")
		return repository.NewMemoryBookingRepo(cat), cat, nil
	}

	db, err := database.OpenWithOptions(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, database.Options{
		MaxOpenConns: cfg.DBMaxOpen,
		MaxIdleConns: cfg.DBMaxIdle,
	})
	if err != nil {
		log.Fatal("open mysql", zap.Error(err))
	}
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := database.Migrate(migrateCtx, db); err != nil {
		log.Fatal("migrate schema", zap.Error(err))
	}
	return repository.NewBookingRepo(db), repository.NewCatalogRepo(db), db
}

type redisPinger struct{ *redis.Client }

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}
