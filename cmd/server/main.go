package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-navigation/internal/config"
	"github.com/example/ride-navigation/internal/directions"
	httpapi "github.com/example/ride-navigation/internal/http"
	"github.com/example/ride-navigation/internal/ingest"
	"github.com/example/ride-navigation/internal/logging"
	"github.com/example/ride-navigation/internal/models"
	"github.com/example/ride-navigation/internal/notify"
	"github.com/example/ride-navigation/internal/ride"
	"github.com/example/ride-navigation/internal/route"
	"github.com/example/ride-navigation/internal/storage"
	"github.com/example/ride-navigation/internal/tracking"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	store := buildStore(cfg, logger)
	if cfg.RunMigrations && cfg.PGDSN != "" {
		runMigrations(cfg.PGDSN, logger)
	}

	var snapshots tracking.SnapshotStore
	if cfg.RedisAddr != "" {
		snapshots = tracking.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisSnapshotTTL)
	} else {
		snapshots = tracking.NewMemoryStore()
	}
	hub := tracking.NewHub(snapshots, logger)
	notifier := notify.NewRouter(logger)

	var producer *ingest.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	dirClient, geocoder, err := buildDirections(cfg)
	if err != nil {
		logger.Error("directions setup failed", "error", err)
		os.Exit(1)
	}

	sink := &lifecycleSink{
		hub:      hub,
		notifier: notifier,
		store:    store,
		producer: producer,
		logger:   logger,
	}
	rides := ride.NewManager(logger, sink)

	srv := httpapi.NewServer(httpapi.Options{
		Logger:     logger,
		Store:      store,
		Rides:      rides,
		Hub:        hub,
		Notifier:   notifier,
		Directions: directions.NewCache(dirClient, cfg.RouteCacheTTL),
		Geocoder:   geocoder,
		Matcher:    route.NewMatcher(cfg.RouteThresholdMeters),
		Producer:   producer,
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-navigation listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func buildStore(cfg config.ServerConfig, logger *slog.Logger) storage.BookingStore {
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err == nil {
			return ps
		}
		logger.Warn("postgres unavailable, falling back to memory store", "error", err)
	}
	return storage.NewMemoryStore()
}

func buildDirections(cfg config.ServerConfig) (directions.Client, directions.Geocoder, error) {
	switch cfg.DirectionsProvider {
	case "google":
		g, err := directions.NewGoogleClient(cfg.GoogleMapsAPIKey)
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	default:
		// osrm serves routes only; addresses stay blank without google
		return directions.NewOSRMClient(cfg.OSRMEndpoint), nil, nil
	}
}

func runMigrations(dsn string, logger *slog.Logger) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		logger.Warn("migration db open error", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_bookings.sql"))
	if err != nil {
		logger.Warn("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Warn("migration exec error", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_create_bookings.sql")
}

// lifecycleSink reacts to ride session events: timers go to the live room,
// terminal states close the room, update the booking, and notify the
// parties.
type lifecycleSink struct {
	hub      *tracking.Hub
	notifier *notify.Router
	store    storage.BookingStore
	producer *ingest.Producer
	logger   *slog.Logger
}

func (l *lifecycleSink) SessionEvent(ev ride.Event) {
	ctx := context.Background()
	switch ev.Kind {
	case ride.EventTimerUpdated:
		err := l.hub.PublishTimer(ctx, models.TimerUpdate{
			BookingID:      ev.BookingID,
			StockID:        ev.StockID,
			Kind:           models.TimerKind(ev.TimerKind),
			ElapsedSeconds: ev.Elapsed,
		})
		if err != nil && !errors.Is(err, tracking.ErrRoomClosed) {
			l.logger.Warn("timer broadcast failed", "booking_id", ev.BookingID, "error", err)
		}
	case ride.EventRideCompleted:
		l.hub.CloseRoom(ctx, ev.BookingID)
		if err := l.store.UpdateStatus(ctx, ev.BookingID, models.BookingCompleted); err != nil {
			l.logger.Warn("status update failed", "booking_id", ev.BookingID, "error", err)
		}
		l.publish(ctx, ev.BookingID, models.EventRideCompleted)
	case ride.EventRideCancelled:
		l.hub.CloseRoom(ctx, ev.BookingID)
		l.publish(ctx, ev.BookingID, models.EventBookingCancelled)
	}
}

func (l *lifecycleSink) publish(ctx context.Context, bookingID string, evType models.EventType) {
	booking, err := l.store.GetBooking(ctx, bookingID)
	if err != nil {
		l.logger.Warn("booking lookup failed for notification", "booking_id", bookingID, "error", err)
		return
	}
	ev := models.Event{
		Type:      evType,
		BookingID: bookingID,
		Targets: map[models.Role]string{
			models.RoleOwner:    booking.OwnerID,
			models.RoleDriver:   booking.DriverID,
			models.RoleCustomer: booking.CustomerID,
		},
	}
	l.notifier.Publish(ev)
	if l.producer != nil {
		if err := l.producer.PublishEvent(ev); err != nil {
			l.logger.Warn("kafka publish failed", "booking_id", bookingID, "error", err)
		}
	}
}
