package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/ride-navigation/internal/config"
	"github.com/example/ride-navigation/internal/logging"
	"github.com/example/ride-navigation/internal/models"
	"github.com/example/ride-navigation/internal/tracking"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total ride events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total undecodable messages received",
	})
	msgsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_skipped_total",
		Help: "Total events of types this consumer does not project",
	})
	snapshotWrites = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_snapshot_writes_total",
		Help: "Total successful snapshot writes",
	})
	snapshotErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_snapshot_errors_total",
		Help: "Total snapshot write failures after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, msgsSkipped, snapshotWrites, snapshotErrors)
}

// wireEvent mirrors models.Event but defers payload decoding until the
// event type is known.
type wireEvent struct {
	Type      models.EventType `json:"type"`
	BookingID string           `json:"booking_id"`
	Payload   json.RawMessage  `json:"payload"`
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		os.Stderr.WriteString("config load failed: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	snapshots := tracking.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisSnapshotTTL)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var ev wireEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "error", err)
			continue
		}

		if err := project(ctx, snapshots, ev, cfg.RetryAttempts, cfg.RetryDelay); err != nil {
			snapshotErrors.Inc()
			logger.Warn("snapshot write failed", "booking_id", ev.BookingID, "type", ev.Type, "error", err)
			continue
		}
	}
}

// project applies one event to the snapshot store. Only location pings and
// timer updates carry trackable state; everything else is skipped.
func project(ctx context.Context, store tracking.SnapshotStore, ev wireEvent, attempts int, delay time.Duration) error {
	switch ev.Type {
	case models.EventLocationPing:
		var ping models.LocationPing
		if err := json.Unmarshal(ev.Payload, &ping); err != nil {
			msgsInvalid.Inc()
			return nil
		}
		if ping.BookingID == "" {
			ping.BookingID = ev.BookingID
		}
		return withRetry(attempts, delay, func() error {
			if err := store.PutPing(ctx, ping); err != nil {
				return err
			}
			snapshotWrites.Inc()
			return nil
		})
	case models.EventTimerUpdate:
		var tu models.TimerUpdate
		if err := json.Unmarshal(ev.Payload, &tu); err != nil {
			msgsInvalid.Inc()
			return nil
		}
		if tu.BookingID == "" {
			tu.BookingID = ev.BookingID
		}
		return withRetry(attempts, delay, func() error {
			if err := store.PutTimer(ctx, tu); err != nil {
				return err
			}
			snapshotWrites.Inc()
			return nil
		})
	case models.EventRideCompleted, models.EventBookingCancelled:
		return withRetry(attempts, delay, func() error {
			return store.Clear(ctx, ev.BookingID)
		})
	default:
		msgsSkipped.Inc()
		return nil
	}
}

// withRetry runs fn up to attempts times with doubling delay between tries.
func withRetry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return err
}
