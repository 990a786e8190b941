package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ride-navigation/internal/models"
)

// Producer publishes ride lifecycle events and location pings to the
// ride-events topic, keyed by booking id so per-booking order is preserved
// within a partition.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &Producer{writer: w}
}

func (p *Producer) PublishPing(ping models.LocationPing) error {
	ev := models.Event{
		Type:      models.EventLocationPing,
		BookingID: ping.BookingID,
		Payload:   ping,
		CreatedAt: time.Now(),
	}
	return p.publish(ev)
}

func (p *Producer) PublishEvent(ev models.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	return p.publish(ev)
}

func (p *Producer) publish(ev models.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.BookingID), Value: b})
}

func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
