package submit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"puntoventa/terminal/internal/domain"
)

// KafkaSubmitter publishes pending orders to an intake topic instead of
// calling the order service directly. Writes are synchronous with full acks:
// the sync sweep needs a definitive per-order success or failure, so the
// fire-and-forget producer setup is not an option here.
type KafkaSubmitter struct {
	w *kafka.Writer
}

func NewKafkaSubmitter(brokers []string, topic string) *KafkaSubmitter {
	return &KafkaSubmitter{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (s *KafkaSubmitter) Submit(ctx context.Context, order domain.PendingOrder) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(order.ID),
		Value: payload,
		Time:  time.Now(),
	})
}

func (s *KafkaSubmitter) Close() error {
	return s.w.Close()
}
