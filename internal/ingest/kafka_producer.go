package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/bike-rental/internal/models"
	"github.com/segmentio/kafka-go"
)

// KafkaProducer publishes attempt records to the archive stream, keyed by
// client so one client's attempts stay ordered within a partition.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaProducer{writer: w}
}

func (k *KafkaProducer) PublishAttempt(rec models.AttemptRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(rec)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(rec.ClientID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
