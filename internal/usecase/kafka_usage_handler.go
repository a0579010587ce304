package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"X402Chat/internal/domain/models"
	domrepo "X402Chat/internal/domain/repository"
	pkgkafka "X402Chat/pkg/kafka"
)

// KafkaUsageHandler consumes usage events from Kafka and writes them to storage.
type KafkaUsageHandler struct {
	topic   string
	storage domrepo.UsageStorage
	metrics domrepo.Metrics
}

func NewKafkaUsageHandler(topic string, storage domrepo.UsageStorage, metrics domrepo.Metrics) *KafkaUsageHandler {
	return &KafkaUsageHandler{topic: topic, storage: storage, metrics: metrics}
}

func (h *KafkaUsageHandler) Topic() string { return h.topic }

// Handle stores one event. Malformed payloads fail every retry and end in the DLQ.
func (h *KafkaUsageHandler) Handle(ctx context.Context, b []byte) error {
	var e models.UsageEvent
	if err := json.Unmarshal(b, &e); err != nil {
		h.metrics.RecordUsage("consumer", err)
		return fmt.Errorf("decode usage event: %w", err)
	}
	if e.ID == "" || e.Wallet == "" {
		err := fmt.Errorf("usage event missing id or wallet")
		h.metrics.RecordUsage("consumer", err)
		return err
	}

	if !e.CreatedAt.IsZero() {
		h.metrics.RecordLatency("usage_e2e", time.Since(e.CreatedAt).Seconds())
	}

	start := time.Now()
	err := h.storage.StoreBatch(ctx, []*models.UsageEvent{&e})
	h.metrics.RecordLatency("usage_insert", time.Since(start).Seconds())
	h.metrics.RecordUsage(BackendClickHouse, err)
	if err != nil {
		return fmt.Errorf("store usage event %s: %w", e.ID, err)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaUsageHandler)(nil)
