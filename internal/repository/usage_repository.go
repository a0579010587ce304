package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"X402Chat/internal/domain/models"
	"X402Chat/internal/domain/repository"
	pkgkafka "X402Chat/pkg/kafka"

	"github.com/shopspring/decimal"
)

const usageColumns = "id, wallet, signature, intent, tier, cost, currency, created_at"

// UsageSchema returns the idempotent DDL for the usage ledger.
func UsageSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.chat_usage (
	id String,
	wallet String,
	signature String,
	intent LowCardinality(String),
	tier LowCardinality(String),
	cost Decimal(18, 6),
	currency LowCardinality(String),
	created_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree
ORDER BY (wallet, created_at, id)`, database),
	}
}

// ClickHouseUsageStorage implements UsageStorage for ClickHouse.
type ClickHouseUsageStorage struct {
	db       *sql.DB
	database string
	table    string
}

// NewClickHouseUsageStorage writes to <database>.chat_usage.
func NewClickHouseUsageStorage(db *sql.DB, database string) repository.UsageStorage {
	return &ClickHouseUsageStorage{db: db, database: database, table: database + ".chat_usage"}
}

func (s *ClickHouseUsageStorage) Init(ctx context.Context) error {
	for _, stmt := range UsageSchema(s.database) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("usage schema: %w", err)
		}
	}
	return nil
}

// StoreBatch inserts events as multi-row VALUES, chunked to bound statement size.
// Replayed events keep their id, so ReplacingMergeTree collapses duplicates.
func (s *ClickHouseUsageStorage) StoreBatch(ctx context.Context, events []*models.UsageEvent) error {
	const chunkSize = 1000
	for start := 0; start < len(events); start += chunkSize {
		end := start + chunkSize
		if end > len(events) {
			end = len(events)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, e := range events[start:end] {
			if e == nil || e.ID == "" {
				continue
			}
			cost, err := decimal.NewFromString(e.Cost)
			if err != nil {
				return fmt.Errorf("usage %s cost %q: %w", e.ID, e.Cost, err)
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				e.ID,
				e.Wallet,
				e.Signature,
				string(e.Intent),
				string(e.Tier),
				cost,
				e.Currency,
				e.CreatedAt.UTC(),
			)
		}
		if len(values) == 0 {
			continue
		}

		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, usageColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert usage: %w", err)
		}
	}
	return nil
}

// CountByWallet counts paid messages for wallet since the given time.
func (s *ClickHouseUsageStorage) CountByWallet(ctx context.Context, wallet string, since time.Time) (int64, error) {
	q := fmt.Sprintf("SELECT count() FROM %s FINAL WHERE wallet = ? AND created_at >= ?", s.table)
	var n uint64
	if err := s.db.QueryRowContext(ctx, q, wallet, since.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return int64(n), nil
}

func (s *ClickHouseUsageStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseUsageStorage) Close() error {
	return nil // the pool belongs to pkg/clickhouse.Client
}

// BatchPublisher is the part of the Kafka producer KafkaUsagePublisher needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

var _ BatchPublisher = (*pkgkafka.Producer)(nil)

// KafkaUsagePublisher implements UsagePublisher for Kafka, keyed by wallet.
type KafkaUsagePublisher struct {
	producer BatchPublisher
	topic    string
}

func NewKafkaUsagePublisher(producer BatchPublisher, topic string) repository.UsagePublisher {
	return &KafkaUsagePublisher{producer: producer, topic: topic}
}

func (p *KafkaUsagePublisher) Publish(ctx context.Context, e *models.UsageEvent) error {
	return p.PublishBatch(ctx, []*models.UsageEvent{e})
}

func (p *KafkaUsagePublisher) PublishBatch(ctx context.Context, events []*models.UsageEvent) error {
	msgs := make([]pkgkafka.Message, 0, len(events))
	for _, e := range events {
		if e == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(e.Wallet), Value: e})
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaUsagePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
