package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"MycoCast/internal/domain/models"
	"MycoCast/internal/domain/repository"
	pkgkafka "MycoCast/pkg/kafka"
)

// ClickHouseStorage implements Storage for ClickHouse.
type ClickHouseStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseStorage creates ClickHouse storage.
func NewClickHouseStorage(db *sql.DB, table string) repository.Storage {
	return &ClickHouseStorage{db: db, table: table}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

const telemetryColumns = "ts, region, mandi_price_per_kg, pos_transactions_last_hour, vehicle_delay_minutes, weather_now_temp, weather_now_humidity, logistics_disruption_flag, intraday_baseline_pred, intraday_actual_sales_partial, intraday_event"

func telemetryArgs(t *models.TelemetrySnapshot) []interface{} {
	disruption := uint8(0)
	if t.DisruptionFlag {
		disruption = 1
	}
	return []interface{}{
		t.Timestamp,
		t.Region,
		t.MandiPricePerKg,
		t.POSTransactions,
		t.VehicleDelayMin,
		t.TempC,
		t.Humidity,
		disruption,
		t.BaselinePred,
		t.ActualSalesSoFar,
		t.Event,
	}
}

func (s *ClickHouseStorage) Store(ctx context.Context, t *models.TelemetrySnapshot) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, telemetryColumns)
	_, err := s.db.ExecContext(ctx, q, telemetryArgs(t)...)
	return err
}

func (s *ClickHouseStorage) StoreBatch(ctx context.Context, snaps []*models.TelemetrySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	// Batch insert using VALUES multi-row to reduce round-trips.
	const chunkSize = 2000
	for start := 0; start < len(snaps); start += chunkSize {
		end := start + chunkSize
		if end > len(snaps) {
			end = len(snaps)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*11)
		for _, t := range snaps[start:end] {
			if t == nil || t.Region == "" || t.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, telemetryArgs(t)...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, telemetryColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseStorage) Query(ctx context.Context, region string, from, to time.Time, limit int) ([]*models.TelemetrySnapshot, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE region = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", telemetryColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, region, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*models.TelemetrySnapshot
	for rows.Next() {
		var t models.TelemetrySnapshot
		var disruption uint8
		if err := rows.Scan(
			&t.Timestamp, &t.Region, &t.MandiPricePerKg, &t.POSTransactions,
			&t.VehicleDelayMin, &t.TempC, &t.Humidity,
			&disruption, &t.BaselinePred, &t.ActualSalesSoFar, &t.Event,
		); err != nil {
			return nil, err
		}
		t.DisruptionFlag = disruption != 0
		snaps = append(snaps, &t)
	}
	return snaps, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseStorage) Close() error {
	return nil // Managed by pkg
}

// KafkaPublisher implements Publisher for Kafka.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, t *models.TelemetrySnapshot) error {
	// Keyed by region so per-region ordering survives partitioning.
	return p.producer.Publish(ctx, p.topic, []byte(t.Region), t)
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, snaps []*models.TelemetrySnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(snaps))
	for i, t := range snaps {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(t.Region),
			Value: t,
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
