// Package db persists detection outcomes to PostgreSQL and serves the
// long-horizon time-series reputation stats back to the engine. The engine
// is fully functional without it — construction failures downgrade to
// in-memory-only operation.
package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/scottgal/stylobot/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore owns the connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the pgx pool and verifies connectivity.
func Connect(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	log.Info().Msg("connected to PostgreSQL detection store")
	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema applies the embedded schema. Idempotent.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("schema init failed: %w", err)
	}
	return nil
}

// SaveDetection persists one finished analysis.
func (s *PostgresStore) SaveDetection(ctx context.Context, signature string, ev *models.AggregatedEvidence) error {
	ledger, err := json.Marshal(ev.Ledger)
	if err != nil {
		return fmt.Errorf("marshaling ledger: %w", err)
	}

	const insertSQL = `
		INSERT INTO detections
			(request_id, signature, analyzed_at, bot_probability, confidence,
			 risk_band, bot_type, bot_name, threat_score, intent, ledger)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err = s.pool.Exec(ctx, insertSQL,
		ev.RequestID, signature, ev.AnalyzedAt,
		ev.BotProbability, ev.Confidence, string(ev.RiskBand),
		string(ev.PrimaryBotType), ev.PrimaryBotName,
		ev.ThreatScore, string(ev.IntentCategory), ledger)
	if err != nil {
		return fmt.Errorf("inserting detection: %w", err)
	}
	return nil
}

// GetReputation implements the time-series reputation contract over the
// detection history.
func (s *PostgresStore) GetReputation(ctx context.Context, signature string) (*models.TimeSeriesStats, error) {
	const statsSQL = `
		SELECT
			COUNT(*),
			COALESCE(AVG(bot_probability), 0),
			COALESCE(AVG((bot_probability >= 0.75)::int), 0),
			COUNT(*) FILTER (WHERE analyzed_at > now() - interval '1 hour'),
			COALESCE(EXTRACT(day FROM now() - MIN(analyzed_at))::int, 0)
		FROM detections
		WHERE signature = $1;
	`
	stats := &models.TimeSeriesStats{Signature: signature}
	var lastHour int64
	err := s.pool.QueryRow(ctx, statsSQL, signature).Scan(
		&stats.HitCount, &stats.AvgBotProbability, &stats.BotRatio, &lastHour, &stats.DaysActive)
	if err != nil {
		return nil, fmt.Errorf("querying reputation stats: %w", err)
	}
	stats.LastHourVelocity = float64(lastHour)
	return stats, nil
}
