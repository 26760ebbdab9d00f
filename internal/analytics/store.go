package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/kagemask/kagemask/internal/config"
)

// highRiskThreshold is the score at or above which an event counts as
// high risk in aggregates.
const highRiskThreshold = 0.8

const schema = `
CREATE TABLE IF NOT EXISTS risk_events (
	id               BIGSERIAL PRIMARY KEY,
	fingerprint      TEXT NOT NULL,
	risk_score       DOUBLE PRECISION NOT NULL,
	entity_count     INTEGER NOT NULL,
	person_count     INTEGER NOT NULL,
	regex_type_count INTEGER NOT NULL,
	regex_types      TEXT NOT NULL DEFAULT '',
	duration_ms      DOUBLE PRECISION NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_risk_events_created_at ON risk_events (created_at);
CREATE INDEX IF NOT EXISTS idx_risk_events_fingerprint ON risk_events (fingerprint);
`

// Store persists risk events in PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewStore connects to the database, verifies the connection, and ensures
// the risk_events schema exists.
func NewStore(cfg config.AnalyticsConfig, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Analytics store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return store, nil
}

func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("schema setup failed: %w", err)
	}
	return nil
}

// Insert persists a single risk event and fills in its assigned ID.
func (s *Store) Insert(ctx context.Context, ev *RiskEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO risk_events (fingerprint, risk_score, entity_count, person_count, regex_type_count, regex_types, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		ev.Fingerprint,
		ev.RiskScore,
		ev.EntityCount,
		ev.PersonCount,
		ev.RegexTypeCount,
		ev.RegexTypes,
		ev.DurationMS,
		ev.CreatedAt,
	).Scan(&ev.ID)

	if err != nil {
		s.logger.Error("Failed to insert risk event",
			zap.Error(err),
			zap.String("fingerprint", ev.Fingerprint))
		return fmt.Errorf("failed to insert risk event: %w", err)
	}
	return nil
}

// BatchInsert persists multiple risk events in one statement.
func (s *Store) BatchInsert(ctx context.Context, events []*RiskEvent) (*BatchInsertResult, error) {
	if len(events) == 0 {
		return &BatchInsertResult{}, nil
	}

	start := time.Now()
	result := &BatchInsertResult{}

	query, args := batchInsertQuery(events)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		result.Failed = int64(len(events))
		s.logger.Error("Batch insert failed", zap.Error(err))
		return result, fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		s.logger.Warn("Could not get rows affected", zap.Error(err))
		inserted = int64(len(events))
	}

	result.Inserted = inserted
	result.Failed = int64(len(events)) - inserted
	result.Duration = time.Since(start)

	s.logger.Debug("Batch insert completed",
		zap.Int64("inserted", result.Inserted),
		zap.Int64("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// batchInsertQuery builds the multi-row insert statement and its
// positional arguments.
func batchInsertQuery(events []*RiskEvent) (string, []interface{}) {
	const cols = 8

	valueStrings := make([]string, 0, len(events))
	valueArgs := make([]interface{}, 0, len(events)*cols)

	for i, ev := range events {
		createdAt := ev.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		base := i * cols
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		valueArgs = append(valueArgs,
			ev.Fingerprint,
			ev.RiskScore,
			ev.EntityCount,
			ev.PersonCount,
			ev.RegexTypeCount,
			ev.RegexTypes,
			ev.DurationMS,
			createdAt,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO risk_events (fingerprint, risk_score, entity_count, person_count, regex_type_count, regex_types, duration_ms, created_at)
		VALUES %s`,
		strings.Join(valueStrings, ","))

	return query, valueArgs
}

// Summary aggregates the whole table.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	query := `
		SELECT
			COUNT(*) as total_events,
			COUNT(DISTINCT fingerprint) as unique_inputs,
			COALESCE(AVG(risk_score), 0) as avg_risk_score,
			COALESCE(MAX(risk_score), 0) as max_risk_score,
			COUNT(CASE WHEN risk_score >= $1 THEN 1 END) as high_risk_count
		FROM risk_events`

	var summary Summary
	if err := s.db.GetContext(ctx, &summary, query, highRiskThreshold); err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &summary, nil
}

// DailyAggregates returns per-day activity for the last n days, newest
// first.
func (s *Store) DailyAggregates(ctx context.Context, days int) ([]DailyAggregate, error) {
	query := `
		SELECT
			date_trunc('day', created_at) as day,
			COUNT(*) as event_count,
			COALESCE(AVG(risk_score), 0) as avg_risk_score,
			COUNT(CASE WHEN risk_score >= $1 THEN 1 END) as high_risk_count
		FROM risk_events
		WHERE created_at >= now() - ($2 * interval '1 day')
		GROUP BY day
		ORDER BY day DESC`

	var aggregates []DailyAggregate
	if err := s.db.SelectContext(ctx, &aggregates, query, highRiskThreshold, days); err != nil {
		return nil, fmt.Errorf("failed to get daily aggregates: %w", err)
	}
	return aggregates, nil
}

// FetchPage returns up to limit events with IDs greater than afterID,
// ordered by ID. Used for keyset pagination during export.
func (s *Store) FetchPage(ctx context.Context, afterID int64, limit int) ([]RiskEvent, error) {
	query := `
		SELECT id, fingerprint, risk_score, entity_count, person_count, regex_type_count, regex_types, duration_ms, created_at
		FROM risk_events
		WHERE id > $1
		ORDER BY id
		LIMIT $2`

	var events []RiskEvent
	if err := s.db.SelectContext(ctx, &events, query, afterID, limit); err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	return events, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL hides the password in a database URL for logging.
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
