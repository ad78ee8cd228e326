package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"RatePulse/internal/domain/models"
	domrepo "RatePulse/internal/domain/repository"
	pkgch "RatePulse/pkg/clickhouse"
	applogger "RatePulse/pkg/logger"
)

// HistorySchema creates the rate history table. Fed to the client's
// InitSchema at startup.
var HistorySchema = []string{
	`CREATE TABLE IF NOT EXISTS ratepulse.rate_history (
        ts          DateTime64(3),
        pair        LowCardinality(String),
        store_id    LowCardinality(String),
        mid         Float64,
        buy         Float64,
        sell        Float64,
        spread      Float64,
        source      LowCardinality(String),
        version     UInt64
    ) ENGINE = MergeTree()
      PARTITION BY toYYYYMM(ts)
      ORDER BY (pair, ts)
      TTL toDateTime(ts) + INTERVAL 90 DAY`,
}

const historyTable = "ratepulse.rate_history"

// CHHistory implements HistorySink backed by ClickHouse.
type CHHistory struct {
	db *sql.DB
	ch *pkgch.Client
	l  *applogger.Logger
}

var _ domrepo.HistorySink = (*CHHistory)(nil)

func NewCHHistory(ch *pkgch.Client) *CHHistory {
	return &CHHistory{db: ch.DB(), ch: ch}
}

// SetLogger injects a structured logger.
func (s *CHHistory) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHHistory) Append(ctx context.Context, r *models.ExchangeRate) error {
	const q = `INSERT INTO ` + historyTable +
		` (ts, pair, store_id, mid, buy, sell, spread, source, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		r.LastUpdated,
		r.Pair,
		r.StoreID,
		r.MidRate,
		r.BuyRate,
		r.SellRate,
		r.Spread,
		string(r.Source),
		r.Version,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse history insert error",
				applogger.String("pair", r.Pair),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("append rate history: %w", err)
	}
	return nil
}

func (s *CHHistory) Query(ctx context.Context, pair string, from, to time.Time, limit int) ([]*models.ExchangeRate, error) {
	start := time.Now()
	const q = `
        SELECT ts, pair, store_id, mid, buy, sell, spread, source, version
        FROM ` + historyTable + `
        WHERE pair = ? AND ts >= ? AND ts <= ?
        ORDER BY ts DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, pair, from, to, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse history query error",
				applogger.String("pair", pair),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("query rate history: %w", err)
	}
	defer rows.Close()

	tmp := make([]*models.ExchangeRate, 0, limit)
	for rows.Next() {
		var r models.ExchangeRate
		var source string
		if err := rows.Scan(&r.LastUpdated, &r.Pair, &r.StoreID, &r.MidRate, &r.BuyRate, &r.SellRate, &r.Spread, &source, &r.Version); err != nil {
			return nil, fmt.Errorf("scan rate history: %w", err)
		}
		r.Source = models.RateSource(source)
		r.Timestamp = r.LastUpdated
		tmp = append(tmp, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Debug("clickhouse history query ok",
			applogger.String("pair", pair),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return tmp, nil
}

func (s *CHHistory) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHHistory) Close() error {
	return nil // connection owned by the client
}
