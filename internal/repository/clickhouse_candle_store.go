package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"KeyZones/internal/domain/models"
	domrepo "KeyZones/internal/domain/repository"
	pkgch "KeyZones/pkg/clickhouse"
	applogger "KeyZones/pkg/logger"
)

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

// CHCandleStore reads OHLCV rows from a single ClickHouse table keyed by
// symbol and timeframe.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, table string) *CHCandleStore {
	return &CHCandleStore{db: ch.DB(), table: qualifiedTable(ch.Database(), table), l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

// Symbol maps a catalog asset to the quote symbol stored in the table.
func Symbol(a models.Asset) string { return a.Name() + "USDT" }

// GetCandles returns candles ordered by open time. Zero from/to leave that
// side of the range open.
func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf models.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	q, args := candleQuery(s.table, symbol, from, to, tf)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse get_candles query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol),
			applogger.String("tf", tf.Label()),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.l.Error("clickhouse get_candles scan error",
				applogger.String("table", s.table),
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	s.l.Info("clickhouse get_candles ok",
		applogger.String("table", s.table),
		applogger.String("symbol", symbol),
		applogger.String("tf", tf.Label()),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func candleQuery(table, symbol string, from, to time.Time, tf models.Timeframe) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT open_time, close_time, symbol, open, high, low, close, volume
        FROM %s
        WHERE symbol = ? AND timeframe = ?`, table)
	args := []any{symbol, tf.Label()}
	if !from.IsZero() {
		b.WriteString(" AND open_time >= ?")
		args = append(args, from)
	}
	if !to.IsZero() {
		b.WriteString(" AND open_time <= ?")
		args = append(args, to)
	}
	b.WriteString(" ORDER BY open_time ASC")
	return b.String(), args
}

func qualifiedTable(database, table string) string {
	if database == "" || strings.Contains(table, ".") {
		return table
	}
	return database + "." + table
}
