// Package history serves persisted market data: TWAP series, trade
// logs, volume summaries, and OHLC chart bars.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openfutarchy/futarchy-data/internal/model"
)

// DefaultTradeLimit applies when a trade query does not set a limit.
const DefaultTradeLimit = 100

// ChartLookbackMin is the minimum chart window. Short ranges are
// widened so sparse markets still render a usable chart.
const ChartLookbackMin = 24 * time.Hour

// Intervals maps the accepted chart interval names to bucket widths.
var Intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// Bar is one OHLC chart bucket.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   string    `json:"open"`
	High   string    `json:"high"`
	Low    string    `json:"low"`
	Close  string    `json:"close"`
	Volume string    `json:"volume"`
}

// MarketVolume is the traded volume of one outcome market.
type MarketVolume struct {
	Market int    `json:"market"`
	Volume string `json:"volume"`
	Trades int64  `json:"trades"`
}

// VolumeSummary totals a proposal's trading activity.
type VolumeSummary struct {
	Proposal string         `json:"proposal"`
	Volume   string         `json:"volume"`
	Trades   int64          `json:"trades"`
	Markets  []MarketVolume `json:"markets"`
}

// Service reads the history store.
type Service struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a history Service.
func NewService(db *pgxpool.Pool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, logger: logger}
}

// TWAPHistory returns TWAP observations for the proposal in [from, to),
// oldest first.
func (s *Service) TWAPHistory(ctx context.Context, proposal string, from, to time.Time) ([]model.TWAPSnapshot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT proposal, market, twap::text, recorded_at
		FROM twap_snapshots
		WHERE proposal = $1 AND recorded_at >= $2 AND recorded_at < $3
		ORDER BY recorded_at`,
		proposal, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query twap history: %w", err)
	}
	defer rows.Close()

	var out []model.TWAPSnapshot
	for rows.Next() {
		var snap model.TWAPSnapshot
		if err := rows.Scan(&snap.Proposal, &snap.Market, &snap.TWAP, &snap.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan twap row: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// TradeHistory returns the proposal's most recent trades in [from, to),
// newest first. limit <= 0 uses DefaultTradeLimit.
func (s *Service) TradeHistory(ctx context.Context, proposal string, from, to time.Time, limit int) ([]model.TradeRecord, error) {
	if limit <= 0 {
		limit = DefaultTradeLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT signature, proposal, market, pool, trader, direction,
		       price::text, amount_in, amount_out, fee, executed_at
		FROM trades
		WHERE proposal = $1 AND executed_at >= $2 AND executed_at < $3
		ORDER BY executed_at DESC
		LIMIT $4`,
		proposal, from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query trade history: %w", err)
	}
	defer rows.Close()

	var out []model.TradeRecord
	for rows.Next() {
		var tr model.TradeRecord
		var amountIn, amountOut, fee int64
		err := rows.Scan(&tr.Signature, &tr.Proposal, &tr.Market, &tr.Pool, &tr.Trader,
			&tr.Direction, &tr.Price, &amountIn, &amountOut, &fee, &tr.ExecutedAt)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		tr.AmountIn = uint64(amountIn)
		tr.AmountOut = uint64(amountOut)
		tr.Fee = uint64(fee)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// TradeVolume totals input-side volume for the proposal in [from, to),
// overall and per outcome market.
func (s *Service) TradeVolume(ctx context.Context, proposal string, from, to time.Time) (VolumeSummary, error) {
	summary := VolumeSummary{Proposal: proposal, Volume: "0"}

	rows, err := s.db.Query(ctx, `
		SELECT market, COALESCE(sum(amount_in), 0)::text, count(*)
		FROM trades
		WHERE proposal = $1 AND executed_at >= $2 AND executed_at < $3
		GROUP BY market
		ORDER BY market`,
		proposal, from, to,
	)
	if err != nil {
		return summary, fmt.Errorf("query trade volume: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var mv MarketVolume
		if err := rows.Scan(&mv.Market, &mv.Volume, &mv.Trades); err != nil {
			return summary, fmt.Errorf("scan volume row: %w", err)
		}
		summary.Markets = append(summary.Markets, mv)
		summary.Trades += mv.Trades
	}
	if err := rows.Err(); err != nil {
		return summary, err
	}

	if err := s.db.QueryRow(ctx, `
		SELECT COALESCE(sum(amount_in), 0)::text
		FROM trades
		WHERE proposal = $1 AND executed_at >= $2 AND executed_at < $3`,
		proposal, from, to,
	).Scan(&summary.Volume); err != nil {
		return summary, fmt.Errorf("query total volume: %w", err)
	}

	return summary, nil
}

// chartWindowStart widens the requested start so the window reaches at
// least ChartLookbackMin before now. Thin markets would otherwise
// return empty charts for short requests.
func chartWindowStart(from, now time.Time) time.Time {
	if floor := now.Add(-ChartLookbackMin); from.After(floor) {
		return floor
	}
	return from
}

// ChartData returns OHLC bars for one outcome market, with the window
// widened by chartWindowStart.
func (s *Service) ChartData(ctx context.Context, proposal string, market int, width time.Duration, from, to time.Time) ([]Bar, error) {
	from = chartWindowStart(from, time.Now())

	rows, err := s.db.Query(ctx, `
		SELECT date_bin($4::interval, executed_at, 'epoch'::timestamptz) AS bucket,
		       (array_agg(price ORDER BY executed_at))[1]::text,
		       max(price)::text,
		       min(price)::text,
		       (array_agg(price ORDER BY executed_at DESC))[1]::text,
		       sum(amount_in)::text
		FROM trades
		WHERE proposal = $1 AND market = $2
		  AND executed_at >= $3 AND executed_at < $5
		GROUP BY bucket
		ORDER BY bucket`,
		proposal, market, from, fmt.Sprintf("%d seconds", int64(width.Seconds())), to,
	)
	if err != nil {
		return nil, fmt.Errorf("query chart data: %w", err)
	}
	defer rows.Close()

	var out []Bar
	for rows.Next() {
		var bar Bar
		if err := rows.Scan(&bar.Time, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("scan chart row: %w", err)
		}
		out = append(out, bar)
	}
	return out, rows.Err()
}
