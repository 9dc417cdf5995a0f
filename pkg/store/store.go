// Package store persists candles, ticks, volume profiles, order-flow
// rows, market-state rows, trades, and equity curve points in SQLite,
// with upsert semantics matching each entity's key per its invariants.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"auctioncore/pkg/market"
)

// Store wraps a SQLite connection carrying this system's schema.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path and runs migrations.
// WAL mode and a busy timeout are set via the connection DSN so every
// connection in the pool inherits them.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping store: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	logger.Info("store opened", "path", path)
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	var version int
	s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS symbols (
				id   INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE
			);

			CREATE TABLE IF NOT EXISTS candles (
				time   TEXT NOT NULL,
				symbol TEXT NOT NULL,
				open   REAL NOT NULL,
				high   REAL NOT NULL,
				low    REAL NOT NULL,
				close  REAL NOT NULL,
				volume REAL NOT NULL,
				PRIMARY KEY (time, symbol)
			);

			CREATE TABLE IF NOT EXISTS ticks (
				time   TEXT NOT NULL,
				symbol TEXT NOT NULL,
				price  REAL NOT NULL,
				size   REAL NOT NULL,
				venue  TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (time, symbol, price)
			);

			CREATE TABLE IF NOT EXISTS volume_profile_rows (
				bucket      TEXT NOT NULL,
				symbol      TEXT NOT NULL,
				price_level REAL NOT NULL,
				total_vol   REAL NOT NULL,
				buy_vol     REAL NOT NULL,
				sell_vol    REAL NOT NULL,
				trade_count INTEGER NOT NULL,
				PRIMARY KEY (bucket, symbol, price_level)
			);

			CREATE TABLE IF NOT EXISTS profile_metrics (
				bucket       TEXT NOT NULL,
				symbol       TEXT NOT NULL,
				poc          REAL NOT NULL,
				vah          REAL NOT NULL,
				val          REAL NOT NULL,
				total_volume REAL NOT NULL,
				lvns         TEXT NOT NULL DEFAULT '[]',
				hvns         TEXT NOT NULL DEFAULT '[]',
				PRIMARY KEY (bucket, symbol)
			);

			CREATE TABLE IF NOT EXISTS order_flow_rows (
				bucket           TEXT NOT NULL,
				symbol           TEXT NOT NULL,
				delta            REAL NOT NULL,
				cumulative_delta REAL NOT NULL,
				aggressive_buys  REAL NOT NULL,
				aggressive_sells REAL NOT NULL,
				buy_pressure     REAL NOT NULL,
				sell_pressure    REAL NOT NULL,
				PRIMARY KEY (bucket, symbol)
			);
			CREATE INDEX IF NOT EXISTS idx_order_flow_symbol_bucket ON order_flow_rows(symbol, bucket);

			CREATE TABLE IF NOT EXISTS market_state_rows (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				time         TEXT NOT NULL,
				symbol       TEXT NOT NULL,
				state        TEXT NOT NULL,
				confidence   REAL NOT NULL,
				balance_high REAL NOT NULL,
				balance_low  REAL NOT NULL,
				poc          REAL NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_market_state_symbol_time ON market_state_rows(symbol, time);

			CREATE TABLE IF NOT EXISTS trades (
				id             INTEGER PRIMARY KEY AUTOINCREMENT,
				symbol         TEXT NOT NULL,
				entry_time     TEXT NOT NULL,
				entry_price    REAL NOT NULL,
				qty            INTEGER NOT NULL,
				side           TEXT NOT NULL,
				exit_time      TEXT NOT NULL,
				exit_price     REAL NOT NULL,
				exit_reason    TEXT NOT NULL,
				pnl            REAL NOT NULL,
				pnl_pct        REAL NOT NULL,
				bars_held      INTEGER NOT NULL,
				mae            REAL NOT NULL,
				mfe            REAL NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

			CREATE TABLE IF NOT EXISTS equity_curve (
				run_id TEXT NOT NULL,
				time   TEXT NOT NULL,
				equity REAL NOT NULL,
				PRIMARY KEY (run_id, time)
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		s.logger.Info("applied migration v1")
	}

	if version < 2 {
		_, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS binary_markets (
				market_id    TEXT PRIMARY KEY,
				yes_token_id TEXT NOT NULL,
				no_token_id  TEXT NOT NULL,
				question     TEXT NOT NULL,
				category     TEXT NOT NULL DEFAULT '',
				end_date     TEXT NOT NULL,
				status       TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS binary_prices (
				timestamp            TEXT NOT NULL,
				symbol               TEXT NOT NULL,
				yes_bid              REAL NOT NULL,
				yes_ask              REAL NOT NULL,
				yes_mid              REAL NOT NULL,
				no_bid               REAL NOT NULL,
				no_ask               REAL NOT NULL,
				no_mid               REAL NOT NULL,
				spread               REAL NOT NULL,
				arbitrage_flag       INTEGER NOT NULL,
				estimated_profit_pct REAL NOT NULL,
				PRIMARY KEY (timestamp, symbol)
			);

			CREATE TABLE IF NOT EXISTS binary_positions (
				symbol       TEXT PRIMARY KEY,
				market_id    TEXT NOT NULL,
				yes_qty      REAL NOT NULL,
				no_qty       REAL NOT NULL,
				yes_entry    REAL NOT NULL,
				no_entry     REAL NOT NULL,
				entry_spread REAL NOT NULL,
				status       TEXT NOT NULL,
				opened_at    TEXT NOT NULL
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (2);
		`)
		if err != nil {
			return fmt.Errorf("migration v2: %w", err)
		}
		s.logger.Info("applied migration v2 (binary market tables)")
	}

	return nil
}

// UpsertCandle is idempotent; the latest write wins per (time,symbol).
func (s *Store) UpsertCandle(c market.Candle) error {
	_, err := s.db.Exec(`
		INSERT INTO candles (time, symbol, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(time, symbol) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume
	`, c.Time.Format(timeLayout), c.Symbol, c.Open, c.High, c.Low, c.Close, c.Volume)
	if err != nil {
		return fmt.Errorf("upsert candle: %w", err)
	}
	return nil
}

// UpsertTick keeps the first tick recorded for a given (time, symbol,
// price); later duplicates are ignored (ON CONFLICT DO NOTHING).
func (s *Store) UpsertTick(t market.Tick) error {
	_, err := s.db.Exec(`
		INSERT INTO ticks (time, symbol, price, size, venue)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(time, symbol, price) DO NOTHING
	`, t.Time.Format(timeLayout), t.Symbol, t.Price, t.Size, t.Venue)
	if err != nil {
		return fmt.Errorf("upsert tick: %w", err)
	}
	return nil
}

// UpsertProfileRow is idempotent per (bucket,symbol,price_level).
func (s *Store) UpsertProfileRow(r market.VolumeProfileRow) error {
	_, err := s.db.Exec(`
		INSERT INTO volume_profile_rows (bucket, symbol, price_level, total_vol, buy_vol, sell_vol, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, symbol, price_level) DO UPDATE SET
			total_vol = excluded.total_vol, buy_vol = excluded.buy_vol,
			sell_vol = excluded.sell_vol, trade_count = excluded.trade_count
	`, r.Bucket.Format(timeLayout), r.Symbol, r.PriceLevel, r.TotalVol, r.BuyVol, r.SellVol, r.TradeCount)
	if err != nil {
		return fmt.Errorf("upsert profile row: %w", err)
	}
	return nil
}

// UpsertProfileMetrics is idempotent per (bucket,symbol); LVN/HVN
// price levels are persisted as JSON arrays.
func (s *Store) UpsertProfileMetrics(m market.ProfileMetrics) error {
	lvns, err := json.Marshal(m.LVNs)
	if err != nil {
		return fmt.Errorf("marshal lvns: %w", err)
	}
	hvns, err := json.Marshal(m.HVNs)
	if err != nil {
		return fmt.Errorf("marshal hvns: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO profile_metrics (bucket, symbol, poc, vah, val, total_volume, lvns, hvns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, symbol) DO UPDATE SET
			poc = excluded.poc, vah = excluded.vah, val = excluded.val,
			total_volume = excluded.total_volume, lvns = excluded.lvns, hvns = excluded.hvns
	`, m.Bucket.Format(timeLayout), m.Symbol, m.POC, m.VAH, m.VAL, m.TotalVolume, string(lvns), string(hvns))
	if err != nil {
		return fmt.Errorf("upsert profile metrics: %w", err)
	}
	return nil
}

// GetProfileMetrics returns the most recent profile metrics row at or
// before bucket for symbol. It returns ok=false if none exists.
func (s *Store) GetProfileMetrics(symbol string, bucket time.Time) (market.ProfileMetrics, bool, error) {
	row := s.db.QueryRow(`
		SELECT bucket, poc, vah, val, total_volume, lvns, hvns
		FROM profile_metrics
		WHERE symbol = ? AND bucket <= ?
		ORDER BY bucket DESC LIMIT 1
	`, symbol, bucket.Format(timeLayout))

	var bucketStr, lvnsJSON, hvnsJSON string
	var m market.ProfileMetrics
	m.Symbol = symbol
	if err := row.Scan(&bucketStr, &m.POC, &m.VAH, &m.VAL, &m.TotalVolume, &lvnsJSON, &hvnsJSON); err != nil {
		if err == sql.ErrNoRows {
			return market.ProfileMetrics{}, false, nil
		}
		return market.ProfileMetrics{}, false, fmt.Errorf("get profile metrics: %w", err)
	}

	parsed, err := time.Parse(timeLayout, bucketStr)
	if err != nil {
		return market.ProfileMetrics{}, false, fmt.Errorf("parse bucket: %w", err)
	}
	m.Bucket = parsed
	json.Unmarshal([]byte(lvnsJSON), &m.LVNs)
	json.Unmarshal([]byte(hvnsJSON), &m.HVNs)
	return m, true, nil
}

// InsertOrderFlowRow replaces any existing row for (bucket,symbol);
// order-flow rows are recomputed, not appended, as the lookback window
// advances.
func (s *Store) InsertOrderFlowRow(r market.OrderFlowRow) error {
	_, err := s.db.Exec(`
		INSERT INTO order_flow_rows (bucket, symbol, delta, cumulative_delta, aggressive_buys, aggressive_sells, buy_pressure, sell_pressure)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket, symbol) DO UPDATE SET
			delta = excluded.delta, cumulative_delta = excluded.cumulative_delta,
			aggressive_buys = excluded.aggressive_buys, aggressive_sells = excluded.aggressive_sells,
			buy_pressure = excluded.buy_pressure, sell_pressure = excluded.sell_pressure
	`, r.Bucket.Format(timeLayout), r.Symbol, r.Delta, r.CumulativeDelta, r.AggressiveBuys, r.AggressiveSells, r.BuyPressure, r.SellPressure)
	if err != nil {
		return fmt.Errorf("insert order flow row: %w", err)
	}
	return nil
}

// GetLastCVD returns the cumulative delta of the most recent
// order-flow row for symbol strictly before the given bucket, or 0 if
// no history exists yet.
func (s *Store) GetLastCVD(symbol string, before time.Time) (float64, error) {
	var cvd float64
	err := s.db.QueryRow(`
		SELECT cumulative_delta FROM order_flow_rows
		WHERE symbol = ? AND bucket < ?
		ORDER BY bucket DESC LIMIT 1
	`, symbol, before.Format(timeLayout)).Scan(&cvd)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get last cvd: %w", err)
	}
	return cvd, nil
}

// InsertMarketState appends one market-state observation. State
// history is append-only.
func (s *Store) InsertMarketState(r market.MarketStateRow) error {
	_, err := s.db.Exec(`
		INSERT INTO market_state_rows (time, symbol, state, confidence, balance_high, balance_low, poc)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.Time.Format(timeLayout), r.Symbol, string(r.State), r.Confidence, r.BalanceHigh, r.BalanceLow, r.POC)
	if err != nil {
		return fmt.Errorf("insert market state: %w", err)
	}
	return nil
}

// Trade is one closed round-trip persisted to the trades table.
type Trade struct {
	ID          int64
	Symbol      string
	EntryTime   time.Time
	EntryPrice  float64
	Qty         int64
	Side        market.Side
	ExitTime    time.Time
	ExitPrice   float64
	ExitReason  string
	PNL         float64
	PNLPct      float64
	BarsHeld    int
	MAE         float64
	MFE         float64
}

// AppendTrade records one closed trade. Trade history is append-only.
func (s *Store) AppendTrade(t Trade) error {
	_, err := s.db.Exec(`
		INSERT INTO trades (symbol, entry_time, entry_price, qty, side, exit_time, exit_price, exit_reason, pnl, pnl_pct, bars_held, mae, mfe)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Symbol, t.EntryTime.Format(timeLayout), t.EntryPrice, t.Qty, string(t.Side),
		t.ExitTime.Format(timeLayout), t.ExitPrice, t.ExitReason, t.PNL, t.PNLPct, t.BarsHeld, t.MAE, t.MFE)
	if err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

// AppendTrades persists a batch of trades in a single transaction, the
// form the deterministic replay driver uses at the end of a run.
func (s *Store) AppendTrades(trades []Trade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin trade batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO trades (symbol, entry_time, entry_price, qty, side, exit_time, exit_price, exit_reason, pnl, pnl_pct, bars_held, mae, mfe)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare trade batch: %w", err)
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.Exec(t.Symbol, t.EntryTime.Format(timeLayout), t.EntryPrice, t.Qty, string(t.Side),
			t.ExitTime.Format(timeLayout), t.ExitPrice, t.ExitReason, t.PNL, t.PNLPct, t.BarsHeld, t.MAE, t.MFE); err != nil {
			return fmt.Errorf("exec trade batch: %w", err)
		}
	}
	return tx.Commit()
}

// AppendEquityPoint records one equity-curve snapshot for a backtest run.
func (s *Store) AppendEquityPoint(runID string, at time.Time, equity float64) error {
	_, err := s.db.Exec(`
		INSERT INTO equity_curve (run_id, time, equity) VALUES (?, ?, ?)
		ON CONFLICT(run_id, time) DO UPDATE SET equity = excluded.equity
	`, runID, at.Format(timeLayout), equity)
	if err != nil {
		return fmt.Errorf("append equity point: %w", err)
	}
	return nil
}

// GetCandles returns every candle for symbol in [start,end], sorted
// ascending by time.
func (s *Store) GetCandles(symbol string, start, end time.Time) ([]market.Candle, error) {
	rows, err := s.db.Query(`
		SELECT time, open, high, low, close, volume FROM candles
		WHERE symbol = ? AND time >= ? AND time <= ?
		ORDER BY time ASC
	`, symbol, start.Format(timeLayout), end.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	var out []market.Candle
	for rows.Next() {
		var timeStr string
		c := market.Candle{Symbol: symbol}
		if err := rows.Scan(&timeStr, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		parsed, err := time.Parse(timeLayout, timeStr)
		if err != nil {
			return nil, fmt.Errorf("parse candle time: %w", err)
		}
		c.Time = parsed
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetTicks returns every tick for symbol in [start,end], sorted
// ascending by time.
func (s *Store) GetTicks(symbol string, start, end time.Time) ([]market.Tick, error) {
	rows, err := s.db.Query(`
		SELECT time, price, size, venue FROM ticks
		WHERE symbol = ? AND time >= ? AND time <= ?
		ORDER BY time ASC
	`, symbol, start.Format(timeLayout), end.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("get ticks: %w", err)
	}
	defer rows.Close()

	var out []market.Tick
	for rows.Next() {
		var timeStr string
		t := market.Tick{Symbol: symbol}
		if err := rows.Scan(&timeStr, &t.Price, &t.Size, &t.Venue); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		parsed, err := time.Parse(timeLayout, timeStr)
		if err != nil {
			return nil, fmt.Errorf("parse tick time: %w", err)
		}
		t.Time = parsed
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListSymbols returns every distinct symbol with at least one stored
// candle, sorted ascending. The backtest CLI's --all-symbols flag uses
// this to discover the replay universe without the caller naming it.
func (s *Store) ListSymbols() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT symbol FROM candles ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
