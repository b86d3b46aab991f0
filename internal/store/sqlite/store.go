// Package sqlite implements domain.Store on an embedded SQLite database
// (pure Go, no cgo). It backs paper runs and tests; timestamps are stored as
// Unix nanoseconds.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS opportunities (
    id            TEXT PRIMARY KEY,
    pair_id       TEXT    NOT NULL,
    event_key     TEXT    NOT NULL,
    question      TEXT    NOT NULL DEFAULT '',
    similarity    REAL    NOT NULL DEFAULT 0,
    direction     TEXT    NOT NULL DEFAULT '',
    yes_leg       TEXT    NOT NULL,
    no_leg        TEXT    NOT NULL,
    raw_edge      REAL    NOT NULL DEFAULT 0,
    fee_fraction  REAL    NOT NULL DEFAULT 0,
    slippage      REAL    NOT NULL DEFAULT 0,
    net_edge      REAL    NOT NULL DEFAULT 0,
    days_to_res   INTEGER NOT NULL DEFAULT -1,
    annualized    REAL    NOT NULL DEFAULT 0,
    notional      REAL    NOT NULL DEFAULT 0,
    expected_pnl  REAL    NOT NULL DEFAULT 0,
    passes        INTEGER NOT NULL DEFAULT 0,
    reason        TEXT    NOT NULL DEFAULT '',
    reason_detail TEXT    NOT NULL DEFAULT '',
    risk          TEXT,
    trade_id      TEXT,
    detected_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opp_detected ON opportunities(detected_at);

CREATE TABLE IF NOT EXISTS trades (
    id             TEXT PRIMARY KEY,
    opportunity_id TEXT    NOT NULL,
    event_key      TEXT    NOT NULL,
    yes_leg        TEXT    NOT NULL,
    no_leg         TEXT    NOT NULL,
    unwinds        TEXT    NOT NULL DEFAULT '[]',
    capital        REAL    NOT NULL DEFAULT 0,
    fees_usd       REAL    NOT NULL DEFAULT 0,
    realized_pnl   REAL    NOT NULL DEFAULT 0,
    status         TEXT    NOT NULL,
    error          TEXT    NOT NULL DEFAULT '',
    dry_run        INTEGER NOT NULL DEFAULT 0,
    started_at     INTEGER NOT NULL,
    completed_at   INTEGER
);
CREATE INDEX IF NOT EXISTS idx_trades_started ON trades(started_at);

CREATE TABLE IF NOT EXISTS balance_snapshots (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    balances       TEXT    NOT NULL,
    total          REAL    NOT NULL,
    locked         REAL    NOT NULL,
    available      REAL    NOT NULL,
    open_positions INTEGER NOT NULL,
    daily_pnl      REAL    NOT NULL,
    taken_at       INTEGER NOT NULL
);
`

// Store implements domain.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// single writer; also keeps one shared :memory: database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const opportunityCols = `id, pair_id, event_key, question, similarity, direction,
	yes_leg, no_leg, raw_edge, fee_fraction, slippage, net_edge, days_to_res,
	annualized, notional, expected_pnl, passes, reason, reason_detail, risk,
	trade_id, detected_at`

// RecordOpportunity inserts opp. Recording the same id again refreshes the
// verdict and risk assessment only.
func (s *Store) RecordOpportunity(ctx context.Context, opp domain.Opportunity) error {
	yes, err := json.Marshal(opp.YesLeg)
	if err != nil {
		return fmt.Errorf("sqlite: encode yes leg: %w", err)
	}
	no, err := json.Marshal(opp.NoLeg)
	if err != nil {
		return fmt.Errorf("sqlite: encode no leg: %w", err)
	}
	var risk sql.NullString
	if opp.Risk != nil {
		b, err := json.Marshal(opp.Risk)
		if err != nil {
			return fmt.Errorf("sqlite: encode risk: %w", err)
		}
		risk = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO opportunities (`+opportunityCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			passes = excluded.passes,
			reason = excluded.reason,
			reason_detail = excluded.reason_detail,
			risk = excluded.risk`,
		opp.ID, opp.PairID, opp.EventKey, opp.Question, opp.Similarity, string(opp.Direction),
		string(yes), string(no), opp.RawEdge, opp.FeeFraction, opp.Slippage, opp.NetEdge, opp.DaysToRes,
		opp.Annualized, opp.Notional, opp.ExpectedPnL, opp.Passes, string(opp.Reason), opp.ReasonDetail, risk,
		nullString(opp.TradeID), opp.DetectedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// AttachTrade links an executed trade to its opportunity.
func (s *Store) AttachTrade(ctx context.Context, opportunityID, tradeID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE opportunities SET trade_id = ? WHERE id = ?`, tradeID, opportunityID)
	if err != nil {
		return fmt.Errorf("sqlite: attach trade to %s: %w", opportunityID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: attach trade to %s: %w", opportunityID, domain.ErrNotFound)
	}
	return nil
}

// ListOpportunities returns opportunities detected in [from, to).
func (s *Store) ListOpportunities(ctx context.Context, from, to time.Time) ([]domain.Opportunity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+opportunityCols+` FROM opportunities
		 WHERE detected_at >= ? AND detected_at < ? ORDER BY detected_at`,
		from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.Opportunity
	for rows.Next() {
		var (
			o                 domain.Opportunity
			direction, reason string
			yes, no           string
			risk, tradeID     sql.NullString
			detectedAt        int64
		)
		if err := rows.Scan(
			&o.ID, &o.PairID, &o.EventKey, &o.Question, &o.Similarity, &direction,
			&yes, &no, &o.RawEdge, &o.FeeFraction, &o.Slippage, &o.NetEdge, &o.DaysToRes,
			&o.Annualized, &o.Notional, &o.ExpectedPnL, &o.Passes, &reason, &o.ReasonDetail, &risk,
			&tradeID, &detectedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan opportunity: %w", err)
		}
		o.Direction = domain.Direction(direction)
		o.Reason = domain.RejectReason(reason)
		o.TradeID = tradeID.String
		o.DetectedAt = time.Unix(0, detectedAt).UTC()
		if err := json.Unmarshal([]byte(yes), &o.YesLeg); err != nil {
			return nil, fmt.Errorf("sqlite: decode yes leg: %w", err)
		}
		if err := json.Unmarshal([]byte(no), &o.NoLeg); err != nil {
			return nil, fmt.Errorf("sqlite: decode no leg: %w", err)
		}
		if risk.Valid {
			o.Risk = &domain.RiskAssessment{}
			if err := json.Unmarshal([]byte(risk.String), o.Risk); err != nil {
				return nil, fmt.Errorf("sqlite: decode risk: %w", err)
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const tradeCols = `id, opportunity_id, event_key, yes_leg, no_leg, unwinds, capital,
	fees_usd, realized_pnl, status, error, dry_run, started_at, completed_at`

// RecordTrade upserts t. A row that already holds a terminal status is left
// untouched.
func (s *Store) RecordTrade(ctx context.Context, t domain.Trade) error {
	yes, err := json.Marshal(t.YesLeg)
	if err != nil {
		return fmt.Errorf("sqlite: encode trade %s: %w", t.ID, err)
	}
	no, err := json.Marshal(t.NoLeg)
	if err != nil {
		return fmt.Errorf("sqlite: encode trade %s: %w", t.ID, err)
	}
	u := t.Unwinds
	if u == nil {
		u = []domain.UnwindAction{}
	}
	unwinds, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("sqlite: encode trade %s: %w", t.ID, err)
	}
	var completed sql.NullInt64
	if t.CompletedAt != nil {
		completed = sql.NullInt64{Int64: t.CompletedAt.UnixNano(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trades (`+tradeCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			yes_leg = excluded.yes_leg,
			no_leg = excluded.no_leg,
			unwinds = excluded.unwinds,
			fees_usd = excluded.fees_usd,
			realized_pnl = excluded.realized_pnl,
			status = excluded.status,
			error = excluded.error,
			completed_at = excluded.completed_at
		WHERE trades.status = 'pending'`,
		t.ID, t.OpportunityID, t.EventKey, string(yes), string(no), string(unwinds), t.Capital,
		t.FeesUSD, t.RealizedPnL, string(t.Status), t.Error, t.DryRun, t.StartedAt.UnixNano(), completed,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert trade %s: %w", t.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(row scanner) (domain.Trade, error) {
	var (
		t                domain.Trade
		status           string
		yes, no, unwinds string
		started          int64
		completed        sql.NullInt64
	)
	if err := row.Scan(
		&t.ID, &t.OpportunityID, &t.EventKey, &yes, &no, &unwinds, &t.Capital,
		&t.FeesUSD, &t.RealizedPnL, &status, &t.Error, &t.DryRun, &started, &completed,
	); err != nil {
		return domain.Trade{}, err
	}
	t.Status = domain.TradeStatus(status)
	t.StartedAt = time.Unix(0, started).UTC()
	if completed.Valid {
		c := time.Unix(0, completed.Int64).UTC()
		t.CompletedAt = &c
	}
	if err := json.Unmarshal([]byte(yes), &t.YesLeg); err != nil {
		return domain.Trade{}, err
	}
	if err := json.Unmarshal([]byte(no), &t.NoLeg); err != nil {
		return domain.Trade{}, err
	}
	if err := json.Unmarshal([]byte(unwinds), &t.Unwinds); err != nil {
		return domain.Trade{}, err
	}
	return t, nil
}

// GetTrade returns a trade by id.
func (s *Store) GetTrade(ctx context.Context, id string) (domain.Trade, error) {
	t, err := scanTrade(s.db.QueryRowContext(ctx, `SELECT `+tradeCols+` FROM trades WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Trade{}, fmt.Errorf("sqlite: get trade %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("sqlite: get trade %s: %w", id, err)
	}
	return t, nil
}

// ListTrades returns trades started in [from, to).
func (s *Store) ListTrades(ctx context.Context, from, to time.Time) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tradeCols+` FROM trades WHERE started_at >= ? AND started_at < ? ORDER BY started_at`,
		from.UnixNano(), to.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordBalanceSnapshot appends a snapshot.
func (s *Store) RecordBalanceSnapshot(ctx context.Context, snap domain.BalanceSnapshot) error {
	balances, err := json.Marshal(snap.Balances)
	if err != nil {
		return fmt.Errorf("sqlite: encode balances: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO balance_snapshots (balances, total, locked, available, open_positions, daily_pnl, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(balances), snap.Total, snap.Locked, snap.Available, snap.OpenPositions, snap.DailyPnL, snap.TakenAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert balance snapshot: %w", err)
	}
	return nil
}

// LatestBalanceSnapshot returns the newest snapshot.
func (s *Store) LatestBalanceSnapshot(ctx context.Context) (domain.BalanceSnapshot, error) {
	var (
		snap     domain.BalanceSnapshot
		balances string
		takenAt  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT balances, total, locked, available, open_positions, daily_pnl, taken_at
		FROM balance_snapshots ORDER BY taken_at DESC, id DESC LIMIT 1`,
	).Scan(&balances, &snap.Total, &snap.Locked, &snap.Available, &snap.OpenPositions, &snap.DailyPnL, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BalanceSnapshot{}, fmt.Errorf("sqlite: latest balance snapshot: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("sqlite: latest balance snapshot: %w", err)
	}
	snap.TakenAt = time.Unix(0, takenAt).UTC()
	if err := json.Unmarshal([]byte(balances), &snap.Balances); err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("sqlite: decode balances: %w", err)
	}
	return snap, nil
}

// Summary aggregates activity since the given time.
func (s *Store) Summary(ctx context.Context, since time.Time) (domain.PerformanceSummary, error) {
	sum := domain.PerformanceSummary{Since: since, TradesByStatus: map[domain.TradeStatus]int{}}
	ts := since.UnixNano()

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(passes), 0) FROM opportunities WHERE detected_at >= ?`, ts,
	).Scan(&sum.OpportunitiesSeen, &sum.OpportunitiesPassed)
	if err != nil {
		return sum, fmt.Errorf("sqlite: summary opportunities: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(realized_pnl), 0), COALESCE(SUM(fees_usd), 0), COALESCE(SUM(capital), 0)
		FROM trades WHERE started_at >= ? GROUP BY status`, ts)
	if err != nil {
		return sum, fmt.Errorf("sqlite: summary trades: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status          string
			n               int
			pnl, fees, capl float64
		)
		if err := rows.Scan(&status, &n, &pnl, &fees, &capl); err != nil {
			return sum, fmt.Errorf("sqlite: scan summary: %w", err)
		}
		sum.TradesByStatus[domain.TradeStatus(status)] = n
		sum.RealizedPnL += pnl
		sum.FeesUSD += fees
		if domain.TradeStatus(status) != domain.TradeStatusRejected {
			sum.CapitalDeployed += capl
		}
	}
	return sum, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.Store = (*Store)(nil)
