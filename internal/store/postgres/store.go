package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Store implements domain.Store on a Client's pool.
type Store struct {
	*Client
}

// NewStore wraps c.
func NewStore(c *Client) *Store {
	return &Store{Client: c}
}

// --------------------------------------------------------------------------
// Opportunities
// --------------------------------------------------------------------------

const opportunityCols = `id, pair_id, event_key, question, similarity, direction,
	yes_leg, no_leg, raw_edge, fee_fraction, slippage, net_edge, days_to_res,
	annualized, notional, expected_pnl, passes, reason, reason_detail, risk,
	trade_id, detected_at`

// RecordOpportunity inserts opp. Recording the same id again refreshes the
// verdict and risk assessment only.
func (s *Store) RecordOpportunity(ctx context.Context, opp domain.Opportunity) error {
	yes, err := json.Marshal(opp.YesLeg)
	if err != nil {
		return fmt.Errorf("postgres: encode yes leg: %w", err)
	}
	no, err := json.Marshal(opp.NoLeg)
	if err != nil {
		return fmt.Errorf("postgres: encode no leg: %w", err)
	}
	var risk []byte
	if opp.Risk != nil {
		if risk, err = json.Marshal(opp.Risk); err != nil {
			return fmt.Errorf("postgres: encode risk: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO opportunities (`+opportunityCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (id) DO UPDATE SET
			passes = EXCLUDED.passes,
			reason = EXCLUDED.reason,
			reason_detail = EXCLUDED.reason_detail,
			risk = EXCLUDED.risk`,
		opp.ID, opp.PairID, opp.EventKey, opp.Question, opp.Similarity, string(opp.Direction),
		yes, no, opp.RawEdge, opp.FeeFraction, opp.Slippage, opp.NetEdge, opp.DaysToRes,
		opp.Annualized, opp.Notional, opp.ExpectedPnL, opp.Passes, string(opp.Reason), opp.ReasonDetail, risk,
		nullString(opp.TradeID), opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// AttachTrade links an executed trade to its opportunity.
func (s *Store) AttachTrade(ctx context.Context, opportunityID, tradeID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE opportunities SET trade_id = $2 WHERE id = $1`, opportunityID, tradeID)
	if err != nil {
		return fmt.Errorf("postgres: attach trade to %s: %w", opportunityID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: attach trade to %s: %w", opportunityID, domain.ErrNotFound)
	}
	return nil
}

// ListOpportunities returns opportunities detected in [from, to).
func (s *Store) ListOpportunities(ctx context.Context, from, to time.Time) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+opportunityCols+` FROM opportunities
		 WHERE detected_at >= $1 AND detected_at < $2 ORDER BY detected_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities: %w", err)
	}
	defer rows.Close()

	var out []domain.Opportunity
	for rows.Next() {
		opp, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		out = append(out, opp)
	}
	return out, rows.Err()
}

func scanOpportunity(row pgx.Row) (domain.Opportunity, error) {
	var (
		o             domain.Opportunity
		direction     string
		reason        string
		yes, no, risk []byte
		tradeID       *string
	)
	if err := row.Scan(
		&o.ID, &o.PairID, &o.EventKey, &o.Question, &o.Similarity, &direction,
		&yes, &no, &o.RawEdge, &o.FeeFraction, &o.Slippage, &o.NetEdge, &o.DaysToRes,
		&o.Annualized, &o.Notional, &o.ExpectedPnL, &o.Passes, &reason, &o.ReasonDetail, &risk,
		&tradeID, &o.DetectedAt,
	); err != nil {
		return domain.Opportunity{}, err
	}
	o.Direction = domain.Direction(direction)
	o.Reason = domain.RejectReason(reason)
	if tradeID != nil {
		o.TradeID = *tradeID
	}
	if err := json.Unmarshal(yes, &o.YesLeg); err != nil {
		return domain.Opportunity{}, err
	}
	if err := json.Unmarshal(no, &o.NoLeg); err != nil {
		return domain.Opportunity{}, err
	}
	if len(risk) > 0 {
		o.Risk = &domain.RiskAssessment{}
		if err := json.Unmarshal(risk, o.Risk); err != nil {
			return domain.Opportunity{}, err
		}
	}
	return o, nil
}

// --------------------------------------------------------------------------
// Trades
// --------------------------------------------------------------------------

const tradeCols = `id, opportunity_id, event_key, yes_leg, no_leg, unwinds, capital,
	fees_usd, realized_pnl, status, error, dry_run, started_at, completed_at`

// RecordTrade upserts t. A row that already holds a terminal status is left
// untouched.
func (s *Store) RecordTrade(ctx context.Context, t domain.Trade) error {
	yes, no, unwinds, err := encodeTradeJSON(t)
	if err != nil {
		return fmt.Errorf("postgres: encode trade %s: %w", t.ID, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO trades (`+tradeCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			yes_leg = EXCLUDED.yes_leg,
			no_leg = EXCLUDED.no_leg,
			unwinds = EXCLUDED.unwinds,
			fees_usd = EXCLUDED.fees_usd,
			realized_pnl = EXCLUDED.realized_pnl,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
		WHERE trades.status = 'pending'`,
		t.ID, t.OpportunityID, t.EventKey, yes, no, unwinds, t.Capital,
		t.FeesUSD, t.RealizedPnL, string(t.Status), t.Error, t.DryRun, t.StartedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert trade %s: %w", t.ID, err)
	}
	return nil
}

// GetTrade returns a trade by id.
func (s *Store) GetTrade(ctx context.Context, id string) (domain.Trade, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tradeCols+` FROM trades WHERE id = $1`, id)
	t, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return t, nil
}

// ListTrades returns trades started in [from, to).
func (s *Store) ListTrades(ctx context.Context, from, to time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeCols+` FROM trades
		 WHERE started_at >= $1 AND started_at < $2 ORDER BY started_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func encodeTradeJSON(t domain.Trade) (yes, no, unwinds []byte, err error) {
	if yes, err = json.Marshal(t.YesLeg); err != nil {
		return
	}
	if no, err = json.Marshal(t.NoLeg); err != nil {
		return
	}
	u := t.Unwinds
	if u == nil {
		u = []domain.UnwindAction{}
	}
	unwinds, err = json.Marshal(u)
	return
}

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var (
		t                domain.Trade
		status           string
		yes, no, unwinds []byte
	)
	if err := row.Scan(
		&t.ID, &t.OpportunityID, &t.EventKey, &yes, &no, &unwinds, &t.Capital,
		&t.FeesUSD, &t.RealizedPnL, &status, &t.Error, &t.DryRun, &t.StartedAt, &t.CompletedAt,
	); err != nil {
		return domain.Trade{}, err
	}
	t.Status = domain.TradeStatus(status)
	if err := json.Unmarshal(yes, &t.YesLeg); err != nil {
		return domain.Trade{}, err
	}
	if err := json.Unmarshal(no, &t.NoLeg); err != nil {
		return domain.Trade{}, err
	}
	if err := json.Unmarshal(unwinds, &t.Unwinds); err != nil {
		return domain.Trade{}, err
	}
	return t, nil
}

// --------------------------------------------------------------------------
// Balances and summary
// --------------------------------------------------------------------------

// RecordBalanceSnapshot appends a snapshot.
func (s *Store) RecordBalanceSnapshot(ctx context.Context, snap domain.BalanceSnapshot) error {
	balances, err := json.Marshal(snap.Balances)
	if err != nil {
		return fmt.Errorf("postgres: encode balances: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO balance_snapshots (balances, total, locked, available, open_positions, daily_pnl, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		balances, snap.Total, snap.Locked, snap.Available, snap.OpenPositions, snap.DailyPnL, snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert balance snapshot: %w", err)
	}
	return nil
}

// LatestBalanceSnapshot returns the newest snapshot.
func (s *Store) LatestBalanceSnapshot(ctx context.Context) (domain.BalanceSnapshot, error) {
	var (
		snap     domain.BalanceSnapshot
		balances []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT balances, total, locked, available, open_positions, daily_pnl, taken_at
		FROM balance_snapshots ORDER BY taken_at DESC, id DESC LIMIT 1`,
	).Scan(&balances, &snap.Total, &snap.Locked, &snap.Available, &snap.OpenPositions, &snap.DailyPnL, &snap.TakenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BalanceSnapshot{}, fmt.Errorf("postgres: latest balance snapshot: %w", domain.ErrNotFound)
	}
	if err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("postgres: latest balance snapshot: %w", err)
	}
	if err := json.Unmarshal(balances, &snap.Balances); err != nil {
		return domain.BalanceSnapshot{}, fmt.Errorf("postgres: decode balances: %w", err)
	}
	return snap, nil
}

// Summary aggregates activity since the given time.
func (s *Store) Summary(ctx context.Context, since time.Time) (domain.PerformanceSummary, error) {
	sum := domain.PerformanceSummary{Since: since, TradesByStatus: map[domain.TradeStatus]int{}}

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE passes)
		FROM opportunities WHERE detected_at >= $1`, since,
	).Scan(&sum.OpportunitiesSeen, &sum.OpportunitiesPassed)
	if err != nil {
		return sum, fmt.Errorf("postgres: summary opportunities: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(realized_pnl), 0), COALESCE(SUM(fees_usd), 0), COALESCE(SUM(capital), 0)
		FROM trades WHERE started_at >= $1 GROUP BY status`, since)
	if err != nil {
		return sum, fmt.Errorf("postgres: summary trades: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status          string
			n               int
			pnl, fees, capl float64
		)
		if err := rows.Scan(&status, &n, &pnl, &fees, &capl); err != nil {
			return sum, fmt.Errorf("postgres: scan summary: %w", err)
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

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ domain.Store = (*Store)(nil)
