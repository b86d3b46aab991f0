package notify

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// DailyReport is the input to the end-of-day summary.
type DailyReport struct {
	Day     time.Time
	Summary domain.PerformanceSummary
	Balance domain.BalanceSnapshot
	Breaker domain.BreakerState
}

// RenderDailySummary formats r as plain-text tables.
func RenderDailySummary(r DailyReport) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Daily summary %s\n", r.Day.Format(time.DateOnly))

	activity := tablewriter.NewWriter(&buf)
	activity.Header("Metric", "Value")
	activity.Append("Opportunities seen", fmt.Sprintf("%d", r.Summary.OpportunitiesSeen))
	activity.Append("Opportunities passed", fmt.Sprintf("%d", r.Summary.OpportunitiesPassed))
	activity.Append("Trades", fmt.Sprintf("%d", r.Summary.Trades()))
	for _, st := range slices.Sorted(maps.Keys(r.Summary.TradesByStatus)) {
		activity.Append("  "+string(st), fmt.Sprintf("%d", r.Summary.TradesByStatus[st]))
	}
	activity.Append("Capital deployed", usd(r.Summary.CapitalDeployed))
	activity.Append("Fees", usd(r.Summary.FeesUSD))
	activity.Append("Realized P&L", usd(r.Summary.RealizedPnL))
	activity.Render()

	balances := tablewriter.NewWriter(&buf)
	balances.Header("Venue", "Cash")
	for _, v := range slices.Sorted(maps.Keys(r.Balance.Balances)) {
		balances.Append(v, usd(r.Balance.Balances[v]))
	}
	balances.Append("locked", usd(r.Balance.Locked))
	balances.Append("available", usd(r.Balance.Available))
	balances.Append("equity", usd(r.Balance.Total))
	balances.Render()

	fmt.Fprintf(&buf, "Breaker %s  daily P&L %s  drawdown %.2f%%  halts %d\n",
		r.Breaker.Status, usd(r.Breaker.DailyPnL), r.Breaker.Drawdown*100, r.Breaker.TotalHalts)
	return buf.String()
}

func usd(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("$%.2f", v)
}
