// Package report renders day, week, and month summaries. Per-leg PnL is
// recomputed from the stored entries and targets; the stored per-leg values
// are display data, the aggregator owns the totals.
package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"journalbot/internal/database"
	"journalbot/internal/pnl"
)

const (
	NoDay   = "No information found."
	NoWeek  = "No information available."
	NoMonth = "Empty."
)

// legs pairs each entry with its target, reusing the last target for
// uncovered indices.
func legs(trade database.Trade) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(trade.Entries))
	for i, entryPrice := range trade.Entries {
		target := decimal.Zero
		if len(trade.Targets) > 0 {
			target = trade.Targets[len(trade.Targets)-1]
			if i < len(trade.Targets) {
				target = trade.Targets[i]
			}
		}
		out = append(out, pnl.Value(entryPrice, target, trade.Lots, pnl.Direction(trade.Direction)))
	}
	return out
}

// sumSigned adds every leg of every trade into (profit, loss); loss is
// reported as a positive magnitude.
func sumSigned(trades []database.Trade) (profit, loss decimal.Decimal) {
	for _, trade := range trades {
		for _, val := range legs(trade) {
			if val.IsNegative() {
				loss = loss.Add(val.Abs())
			} else {
				profit = profit.Add(val)
			}
		}
	}
	return profit, loss
}

// Day renders one daily balance and its linked trades in full detail.
func Day(balance *database.DailyBalance, trades []database.Trade) string {
	if balance == nil || len(trades) == 0 {
		return NoDay
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Date: %s*\nCount: %d\n\n", balance.Day, len(trades))

	totalProfit := decimal.Zero
	totalLoss := decimal.Zero
	gainPct := decimal.Zero
	lossPct := decimal.Zero

	for _, trade := range trades {
		pnls := legs(trade)
		pnlStrs := make([]string, len(pnls))
		for i, val := range pnls {
			pnlStrs[i] = "$" + val.StringFixed(2)
			if val.IsNegative() {
				totalLoss = totalLoss.Add(val.Abs())
			} else {
				totalProfit = totalProfit.Add(val)
			}
		}

		fmt.Fprintf(&b, "*ID:* %d\n", trade.ID)
		fmt.Fprintf(&b, "*Currency:* %s\n", trade.Currency)
		fmt.Fprintf(&b, "*Type:* %s\n", trade.Direction)
		fmt.Fprintf(&b, "*Lots:* %s\n", trade.Lots.String())
		fmt.Fprintf(&b, "*Entries:* %s\n", joinDecimals(trade.Entries))
		fmt.Fprintf(&b, "*Targets:* %s\n", joinDecimals(trade.Targets))
		fmt.Fprintf(&b, "*Stop Loss:* %s\n", trade.StopLoss.String())
		fmt.Fprintf(&b, "*PnL ($):* %s\n\n", strings.Join(pnlStrs, ", "))

		for _, p := range trade.GainPcts {
			gainPct = gainPct.Add(p)
		}
		for _, p := range trade.LossPcts {
			lossPct = lossPct.Add(p)
		}
	}

	fmt.Fprintf(&b, "*Total Net Profit:* $%s\n", totalProfit.StringFixed(2))
	fmt.Fprintf(&b, "*Total Net Loss:* $%s\n", totalLoss.StringFixed(2))
	fmt.Fprintf(&b, "*Total Profit %%:* %s%%\n", gainPct.StringFixed(2))
	fmt.Fprintf(&b, "*Total Loss %%:* %s%%\n", lossPct.StringFixed(2))
	fmt.Fprintf(&b, "*Final Balance:* $%s", balance.Balance.StringFixed(2))

	return b.String()
}

// Week renders the profit/loss totals for a week bucket's member days.
func Week(dayCount int, trades []database.Trade) string {
	if dayCount == 0 {
		return NoWeek
	}
	profit, loss := sumSigned(trades)

	var b strings.Builder
	fmt.Fprintf(&b, "Weekly Report (%d days):\n", dayCount)
	fmt.Fprintf(&b, "\nTotal Profit: $%s", profit.StringFixed(2))
	fmt.Fprintf(&b, "\nTotal Loss: $%s", loss.StringFixed(2))
	return b.String()
}

// Month renders the profit/loss totals for one calendar month.
func Month(month int, trades []database.Trade) string {
	if len(trades) == 0 {
		return NoMonth
	}
	profit, loss := sumSigned(trades)
	return fmt.Sprintf("Month %d Report:\nProfit: $%s\nLoss: $%s",
		month, profit.StringFixed(2), loss.StringFixed(2))
}

func joinDecimals(vals []decimal.Decimal) string {
	strs := make([]string, len(vals))
	for i, v := range vals {
		strs[i] = v.String()
	}
	return strings.Join(strs, ", ")
}
