// Package entry drives the multi-step trade recording conversation. Each
// step validates one answer, accumulates it into the session draft, and picks
// the next step; the terminal step computes PnL and persists the trade.
package entry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"journalbot/internal/database"
	"journalbot/internal/pnl"
	"journalbot/internal/session"
)

// Store is the persistence surface the flow needs.
type Store interface {
	CreateDailyBalance(ownerID int64, day string, opening decimal.Decimal) (int64, error)
	GetDailyBalance(ownerID int64, day string) (*database.DailyBalance, error)
	UpdateBalance(id int64, balance decimal.Decimal) error
	CreateTrade(trade *database.Trade) error
	LinkTrade(balanceID, tradeID int64) error
}

// Clock supplies "today"; injected so the flow never reads the wall clock.
type Clock func() string

// Reply is what the transport should show next. Options, when present, are
// the only inputs the current step accepts as shortcuts (rendering is up to
// the transport). Done means the flow finished and the session can be reset.
type Reply struct {
	Text    string
	Options []string
	Done    bool
}

type Flow struct {
	store Store
	today Clock
}

func New(store Store, today Clock) *Flow {
	return &Flow{store: store, today: today}
}

// Prompts per step, matching the conversational script.
const (
	promptCurrency  = "Enter the currency name:"
	promptBalance   = "Opening balance for today:"
	promptLots      = "Lots amount:"
	promptDirection = "Position Type (Long/Short):"
	promptEntry1    = "First Entry Target:"
	promptEntry2Q   = "Do you have a second entry? (Yes/No)"
	promptEntry2    = "Second Entry Target:"
	promptTP1       = "First Take Profit Target:"
	promptTP2Q      = "Do you have a second target? (Yes/No)"
	promptTP2       = "Second Take Profit Target:"
	promptStopLoss  = "Stop Loss:"

	msgEnterNumber = "Enter a number."
)

var (
	yesNoOptions     = []string{"Yes", "No"}
	directionOptions = []string{"Long", "Short"}
)

// Start resets the draft and opens the flow at the currency step.
func (f *Flow) Start(sess *session.Session) Reply {
	sess.Step = session.StepCurrency
	sess.Draft = session.Draft{}
	return Reply{Text: promptCurrency}
}

// StartEditBalance opens the edit-balance flow for one recorded day.
func (f *Flow) StartEditBalance(sess *session.Session, day string) Reply {
	sess.Step = session.StepEditBalance
	sess.EditDay = day
	return Reply{Text: fmt.Sprintf("Enter new amount for date %s:", day)}
}

// Handle consumes one message for the session's current step. Validation
// failures re-prompt without touching the draft or the step; persistence
// failures return an error with the session intact so the same input can be
// retried.
func (f *Flow) Handle(ownerID int64, sess *session.Session, text string) (Reply, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, "%", ""))
	draft := &sess.Draft

	switch sess.Step {
	case session.StepCurrency:
		if text == "" {
			return Reply{Text: promptCurrency}, nil
		}
		draft.Currency = text
		// Skip the opening-balance step when today already has a snapshot.
		_, err := f.store.GetDailyBalance(ownerID, f.today())
		if err == nil {
			sess.Step = session.StepLots
			return Reply{Text: promptLots}, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return Reply{}, err
		}
		sess.Step = session.StepBalance
		return Reply{Text: promptBalance}, nil

	case session.StepBalance:
		bal, ok := parseDecimal(text)
		if !ok {
			return Reply{Text: msgEnterNumber}, nil
		}
		if _, err := f.store.CreateDailyBalance(ownerID, f.today(), bal); err != nil {
			return Reply{}, err
		}
		sess.Step = session.StepLots
		return Reply{Text: promptLots}, nil

	case session.StepLots:
		lots, ok := parseDecimal(text)
		if !ok {
			return Reply{Text: msgEnterNumber}, nil
		}
		draft.Lots = lots
		sess.Step = session.StepDirection
		return Reply{Text: promptDirection, Options: directionOptions}, nil

	case session.StepDirection:
		dir, ok := pnl.ParseDirection(text)
		if !ok {
			return Reply{Text: "Please send Long or Short", Options: directionOptions}, nil
		}
		draft.Direction = dir
		sess.Step = session.StepEntry1
		return Reply{Text: promptEntry1}, nil

	case session.StepEntry1:
		v, ok := parseDecimal(text)
		if !ok {
			return Reply{Text: msgEnterNumber}, nil
		}
		draft.Entries = []decimal.Decimal{v}
		sess.Step = session.StepEntry2Q
		return Reply{Text: promptEntry2Q, Options: yesNoOptions}, nil

	case session.StepEntry2Q:
		if isAffirmative(text) {
			sess.Step = session.StepEntry2
			return Reply{Text: promptEntry2}, nil
		}
		sess.Step = session.StepTP1
		return Reply{Text: promptTP1}, nil

	case session.StepEntry2:
		v, ok := parseDecimal(text)
		if !ok {
			return Reply{Text: msgEnterNumber}, nil
		}
		draft.Entries = append(draft.Entries, v)
		sess.Step = session.StepTP1
		return Reply{Text: promptTP1}, nil

	case session.StepTP1:
		v, ok := parseDecimal(text)
		if !ok {
			return Reply{Text: msgEnterNumber}, nil
		}
		draft.Targets = []decimal.Decimal{v}
		sess.Step = session.StepTP2Q
		return Reply{Text: promptTP2Q, Options: yesNoOptions}, nil

	case session.StepTP2Q:
		if isAffirmative(text) {
			sess.Step = session.StepTP2
			return Reply{Text: promptTP2}, nil
		}
		sess.Step = session.StepStopLoss
		return Reply{Text: promptStopLoss}, nil

	case session.StepTP2:
		v, ok := parseDecimal(text)
		if !ok {
			return Reply{Text: msgEnterNumber}, nil
		}
		draft.Targets = append(draft.Targets, v)
		sess.Step = session.StepStopLoss
		return Reply{Text: promptStopLoss}, nil

	case session.StepStopLoss:
		sl, ok := parseDecimal(text)
		if !ok {
			return Reply{Text: msgEnterNumber}, nil
		}
		draft.StopLoss = sl
		return f.finish(ownerID, sess)

	case session.StepEditBalance:
		v, ok := parseDecimal(text)
		if !ok {
			return Reply{Text: "Please enter a valid number."}, nil
		}
		bal, err := f.store.GetDailyBalance(ownerID, sess.EditDay)
		if errors.Is(err, database.ErrNotFound) {
			return Reply{Text: "Not found.", Done: true}, nil
		}
		if err != nil {
			return Reply{}, err
		}
		if err := f.store.UpdateBalance(bal.ID, v); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "Updated.", Done: true}, nil
	}

	return Reply{}, nil
}

// finish runs the terminal sequence: per-leg PnL, percentages, persist,
// balance update. The creation and the link are two statements, not one
// transaction; a crash in between leaves an unlinked trade row.
func (f *Flow) finish(ownerID int64, sess *session.Session) (Reply, error) {
	draft := sess.Draft
	today := f.today()

	// Starting balance is captured once; the per-leg loop below re-reads it
	// for percentages only.
	dayRow, err := f.store.GetDailyBalance(ownerID, today)
	if err != nil {
		return Reply{}, fmt.Errorf("loading today's balance: %w", err)
	}
	starting := dayRow.Balance

	totalPnl := decimal.Zero
	legPnls := make(database.DecimalSlice, 0, len(draft.Entries))
	var gains, losses database.DecimalSlice

	for i, entryPrice := range draft.Entries {
		target := draft.Targets[len(draft.Targets)-1]
		if i < len(draft.Targets) {
			target = draft.Targets[i]
		}
		val := pnl.Value(entryPrice, target, draft.Lots, draft.Direction)
		legPnls = append(legPnls, val)
		totalPnl = totalPnl.Add(val)

		base, err := f.store.GetDailyBalance(ownerID, today)
		if err != nil {
			return Reply{}, fmt.Errorf("loading percent base: %w", err)
		}
		pct := pnl.PercentOfBase(base.Balance, val)
		if val.IsNegative() {
			losses = append(losses, pct)
		} else {
			gains = append(gains, pct)
		}
	}

	trade := &database.Trade{
		Currency:  draft.Currency,
		Lots:      draft.Lots,
		Direction: string(draft.Direction),
		Entries:   database.DecimalSlice(draft.Entries),
		Targets:   database.DecimalSlice(draft.Targets),
		StopLoss:  draft.StopLoss,
		LegPnls:   legPnls,
		GainPcts:  gains,
		LossPcts:  losses,
	}
	if err := f.store.CreateTrade(trade); err != nil {
		return Reply{}, fmt.Errorf("saving trade: %w", err)
	}

	newBalance := starting.Add(totalPnl)
	if err := f.store.UpdateBalance(dayRow.ID, newBalance); err != nil {
		return Reply{}, fmt.Errorf("updating balance: %w", err)
	}
	if err := f.store.LinkTrade(dayRow.ID, trade.ID); err != nil {
		return Reply{}, fmt.Errorf("linking trade: %w", err)
	}

	log.Info().
		Int64("owner_id", ownerID).
		Int64("trade_id", trade.ID).
		Str("currency", trade.Currency).
		Str("pnl", totalPnl.StringFixed(2)).
		Msg("Trade recorded")

	return Reply{
		Text: fmt.Sprintf("Saved.\nPnL: $%s\nNew Balance: $%s",
			totalPnl.StringFixed(2), newBalance.StringFixed(2)),
		Done: true,
	}, nil
}

func parseDecimal(text string) (decimal.Decimal, bool) {
	v, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}

// isAffirmative matches the yes tokens, including the Persian alias the bot
// historically accepted. Anything else counts as "no".
func isAffirmative(text string) bool {
	switch strings.ToLower(text) {
	case "yes", "y", "بله":
		return true
	}
	return false
}
