package entry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"journalbot/internal/database"
	"journalbot/internal/session"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// memStore is an in-memory Store for driving the flow without a database.
type memStore struct {
	balances        map[int64]*database.DailyBalance
	trades          map[int64]*database.Trade
	nextID          int64
	failCreateTrade bool
}

func newMemStore() *memStore {
	return &memStore{
		balances: make(map[int64]*database.DailyBalance),
		trades:   make(map[int64]*database.Trade),
	}
}

func (m *memStore) CreateDailyBalance(ownerID int64, day string, opening decimal.Decimal) (int64, error) {
	m.nextID++
	m.balances[m.nextID] = &database.DailyBalance{
		ID: m.nextID, OwnerID: ownerID, Day: day, Balance: opening,
	}
	return m.nextID, nil
}

func (m *memStore) GetDailyBalance(ownerID int64, day string) (*database.DailyBalance, error) {
	for _, b := range m.balances {
		if b.OwnerID == ownerID && b.Day == day {
			return b, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *memStore) UpdateBalance(id int64, balance decimal.Decimal) error {
	b, ok := m.balances[id]
	if !ok {
		return database.ErrNotFound
	}
	b.Balance = balance
	return nil
}

func (m *memStore) CreateTrade(trade *database.Trade) error {
	if m.failCreateTrade {
		return errors.New("db down")
	}
	m.nextID++
	trade.ID = m.nextID
	m.trades[trade.ID] = trade
	return nil
}

func (m *memStore) LinkTrade(balanceID, tradeID int64) error {
	b, ok := m.balances[balanceID]
	if !ok {
		return database.ErrNotFound
	}
	b.TradeIDs = append(b.TradeIDs, tradeID)
	return nil
}

const today = "2024-06-05"

func newTestFlow(store Store) *Flow {
	return New(store, func() string { return today })
}

func step(t *testing.T, f *Flow, sess *session.Session, input string) Reply {
	t.Helper()
	reply, err := f.Handle(1, sess, input)
	require.NoError(t, err)
	return reply
}

func TestEntry1_ValidAdvances(t *testing.T) {
	f := newTestFlow(newMemStore())
	sess := &session.Session{Step: session.StepEntry1}

	reply := step(t, f, sess, "75.5")
	assert.Equal(t, session.StepEntry2Q, sess.Step)
	require.Len(t, sess.Draft.Entries, 1)
	assert.True(t, sess.Draft.Entries[0].Equal(d("75.5")))
	assert.Equal(t, []string{"Yes", "No"}, reply.Options)
}

func TestEntry1_InvalidReprompts(t *testing.T) {
	f := newTestFlow(newMemStore())
	sess := &session.Session{Step: session.StepEntry1}

	reply := step(t, f, sess, "abc")
	assert.Equal(t, session.StepEntry1, sess.Step, "state must not advance")
	assert.Empty(t, sess.Draft.Entries, "data must not change")
	assert.Equal(t, "Enter a number.", reply.Text)
}

func TestDirection_InvalidReprompts(t *testing.T) {
	f := newTestFlow(newMemStore())
	sess := &session.Session{Step: session.StepDirection}

	reply := step(t, f, sess, "sideways")
	assert.Equal(t, session.StepDirection, sess.Step)
	assert.Equal(t, "Please send Long or Short", reply.Text)

	step(t, f, sess, "LONG")
	assert.Equal(t, session.StepEntry1, sess.Step)
}

func TestCurrency_SkipsBalanceWhenDayExists(t *testing.T) {
	store := newMemStore()
	_, err := store.CreateDailyBalance(1, today, d("500"))
	require.NoError(t, err)

	f := newTestFlow(store)
	sess := &session.Session{}
	f.Start(sess)

	step(t, f, sess, "EURUSD")
	assert.Equal(t, session.StepLots, sess.Step)
}

func TestFullFlow_SingleLeg(t *testing.T) {
	store := newMemStore()
	f := newTestFlow(store)
	sess := &session.Session{}

	reply := f.Start(sess)
	assert.Equal(t, "Enter the currency name:", reply.Text)

	step(t, f, sess, "EURUSD")
	assert.Equal(t, session.StepBalance, sess.Step, "no snapshot for today yet")

	step(t, f, sess, "1000")
	step(t, f, sess, "1")
	step(t, f, sess, "long")
	step(t, f, sess, "1.10")
	step(t, f, sess, "no")
	step(t, f, sess, "1.12")
	step(t, f, sess, "no")
	reply = step(t, f, sess, "1.08")

	assert.True(t, reply.Done)
	assert.Contains(t, reply.Text, "PnL: $2.00")
	assert.Contains(t, reply.Text, "New Balance: $1002.00")

	require.Len(t, store.trades, 1)
	var trade *database.Trade
	for _, tr := range store.trades {
		trade = tr
	}
	assert.Equal(t, "EURUSD", trade.Currency)
	assert.Equal(t, "long", trade.Direction)
	require.Len(t, trade.Entries, 1)
	assert.True(t, trade.Entries[0].Equal(d("1.10")))
	require.Len(t, trade.Targets, 1)
	assert.True(t, trade.Targets[0].Equal(d("1.12")))
	require.Len(t, trade.LegPnls, 1)
	assert.True(t, trade.LegPnls[0].Equal(d("2.00")))
	assert.True(t, trade.StopLoss.Equal(d("1.08")))

	bal, err := store.GetDailyBalance(1, today)
	require.NoError(t, err)
	assert.True(t, bal.Balance.Equal(d("1002.00")), "got %s", bal.Balance)
	assert.Equal(t, database.Int64Slice{trade.ID}, bal.TradeIDs)

	// Gain percent computed against the pre-trade balance: 2/1000*100.
	require.Len(t, trade.GainPcts, 1)
	assert.True(t, trade.GainPcts[0].Equal(d("0.2")), "got %s", trade.GainPcts[0])
	assert.Empty(t, trade.LossPcts)
}

func TestFullFlow_TwoEntriesOneTarget(t *testing.T) {
	store := newMemStore()
	_, err := store.CreateDailyBalance(1, today, d("1000"))
	require.NoError(t, err)

	f := newTestFlow(store)
	sess := &session.Session{}
	f.Start(sess)

	step(t, f, sess, "XAUUSD")
	step(t, f, sess, "2")
	step(t, f, sess, "short")
	step(t, f, sess, "1900")
	step(t, f, sess, "yes")
	step(t, f, sess, "1910")
	step(t, f, sess, "1880") // single target, reused for the second entry
	step(t, f, sess, "no")
	reply := step(t, f, sess, "1950")

	assert.True(t, reply.Done)

	var trade *database.Trade
	for _, tr := range store.trades {
		trade = tr
	}
	require.Len(t, trade.LegPnls, 2, "one pnl per entry")
	// Short legs: -(1880-1900)*2*100 = 4000, -(1880-1910)*2*100 = 6000
	assert.True(t, trade.LegPnls[0].Equal(d("4000.00")), "got %s", trade.LegPnls[0])
	assert.True(t, trade.LegPnls[1].Equal(d("6000.00")), "got %s", trade.LegPnls[1])

	bal, _ := store.GetDailyBalance(1, today)
	assert.True(t, bal.Balance.Equal(d("11000.00")), "got %s", bal.Balance)
}

func TestPersistFailure_LeavesSessionRetryable(t *testing.T) {
	store := newMemStore()
	_, err := store.CreateDailyBalance(1, today, d("1000"))
	require.NoError(t, err)

	f := newTestFlow(store)
	sess := &session.Session{}
	f.Start(sess)
	for _, in := range []string{"EURUSD", "1", "long", "1.10", "no", "1.12", "no"} {
		step(t, f, sess, in)
	}

	store.failCreateTrade = true
	_, handleErr := f.Handle(1, sess, "1.08")
	require.Error(t, handleErr)
	assert.Equal(t, session.StepStopLoss, sess.Step, "step unchanged, user can retry")

	store.failCreateTrade = false
	reply := step(t, f, sess, "1.08")
	assert.True(t, reply.Done)
	require.Len(t, store.trades, 1)
}

func TestEditBalanceFlow(t *testing.T) {
	store := newMemStore()
	id, err := store.CreateDailyBalance(1, today, d("100"))
	require.NoError(t, err)

	f := newTestFlow(store)
	sess := &session.Session{}
	reply := f.StartEditBalance(sess, today)
	assert.Equal(t, fmt.Sprintf("Enter new amount for date %s:", today), reply.Text)

	reply = step(t, f, sess, "oops")
	assert.False(t, reply.Done)
	assert.Equal(t, session.StepEditBalance, sess.Step)

	reply = step(t, f, sess, "250.50")
	assert.True(t, reply.Done)
	assert.Equal(t, "Updated.", reply.Text)
	assert.True(t, store.balances[id].Balance.Equal(d("250.50")))
}

func TestEditBalance_MissingDay(t *testing.T) {
	f := newTestFlow(newMemStore())
	sess := &session.Session{}
	f.StartEditBalance(sess, "2020-01-01")

	reply := step(t, f, sess, "42")
	assert.True(t, reply.Done)
	assert.Equal(t, "Not found.", reply.Text)
}
