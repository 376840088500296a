// Package session holds per-chat conversational state. Sessions live in
// memory only; a process restart or a reset drops everything, including any
// selection tokens handed out to inline keyboards.
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"journalbot/internal/pnl"
)

// Step is the current position in a conversational flow.
type Step int

const (
	StepIdle Step = iota
	StepCurrency
	StepBalance
	StepLots
	StepDirection
	StepEntry1
	StepEntry2Q
	StepEntry2
	StepTP1
	StepTP2Q
	StepTP2
	StepStopLoss
	StepEditBalance
)

// Draft accumulates trade fields across entry steps.
type Draft struct {
	Currency  string
	Lots      decimal.Decimal
	Direction pnl.Direction
	Entries   []decimal.Decimal
	Targets   []decimal.Decimal
	StopLoss  decimal.Decimal
}

// Session is one chat's in-flight conversation. Step and Draft are only
// touched by the chat's serialized update handler; the selection map gets its
// own lock because keyboards can register tokens while a report handler
// resolves them.
type Session struct {
	Step    Step
	Draft   Draft
	EditDay string // date being edited in the edit-balance flow

	selMu      sync.Mutex
	selections map[string][]int64
}

const tokenLen = 18

// RegisterSelection stores a list of balance ids under a short opaque token
// bounded enough to fit in callback data.
func (s *Session) RegisterSelection(ids []int64) string {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	if s.selections == nil {
		s.selections = make(map[string][]int64)
	}
	token := uuid.NewString()[:tokenLen]
	s.selections[token] = ids
	return token
}

// ResolveSelection looks a token up. A miss is a normal outcome after a reset
// or restart; callers prompt the user to retry.
func (s *Session) ResolveSelection(token string) ([]int64, bool) {
	s.selMu.Lock()
	defer s.selMu.Unlock()
	ids, ok := s.selections[token]
	return ids, ok
}

// Store maps chat ids to sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Get returns the chat's session, creating an idle one if needed.
func (st *Store) Get(chatID int64) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[chatID]
	if !ok {
		s = &Session{}
		st.sessions[chatID] = s
	}
	return s
}

// Reset replaces the chat's session with a fresh idle one. Tokens issued by
// the old session are gone from this point on.
func (st *Store) Reset(chatID int64) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	s := &Session{}
	st.sessions[chatID] = s
	return s
}
