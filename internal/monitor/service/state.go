package service

import (
	"sync"
	"time"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/domain"
)

// HistoryLimit caps the per-account history length. The oldest entries fall
// off once the cap is reached.
const HistoryLimit = 100

// StateStore holds the latest observation and a bounded history for every
// account that has been polled at least once. It is safe for concurrent use.
type StateStore struct {
	mu       sync.RWMutex
	accounts map[string]*accountState
}

type accountState struct {
	latest  domain.Snapshot
	history []domain.Snapshot
}

// NewStateStore returns an empty store.
func NewStateStore() *StateStore {
	return &StateStore{accounts: make(map[string]*accountState)}
}

// RecordSuccess stores a successful observation. The returned flag reports
// whether the observation differs from the previous one; a repeat of the same
// coarse state only refreshes timestamps and does not grow history. A success
// following an error is always a change.
func (s *StateStore) RecordSuccess(accountID string, profile *domain.Profile, at time.Time) (domain.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state(accountID)
	snap := domain.Snapshot{
		Profile:    profile,
		StatusKind: domain.StatusOK,
		ObservedAt: at,
	}

	if len(state.history) > 0 &&
		state.latest.StatusKind == domain.StatusOK &&
		state.latest.SameProfileObservation(snap) {
		return state.refresh(at), false
	}
	return state.append(snap), true
}

// RecordError stores a failed observation with a human-readable message. The
// snapshot keeps the last known profile when transitioning out of OK so the
// dashboard does not blank the account. A repeated error is not a change,
// whatever its message.
func (s *StateStore) RecordError(accountID, message string, at time.Time) (domain.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state(accountID)
	if len(state.history) > 0 && state.latest.StatusKind == domain.StatusError {
		return state.refresh(at), false
	}

	snap := domain.Snapshot{
		Profile:      state.latest.Profile,
		StatusKind:   domain.StatusError,
		ErrorMessage: message,
		ObservedAt:   at,
	}
	return state.append(snap), true
}

func (s *StateStore) state(accountID string) *accountState {
	state, ok := s.accounts[accountID]
	if !ok {
		state = &accountState{}
		s.accounts[accountID] = state
	}
	return state
}

func (st *accountState) refresh(at time.Time) domain.Snapshot {
	st.latest.ObservedAt = at
	st.history[len(st.history)-1].ObservedAt = at
	return st.latest
}

func (st *accountState) append(snap domain.Snapshot) domain.Snapshot {
	st.latest = snap
	st.history = append(st.history, snap)
	if len(st.history) > HistoryLimit {
		st.history = st.history[len(st.history)-HistoryLimit:]
	}
	return snap
}

// Latest returns the most recent observation for the account, if any.
func (s *StateStore) Latest(accountID string) (domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.accounts[accountID]
	if !ok {
		return domain.Snapshot{}, false
	}
	return state.latest, true
}

// History returns a copy of the account's observation history, oldest first.
func (s *StateStore) History(accountID string) []domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.accounts[accountID]
	if !ok {
		return nil
	}
	out := make([]domain.Snapshot, len(state.history))
	copy(out, state.history)
	return out
}
