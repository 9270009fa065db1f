// Package memory provides an in-memory fund.Store for tests and dev.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ahorra/fund-engine/engine"
	"github.com/ahorra/fund-engine/fund"
)

// Store keeps everything in maps behind one mutex. Each method is a
// single critical section, which gives the same atomicity guarantee the
// SQLite store gets from transactions.
type Store struct {
	mu       sync.RWMutex
	users    map[string]fund.User // by ID
	settings map[string]engine.FundSettings
	savers   map[string]map[engine.SaverID]*saverRecord // userID -> savers
}

type saverRecord struct {
	saver engine.Saver // Periods/Loans are the backing slices
}

func New() *Store {
	return &Store{
		users:    make(map[string]fund.User),
		settings: make(map[string]engine.FundSettings),
		savers:   make(map[string]map[engine.SaverID]*saverRecord),
	}
}

// =============================================================================
// USERS
// =============================================================================

func (m *Store) CreateUser(_ context.Context, u fund.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return &engine.ValidationError{Field: "email", Message: "email already registered"}
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *Store) GetUser(_ context.Context, id string) (*fund.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "user", ID: id}
	}
	return &u, nil
}

func (m *Store) GetUserByEmail(_ context.Context, email string) (*fund.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			u := u
			return &u, nil
		}
	}
	return nil, &engine.NotFoundError{Kind: "user", ID: email}
}

func (m *Store) UpdateUser(_ context.Context, u fund.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; !ok {
		return &engine.NotFoundError{Kind: "user", ID: u.ID}
	}
	m.users[u.ID] = u
	return nil
}

func (m *Store) ListUsers(_ context.Context) ([]fund.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]fund.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Store) GetSettings(_ context.Context, userID string) (engine.FundSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.settings[userID]
	if !ok {
		return engine.FundSettings{}, &engine.NotFoundError{Kind: "settings", ID: userID}
	}
	return s, nil
}

func (m *Store) SaveSettings(_ context.Context, userID string, s engine.FundSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[userID] = s
	return nil
}

// =============================================================================
// SAVERS
// =============================================================================

func (m *Store) ListSavers(_ context.Context, userID string) ([]engine.Saver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Saver
	for _, rec := range m.savers[userID] {
		out = append(out, copySaver(rec.saver))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Store) GetSaver(_ context.Context, userID string, id engine.SaverID) (*engine.Saver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSaverLocked(userID, id)
}

func (m *Store) getSaverLocked(userID string, id engine.SaverID) (*engine.Saver, error) {
	rec, ok := m.savers[userID][id]
	if !ok {
		return nil, &engine.NotFoundError{Kind: "saver", ID: string(id)}
	}
	s := copySaver(rec.saver)
	return &s, nil
}

func (m *Store) CreateSaver(_ context.Context, userID string, s engine.Saver) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.savers[userID] == nil {
		m.savers[userID] = make(map[engine.SaverID]*saverRecord)
	}
	m.savers[userID][s.ID] = &saverRecord{saver: copySaver(s)}
	return nil
}

func (m *Store) UpdateSaver(_ context.Context, userID string, s engine.Saver) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.savers[userID][s.ID]
	if !ok {
		return &engine.NotFoundError{Kind: "saver", ID: string(s.ID)}
	}
	rec.saver.Name = s.Name
	rec.saver.BiWeeklyAmount = s.BiWeeklyAmount
	return nil
}

func (m *Store) DeleteSaver(_ context.Context, userID string, id engine.SaverID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.savers[userID][id]; !ok {
		return &engine.NotFoundError{Kind: "saver", ID: string(id)}
	}
	delete(m.savers[userID], id) // periods and loans go with it
	return nil
}

// =============================================================================
// PERIODS
// =============================================================================

func (m *Store) GetSaverByPeriod(_ context.Context, userID string, id engine.PeriodID) (*engine.Saver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.savers[userID] {
		for _, p := range rec.saver.Periods {
			if p.ID == id {
				s := copySaver(rec.saver)
				return &s, nil
			}
		}
	}
	return nil, &engine.NotFoundError{Kind: "period", ID: string(id)}
}

func (m *Store) SavePeriod(_ context.Context, userID string, p engine.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.savers[userID] {
		for i := range rec.saver.Periods {
			if rec.saver.Periods[i].ID == p.ID {
				rec.saver.Periods[i] = p
				return nil
			}
		}
	}
	return &engine.NotFoundError{Kind: "period", ID: string(p.ID)}
}

func (m *Store) AppendPeriod(_ context.Context, userID string, p engine.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.savers[userID][p.SaverID]
	if !ok {
		return &engine.NotFoundError{Kind: "saver", ID: string(p.SaverID)}
	}
	rec.saver.Periods = append(rec.saver.Periods, p)
	return nil
}

// =============================================================================
// LOANS
// =============================================================================

func (m *Store) GetLoan(_ context.Context, userID string, id engine.LoanID) (*engine.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.savers[userID] {
		for _, l := range rec.saver.Loans {
			if l.ID == id {
				l := l
				return &l, nil
			}
		}
	}
	return nil, &engine.NotFoundError{Kind: "loan", ID: string(id)}
}

func (m *Store) CreateLoan(_ context.Context, userID string, l engine.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.savers[userID][l.SaverID]
	if !ok {
		return &engine.NotFoundError{Kind: "saver", ID: string(l.SaverID)}
	}
	rec.saver.Loans = append(rec.saver.Loans, l)
	return nil
}

func (m *Store) SaveLoan(_ context.Context, userID string, l engine.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.savers[userID] {
		for i := range rec.saver.Loans {
			if rec.saver.Loans[i].ID == l.ID {
				rec.saver.Loans[i] = l
				return nil
			}
		}
	}
	return &engine.NotFoundError{Kind: "loan", ID: string(l.ID)}
}

func (m *Store) DeleteLoan(_ context.Context, userID string, id engine.LoanID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.savers[userID] {
		for i := range rec.saver.Loans {
			if rec.saver.Loans[i].ID == id {
				rec.saver.Loans = append(rec.saver.Loans[:i], rec.saver.Loans[i+1:]...)
				return nil
			}
		}
	}
	return &engine.NotFoundError{Kind: "loan", ID: string(id)}
}

// copySaver deep-copies the slices so callers never alias store state.
func copySaver(s engine.Saver) engine.Saver {
	out := s
	out.Periods = append([]engine.Period(nil), s.Periods...)
	out.Loans = append([]engine.Loan(nil), s.Loans...)
	return out
}
