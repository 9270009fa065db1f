/*
Package fund orchestrates the savings-fund engine over a persistence Store.

PURPOSE:
  The engine package is pure: it computes verdicts and next states from
  values. This package is the calling context around it: it owns the
  Store interface, applies every mutation as a single
  atomic store call, serializes loan creation per saver, and threads the
  evaluation instant into every engine call.

KEY INTERFACES:
  Store: savers, periods, loans, fund settings and users, all scoped to an
  account (one user owns one fund).

IMPLEMENTATIONS:
  - store/sqlite: production path (transactions per mutation)
  - store/memory: in-memory store for tests and dev

SEE ALSO:
  - service.go: The operations exposed to the API layer
*/
package fund

import (
	"context"
	"time"

	"github.com/ahorra/fund-engine/engine"
)

// User is an account holder. One user owns one fund scope: their savers,
// loans and settings are invisible to other users.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session is the explicit auth scope passed into every operation. It
// replaces any ambient module-level session state; construction happens at
// login, teardown at logout.
type Session struct {
	UserID string
}

// Store is the persistence boundary. Every method that mutates state must
// apply the mutation atomically: a concurrent reader never observes a
// half-applied write.
//
// Savers are returned with their periods in chronological order and their
// loans attached; the engine relies on that ordering.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u User) error
	// ListUsers feeds the reminder scheduler, which iterates all fund scopes.
	ListUsers(ctx context.Context) ([]User, error)

	// Fund settings, one row per user scope.
	GetSettings(ctx context.Context, userID string) (engine.FundSettings, error)
	SaveSettings(ctx context.Context, userID string, s engine.FundSettings) error

	// Savers
	ListSavers(ctx context.Context, userID string) ([]engine.Saver, error)
	GetSaver(ctx context.Context, userID string, id engine.SaverID) (*engine.Saver, error)
	CreateSaver(ctx context.Context, userID string, s engine.Saver) error
	UpdateSaver(ctx context.Context, userID string, s engine.Saver) error
	// DeleteSaver cascades to the saver's periods and loans.
	DeleteSaver(ctx context.Context, userID string, id engine.SaverID) error

	// Periods. GetSaverByPeriod resolves a period reference to its owning
	// saver with the full sequence loaded (the lock chain needs it).
	GetSaverByPeriod(ctx context.Context, userID string, id engine.PeriodID) (*engine.Saver, error)
	SavePeriod(ctx context.Context, userID string, p engine.Period) error
	AppendPeriod(ctx context.Context, userID string, p engine.Period) error

	// Loans
	GetLoan(ctx context.Context, userID string, id engine.LoanID) (*engine.Loan, error)
	CreateLoan(ctx context.Context, userID string, l engine.Loan) error
	SaveLoan(ctx context.Context, userID string, l engine.Loan) error
	DeleteLoan(ctx context.Context, userID string, id engine.LoanID) error
}
