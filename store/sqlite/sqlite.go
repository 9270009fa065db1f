/*
Package sqlite provides the SQLite-backed fund.Store.

PURPOSE:
  Implements the persistence boundary the fund service works against. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  users:    Account holders (one fund scope per user)
  settings: Fund configuration, one row per user
  savers:   Fund members
  periods:  One row per saver per calendar month (the due ledger)
  loans:    Disbursed loans with snapshotted amortization figures

ATOMICITY:
  Every mutation is a single statement or a single database transaction,
  so the cash aggregator never observes a half-applied write. Deleting a
  saver cascades to its periods and loans via foreign keys.

MONEY:
  Monetary columns are stored as decimal strings and parsed back with
  shopspring/decimal. Never floats.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/fund.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := fund.NewService(store, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - fund/store.go: Interface definition
  - fund/service.go: Higher-level service using Store
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ahorra/fund-engine/engine"
	"github.com/ahorra/fund-engine/fund"
)

// Store implements fund.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		created_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		user_id          TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		interest_rate    TEXT NOT NULL,
		start_date       TEXT NOT NULL,
		end_date         TEXT NOT NULL,
		enable_reminders INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS savers (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name             TEXT NOT NULL,
		bi_weekly_amount TEXT NOT NULL,
		start_date       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_savers_user ON savers(user_id);

	CREATE TABLE IF NOT EXISTS periods (
		id              TEXT PRIMARY KEY,
		saver_id        TEXT NOT NULL REFERENCES savers(id) ON DELETE CASCADE,
		user_id         TEXT NOT NULL,
		month           TEXT NOT NULL,
		q1_paid         INTEGER NOT NULL DEFAULT 0,
		q2_paid         INTEGER NOT NULL DEFAULT 0,
		q1_penalty      TEXT NOT NULL DEFAULT '0',
		q1_penalty_paid INTEGER NOT NULL DEFAULT 0,
		q2_penalty      TEXT NOT NULL DEFAULT '0',
		q2_penalty_paid INTEGER NOT NULL DEFAULT 0,
		is_locked       INTEGER NOT NULL DEFAULT 0,
		UNIQUE (saver_id, month)
	);
	CREATE INDEX IF NOT EXISTS idx_periods_saver_month ON periods(saver_id, month);

	CREATE TABLE IF NOT EXISTS loans (
		id              TEXT PRIMARY KEY,
		saver_id        TEXT NOT NULL REFERENCES savers(id) ON DELETE CASCADE,
		user_id         TEXT NOT NULL,
		principal       TEXT NOT NULL,
		duration_months INTEGER NOT NULL,
		interest_rate   TEXT NOT NULL,
		total_interest  TEXT NOT NULL,
		total_to_pay    TEXT NOT NULL,
		monthly_payment TEXT NOT NULL,
		start_date      TEXT NOT NULL,
		status          TEXT NOT NULL,
		payments_made   INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_loans_saver ON loans(saver_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u fund.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt.Format(time.RFC3339))
	if err != nil {
		// UNIQUE constraint on email is the only way this insert fails
		// under normal operation.
		return &engine.ValidationError{Field: "email", Message: "email already registered"}
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*fund.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*fund.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (s *Store) queryUser(ctx context.Context, query, arg string) (*fund.User, error) {
	var u fund.User
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Kind: "user", ID: arg}
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]fund.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []fund.User
	for rows.Next() {
		var u fund.User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt); err != nil {
			return nil, err
		}
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUser(ctx context.Context, u fund.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET name = ?, email = ?, password_hash = ? WHERE id = ?`,
		u.Name, u.Email, u.PasswordHash, u.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "user", u.ID)
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *Store) GetSettings(ctx context.Context, userID string) (engine.FundSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rate, start, end string
	var reminders int
	err := s.db.QueryRowContext(ctx, `
		SELECT interest_rate, start_date, end_date, enable_reminders
		FROM settings WHERE user_id = ?`, userID).
		Scan(&rate, &start, &end, &reminders)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.FundSettings{}, &engine.NotFoundError{Kind: "settings", ID: userID}
	}
	if err != nil {
		return engine.FundSettings{}, err
	}

	out := engine.FundSettings{EnableReminders: reminders != 0}
	if out.InterestRate, err = decimal.NewFromString(rate); err != nil {
		return engine.FundSettings{}, fmt.Errorf("corrupt interest_rate %q: %w", rate, err)
	}
	if out.StartDate, err = time.Parse(time.RFC3339, start); err != nil {
		return engine.FundSettings{}, fmt.Errorf("corrupt start_date %q: %w", start, err)
	}
	if out.EndDate, err = time.Parse(time.RFC3339, end); err != nil {
		return engine.FundSettings{}, fmt.Errorf("corrupt end_date %q: %w", end, err)
	}
	return out, nil
}

func (s *Store) SaveSettings(ctx context.Context, userID string, fs engine.FundSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (user_id, interest_rate, start_date, end_date, enable_reminders)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			interest_rate = excluded.interest_rate,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			enable_reminders = excluded.enable_reminders`,
		userID, fs.InterestRate.String(),
		fs.StartDate.Format(time.RFC3339), fs.EndDate.Format(time.RFC3339),
		boolToInt(fs.EnableReminders))
	return err
}

// =============================================================================
// SAVERS
// =============================================================================

func (s *Store) ListSavers(ctx context.Context, userID string) ([]engine.Saver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, bi_weekly_amount, start_date
		FROM savers WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var savers []engine.Saver
	for rows.Next() {
		saver, err := scanSaver(rows)
		if err != nil {
			return nil, err
		}
		savers = append(savers, saver)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range savers {
		if err := s.attachChildren(ctx, &savers[i]); err != nil {
			return nil, err
		}
	}
	return savers, nil
}

func (s *Store) GetSaver(ctx context.Context, userID string, id engine.SaverID) (*engine.Saver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSaver(ctx, userID, id)
}

func (s *Store) getSaver(ctx context.Context, userID string, id engine.SaverID) (*engine.Saver, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, bi_weekly_amount, start_date
		FROM savers WHERE user_id = ? AND id = ?`, userID, id)

	saver, err := scanSaver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Kind: "saver", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachChildren(ctx, &saver); err != nil {
		return nil, err
	}
	return &saver, nil
}

// rowScanner lets scan helpers accept both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSaver(r rowScanner) (engine.Saver, error) {
	var saver engine.Saver
	var amount, start string
	if err := r.Scan(&saver.ID, &saver.Name, &amount, &start); err != nil {
		return engine.Saver{}, err
	}
	var err error
	if saver.BiWeeklyAmount, err = decimal.NewFromString(amount); err != nil {
		return engine.Saver{}, fmt.Errorf("corrupt bi_weekly_amount %q: %w", amount, err)
	}
	if saver.StartDate, err = time.Parse(time.RFC3339, start); err != nil {
		return engine.Saver{}, fmt.Errorf("corrupt start_date %q: %w", start, err)
	}
	return saver, nil
}

// attachChildren loads the saver's periods (chronological) and loans.
// The "2006-01" month key sorts lexicographically in date order.
func (s *Store) attachChildren(ctx context.Context, saver *engine.Saver) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, saver_id, month, q1_paid, q2_paid,
		       q1_penalty, q1_penalty_paid, q2_penalty, q2_penalty_paid, is_locked
		FROM periods WHERE saver_id = ? ORDER BY month`, saver.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	saver.Periods = nil
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return err
		}
		saver.Periods = append(saver.Periods, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	loanRows, err := s.db.QueryContext(ctx, `
		SELECT id, saver_id, principal, duration_months, interest_rate,
		       total_interest, total_to_pay, monthly_payment, start_date, status, payments_made
		FROM loans WHERE saver_id = ? ORDER BY start_date`, saver.ID)
	if err != nil {
		return err
	}
	defer loanRows.Close()

	saver.Loans = nil
	for loanRows.Next() {
		l, err := scanLoan(loanRows)
		if err != nil {
			return err
		}
		saver.Loans = append(saver.Loans, l)
	}
	return loanRows.Err()
}

func (s *Store) CreateSaver(ctx context.Context, userID string, saver engine.Saver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO savers (id, user_id, name, bi_weekly_amount, start_date)
		VALUES (?, ?, ?, ?, ?)`,
		saver.ID, userID, saver.Name, saver.BiWeeklyAmount.String(),
		saver.StartDate.Format(time.RFC3339))
	if err != nil {
		return err
	}

	for _, p := range saver.Periods {
		if err := insertPeriod(ctx, tx, userID, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) UpdateSaver(ctx context.Context, userID string, saver engine.Saver) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE savers SET name = ?, bi_weekly_amount = ?
		WHERE user_id = ? AND id = ?`,
		saver.Name, saver.BiWeeklyAmount.String(), userID, saver.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "saver", string(saver.ID))
}

func (s *Store) DeleteSaver(ctx context.Context, userID string, id engine.SaverID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Foreign keys cascade the delete to periods and loans.
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM savers WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return err
	}
	return requireRow(res, "saver", string(id))
}

// =============================================================================
// PERIODS
// =============================================================================

func scanPeriod(r rowScanner) (engine.Period, error) {
	var p engine.Period
	var month, q1Pen, q2Pen string
	var q1Paid, q2Paid, q1PenPaid, q2PenPaid, locked int
	if err := r.Scan(&p.ID, &p.SaverID, &month, &q1Paid, &q2Paid,
		&q1Pen, &q1PenPaid, &q2Pen, &q2PenPaid, &locked); err != nil {
		return engine.Period{}, err
	}

	var err error
	if p.Month, err = engine.ParseMonthID(month); err != nil {
		return engine.Period{}, fmt.Errorf("corrupt month %q: %w", month, err)
	}
	if p.Q1Penalty, err = decimal.NewFromString(q1Pen); err != nil {
		return engine.Period{}, fmt.Errorf("corrupt q1_penalty %q: %w", q1Pen, err)
	}
	if p.Q2Penalty, err = decimal.NewFromString(q2Pen); err != nil {
		return engine.Period{}, fmt.Errorf("corrupt q2_penalty %q: %w", q2Pen, err)
	}
	p.Q1Paid = q1Paid != 0
	p.Q2Paid = q2Paid != 0
	p.Q1PenaltyPaid = q1PenPaid != 0
	p.Q2PenaltyPaid = q2PenPaid != 0
	p.Locked = locked != 0
	return p, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertPeriod(ctx context.Context, db execer, userID string, p engine.Period) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO periods (id, saver_id, user_id, month, q1_paid, q2_paid,
			q1_penalty, q1_penalty_paid, q2_penalty, q2_penalty_paid, is_locked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.SaverID, userID, p.Month.String(),
		boolToInt(p.Q1Paid), boolToInt(p.Q2Paid),
		p.Q1Penalty.String(), boolToInt(p.Q1PenaltyPaid),
		p.Q2Penalty.String(), boolToInt(p.Q2PenaltyPaid),
		boolToInt(p.Locked))
	return err
}

func (s *Store) GetSaverByPeriod(ctx context.Context, userID string, id engine.PeriodID) (*engine.Saver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var saverID engine.SaverID
	err := s.db.QueryRowContext(ctx,
		`SELECT saver_id FROM periods WHERE user_id = ? AND id = ?`, userID, id).
		Scan(&saverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Kind: "period", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	return s.getSaver(ctx, userID, saverID)
}

func (s *Store) SavePeriod(ctx context.Context, userID string, p engine.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE periods SET
			q1_paid = ?, q2_paid = ?,
			q1_penalty = ?, q1_penalty_paid = ?,
			q2_penalty = ?, q2_penalty_paid = ?,
			is_locked = ?
		WHERE user_id = ? AND id = ?`,
		boolToInt(p.Q1Paid), boolToInt(p.Q2Paid),
		p.Q1Penalty.String(), boolToInt(p.Q1PenaltyPaid),
		p.Q2Penalty.String(), boolToInt(p.Q2PenaltyPaid),
		boolToInt(p.Locked), userID, p.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "period", string(p.ID))
}

func (s *Store) AppendPeriod(ctx context.Context, userID string, p engine.Period) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPeriod(ctx, s.db, userID, p)
}

// =============================================================================
// LOANS
// =============================================================================

func scanLoan(r rowScanner) (engine.Loan, error) {
	var l engine.Loan
	var principal, rate, interest, total, monthly, start, status string
	if err := r.Scan(&l.ID, &l.SaverID, &principal, &l.DurationMonths, &rate,
		&interest, &total, &monthly, &start, &status, &l.PaymentsMade); err != nil {
		return engine.Loan{}, err
	}

	var err error
	if l.Principal, err = decimal.NewFromString(principal); err != nil {
		return engine.Loan{}, fmt.Errorf("corrupt principal %q: %w", principal, err)
	}
	if l.InterestRate, err = decimal.NewFromString(rate); err != nil {
		return engine.Loan{}, fmt.Errorf("corrupt interest_rate %q: %w", rate, err)
	}
	if l.TotalInterest, err = decimal.NewFromString(interest); err != nil {
		return engine.Loan{}, fmt.Errorf("corrupt total_interest %q: %w", interest, err)
	}
	if l.TotalToPay, err = decimal.NewFromString(total); err != nil {
		return engine.Loan{}, fmt.Errorf("corrupt total_to_pay %q: %w", total, err)
	}
	if l.MonthlyPayment, err = decimal.NewFromString(monthly); err != nil {
		return engine.Loan{}, fmt.Errorf("corrupt monthly_payment %q: %w", monthly, err)
	}
	if l.StartDate, err = time.Parse(time.RFC3339, start); err != nil {
		return engine.Loan{}, fmt.Errorf("corrupt start_date %q: %w", start, err)
	}
	l.Status = engine.LoanStatus(status)
	return l, nil
}

func (s *Store) GetLoan(ctx context.Context, userID string, id engine.LoanID) (*engine.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, saver_id, principal, duration_months, interest_rate,
		       total_interest, total_to_pay, monthly_payment, start_date, status, payments_made
		FROM loans WHERE user_id = ? AND id = ?`, userID, id)

	l, err := scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &engine.NotFoundError{Kind: "loan", ID: string(id)}
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) CreateLoan(ctx context.Context, userID string, l engine.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loans (id, saver_id, user_id, principal, duration_months,
			interest_rate, total_interest, total_to_pay, monthly_payment,
			start_date, status, payments_made)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.SaverID, userID, l.Principal.String(), l.DurationMonths,
		l.InterestRate.String(), l.TotalInterest.String(), l.TotalToPay.String(),
		l.MonthlyPayment.String(), l.StartDate.Format(time.RFC3339),
		string(l.Status), l.PaymentsMade)
	return err
}

func (s *Store) SaveLoan(ctx context.Context, userID string, l engine.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE loans SET status = ?, payments_made = ?
		WHERE user_id = ? AND id = ?`,
		string(l.Status), l.PaymentsMade, userID, l.ID)
	if err != nil {
		return err
	}
	return requireRow(res, "loan", string(l.ID))
}

func (s *Store) DeleteLoan(ctx context.Context, userID string, id engine.LoanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM loans WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return err
	}
	return requireRow(res, "loan", string(id))
}

// =============================================================================
// HELPERS
// =============================================================================

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &engine.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
