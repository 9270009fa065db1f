/*
reminder.go - Scheduled payment reminder emails

PURPOSE:
  On each due day (the 3rd and the 18th) mails every account holder a
  summary of the savers who have not yet paid that track's due. Advisory
  only; nothing here touches the ledger.

DESIGN:
  - robfig/cron fires at 08:00 server time on days 3 and 18
  - The service decides per user whether a reminder applies (reminders
    can be disabled in the fund settings)
  - Mail goes through the Mailer interface so tests can capture sends

USAGE:
  rem := api.NewReminderScheduler(svc, store, mailer, log)
  rem.Start()
  // ... later
  rem.Stop()

SEE ALSO:
  - fund/service.go: ReminderDue
  - cmd/server/main.go: Wiring and SMTP configuration
*/
package api

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ahorra/fund-engine/engine"
	"github.com/ahorra/fund-engine/fund"
)

// Mailer sends one message. Implemented by SMTPMailer in production and
// by a capture fake in tests.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
	Host     string
}

func (m *SMTPMailer) Send(to, subject, body string) error {
	e := email.NewEmail()
	e.From = m.From
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	return e.Send(m.Addr, auth)
}

// ReminderScheduler runs the due-day reminder job.
type ReminderScheduler struct {
	Service *fund.Service
	Store   fund.Store
	Mailer  Mailer
	Log     *logrus.Logger

	cron *cron.Cron
}

func NewReminderScheduler(svc *fund.Service, store fund.Store, mailer Mailer, log *logrus.Logger) *ReminderScheduler {
	return &ReminderScheduler{
		Service: svc,
		Store:   store,
		Mailer:  mailer,
		Log:     log,
		cron:    cron.New(),
	}
}

// Start schedules the job for 08:00 on the 3rd and 18th of every month.
func (rs *ReminderScheduler) Start() error {
	_, err := rs.cron.AddFunc("0 8 3,18 * *", rs.RunNow)
	if err != nil {
		return err
	}
	rs.cron.Start()
	rs.Log.Info("reminder scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (rs *ReminderScheduler) Stop() {
	<-rs.cron.Stop().Done()
	rs.Log.Info("reminder scheduler stopped")
}

// RunNow executes one reminder sweep immediately.
func (rs *ReminderScheduler) RunNow() {
	ctx := context.Background()
	now := rs.Service.Now()

	users, err := rs.Store.ListUsers(ctx)
	if err != nil {
		rs.Log.WithError(err).Error("reminder sweep: listing users failed")
		return
	}

	sent := 0
	for _, u := range users {
		sess := fund.Session{UserID: u.ID}

		due, track, err := rs.Service.ReminderDue(ctx, sess, now)
		if err != nil || !due {
			continue
		}

		unpaid, err := rs.unpaidSavers(ctx, sess, track)
		if err != nil {
			rs.Log.WithError(err).WithField("user_id", u.ID).Error("reminder sweep: loading savers failed")
			continue
		}
		if len(unpaid) == 0 {
			continue
		}

		subject := fmt.Sprintf("Payment reminder: %s due today", trackLabel(track))
		body := fmt.Sprintf(
			"Hello %s,\n\nThe %s payment is due today. Savers with pending dues:\n\n  %s\n",
			u.Name, trackLabel(track), strings.Join(unpaid, "\n  "))

		if err := rs.Mailer.Send(u.Email, subject, body); err != nil {
			rs.Log.WithError(err).WithField("user_id", u.ID).Error("reminder mail failed")
			continue
		}
		sent++
	}

	if sent > 0 {
		rs.Log.WithField("sent", sent).Info("reminder sweep completed")
	}
}

// unpaidSavers names the savers whose current-month due for the track is
// still unpaid.
func (rs *ReminderScheduler) unpaidSavers(ctx context.Context, sess fund.Session, track engine.Track) ([]string, error) {
	savers, err := rs.Service.ListSavers(ctx, sess)
	if err != nil {
		return nil, err
	}

	currentMonth := engine.MonthIDOf(rs.Service.Now())
	var names []string
	for _, s := range savers {
		for _, p := range s.Periods {
			if p.Month.Equal(currentMonth) && !p.Paid(track) {
				names = append(names, s.Name)
				break
			}
		}
	}
	return names, nil
}

func trackLabel(t engine.Track) string {
	if t == engine.TrackQ1 {
		return "first quincena"
	}
	return "second quincena"
}
