package pipeline

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-occupancy/internal/log"
	"github.com/teslashibe/go-occupancy/pkg/analytics"
	"github.com/teslashibe/go-occupancy/pkg/occupancy"
	"github.com/teslashibe/go-occupancy/pkg/tracking"
	"github.com/teslashibe/go-occupancy/pkg/web"
)

var _ web.Controller = (*App)(nil)

// Status reports occupancy and counter state
func (a *App) Status() web.Status {
	sess := a.ledger.Session()
	return web.Status{
		SessionID:   sess.ID,
		Occupancy:   a.ledger.Occupancy(),
		MaxCapacity: sess.MaxCapacity,
		Paused:      a.source.Paused(),
		Counter:     a.counter.Snapshot(),
	}
}

// Settings returns the active counter configuration
func (a *App) Settings() tracking.Config {
	return a.counter.Config()
}

// UpdateSettings reconfigures the counter from the next frame
func (a *App) UpdateSettings(cfg tracking.Config) error {
	return a.counter.Reconfigure(cfg)
}

// SetMaxCapacity changes the alert threshold of the current session
func (a *App) SetMaxCapacity(ctx context.Context, n int) error {
	return a.ledger.SetMaxCapacity(ctx, n)
}

// Reset forgets tracked people and starts a new counting session
func (a *App) Reset(ctx context.Context) error {
	a.counter.Reset()
	if err := a.ledger.Restart(ctx); err != nil {
		return fmt.Errorf("restart session: %w", err)
	}
	log.Info("counting reset", "session", a.ledger.Session().ID)
	return nil
}

// PauseSource stops feeding frames to the counter
func (a *App) PauseSource() {
	a.source.Pause()
	log.Info("video paused")
}

// ResumeSource resumes feeding frames
func (a *App) ResumeSource() {
	a.source.Resume()
	log.Info("video resumed")
}

// Report summarises the current session from the store
func (a *App) Report(ctx context.Context) (analytics.Report, error) {
	sess := a.ledger.Session()
	records, err := a.store.Events(ctx, sess.ID)
	if err != nil {
		return analytics.Report{}, fmt.Errorf("load events: %w", err)
	}
	return analytics.BuildReport(sess, records), nil
}

// Contacts lists the alert directory
func (a *App) Contacts(ctx context.Context) ([]occupancy.Contact, error) {
	return a.store.Contacts(ctx)
}

// AddContact stores a new alert recipient
func (a *App) AddContact(ctx context.Context, c occupancy.Contact) (occupancy.Contact, error) {
	return a.store.AddContact(ctx, c)
}

// RemoveContact deletes an alert recipient
func (a *App) RemoveContact(ctx context.Context, id int64) error {
	return a.store.RemoveContact(ctx, id)
}

// Notify sends a manual notice to the contacts in n.Audience
func (a *App) Notify(ctx context.Context, n occupancy.Notice) error {
	if err := n.Validate(); err != nil {
		return err
	}
	sess := a.ledger.Session()
	alert := occupancy.Alert{
		SessionID:   sess.ID,
		Subject:     n.Subject,
		Message:     n.Message,
		MaxCapacity: sess.MaxCapacity,
		Occupancy:   a.ledger.Occupancy(),
		At:          a.now(),
	}
	if err := a.notifier.Send(ctx, n.Audience, alert); err != nil {
		return fmt.Errorf("send notice: %w", err)
	}
	log.Info("notice sent", "audience", string(n.Audience), "subject", n.Subject)
	return nil
}
