package occupancy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/teslashibe/go-occupancy/internal/httpc"
	"github.com/teslashibe/go-occupancy/internal/log"
)

// Alert is raised when occupancy reaches the configured maximum
type Alert struct {
	SessionID   string    `json:"session_id"`
	Subject     string    `json:"subject"`
	Message     string    `json:"message"`
	MaxCapacity int       `json:"max_capacity"`
	Occupancy   int       `json:"occupancy"`
	At          time.Time `json:"at"`

	Audience   Audience    `json:"audience,omitempty"`
	Recipients []Recipient `json:"recipients,omitempty"`
}

// capacityAlert builds the standard capacity notification
func capacityAlert(sessionID string, maxCapacity int, at time.Time) Alert {
	return Alert{
		SessionID:   sessionID,
		Subject:     "Automatic Capacity Alert",
		Message:     fmt.Sprintf("Be advised, the max capacity of %d has been reached.", maxCapacity),
		MaxCapacity: maxCapacity,
		Occupancy:   maxCapacity,
		At:          at,
	}
}

// Alerter delivers capacity alerts
type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// AlerterFunc adapts a function to Alerter
type AlerterFunc func(ctx context.Context, a Alert) error

func (f AlerterFunc) Alert(ctx context.Context, a Alert) error {
	return f(ctx, a)
}

// LogAlerter writes alerts to the log
type LogAlerter struct{}

func (LogAlerter) Alert(ctx context.Context, a Alert) error {
	log.Warn(a.Message, "subject", a.Subject, "max_capacity", a.MaxCapacity,
		"session", a.SessionID, "recipients", len(a.Recipients))
	return nil
}

// MultiAlerter fans an alert out to every alerter and joins their errors
type MultiAlerter []Alerter

func (m MultiAlerter) Alert(ctx context.Context, a Alert) error {
	var errs []error
	for _, al := range m {
		if err := al.Alert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WebhookAlerter POSTs alerts as JSON, e.g. to a chat or paging webhook
type WebhookAlerter struct {
	URL    string
	Client *http.Client // nil uses the shared client
}

func (w WebhookAlerter) Alert(ctx context.Context, a Alert) error {
	if err := httpc.PostJSON(ctx, w.Client, w.URL, a); err != nil {
		return fmt.Errorf("webhook alert: %w", err)
	}
	return nil
}
