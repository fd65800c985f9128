package occupancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/teslashibe/go-occupancy/internal/log"
)

var (
	// ErrContactNotFound is returned when removing an unknown contact
	ErrContactNotFound = errors.New("contact not found")

	// ErrInvalidContact wraps field validation failures
	ErrInvalidContact = errors.New("invalid contact")
)

var validate = validator.New()

// Role groups contacts for addressing notices
type Role string

const (
	RoleEmployee Role = "employee"
	RoleCustomer Role = "customer"
)

// Audience selects which contacts a notice goes to
type Audience string

const (
	AudienceEveryone  Audience = "everyone"
	AudienceEmployees Audience = "employees"
	AudienceCustomers Audience = "customers"
)

// Includes reports whether a contact with role is part of the audience
func (a Audience) Includes(role Role) bool {
	switch a {
	case AudienceEveryone:
		return true
	case AudienceEmployees:
		return role == RoleEmployee
	case AudienceCustomers:
		return role == RoleCustomer
	}
	return false
}

// Contact is a person who receives capacity alerts and notices.
// Every field except the preferences is required.
type Contact struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"required"`
	Role        Role   `json:"role" validate:"required,oneof=employee customer"`
	PreferEmail bool   `json:"prefer_email"`
	PreferPhone bool   `json:"prefer_phone"`
}

// Validate checks that the contact is complete
func (c Contact) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContact, err)
	}
	return nil
}

// FullName joins first and last name
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Recipient is one addressee of an alert
type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Recipients returns the contacts in audience who asked to be emailed
func Recipients(contacts []Contact, audience Audience) []Recipient {
	var out []Recipient
	for _, c := range contacts {
		if !c.PreferEmail || !audience.Includes(c.Role) {
			continue
		}
		out = append(out, Recipient{Name: c.FullName(), Email: c.Email})
	}
	return out
}

// ContactStore keeps the contact directory
type ContactStore interface {
	// AddContact validates and stores c, returning it with its ID set
	AddContact(ctx context.Context, c Contact) (Contact, error)

	// RemoveContact deletes a contact by ID
	RemoveContact(ctx context.Context, id int64) error

	// Contacts lists the directory ordered by ID
	Contacts(ctx context.Context) ([]Contact, error)
}

// Notice is a message addressed to part of the contact directory
type Notice struct {
	Audience Audience `json:"audience" validate:"required,oneof=everyone employees customers"`
	Subject  string   `json:"subject" validate:"required"`
	Message  string   `json:"message" validate:"required"`
}

// Validate checks the audience and that subject and message are set
func (n Notice) Validate() error {
	return validate.Struct(n)
}

// ContactAlerter addresses alerts to the contact directory and hands them
// to Next for delivery. Capacity alerts go to everyone.
type ContactAlerter struct {
	Contacts ContactStore
	Next     Alerter
}

func (c ContactAlerter) Alert(ctx context.Context, a Alert) error {
	return c.Send(ctx, AudienceEveryone, a)
}

// Send delivers a to the contacts in audience. A directory lookup failure
// is logged and the alert is still delivered without recipients.
func (c ContactAlerter) Send(ctx context.Context, audience Audience, a Alert) error {
	contacts, err := c.Contacts.Contacts(ctx)
	if err != nil {
		log.Warn("contact lookup failed", "audience", string(audience), "error", err)
	}
	a.Audience = audience
	a.Recipients = Recipients(contacts, audience)
	return c.Next.Alert(ctx, a)
}
