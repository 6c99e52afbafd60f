// Package featured provides paid featured listings: agents pinned above the
// organic ranking for a purchased time window. Featuring changes placement
// only; it never touches scores.
package featured

import (
	"errors"
	"time"

	"github.com/moltworks/agentrank/internal/category"
)

// Listing status values.
const (
	StatusPending = "pending" // checkout started, payment not confirmed
	StatusActive  = "active"  // paid, pinned while within its window
	StatusExpired = "expired" // window elapsed, kept for billing history
)

// Validation errors.
var (
	ErrMissingAgentID  = errors.New("listing agent_id is required")
	ErrInvalidWindow   = errors.New("listing end_date must not precede start_date")
	ErrInvalidAmount   = errors.New("listing amount must be positive")
	ErrUnknownCategory = errors.New("listing category is not in the taxonomy")
	ErrListingNotFound = errors.New("featured listing not found")
)

// Listing is one purchased featured slot. Category scopes the placement to
// one taxonomy category's view; empty means the global directory view. A nil
// EndDate makes the listing open-ended.
type Listing struct {
	ID                    string     `json:"id"`
	AgentID               string     `json:"agent_id"`
	Category              string     `json:"category,omitempty"`
	Status                string     `json:"status"`
	AmountPaid            int64      `json:"amount_paid"` // cents
	Currency              string     `json:"currency"`
	StripeSessionID       string     `json:"stripe_session_id,omitempty"`
	StripePaymentIntentID string     `json:"stripe_payment_intent_id,omitempty"`
	StartDate             time.Time  `json:"start_date"`
	EndDate               *time.Time `json:"end_date,omitempty"`
	CreatedAt             *time.Time `json:"created_at,omitempty"`
	UpdatedAt             *time.Time `json:"updated_at,omitempty"`
}

// Validate checks the listing invariants before persistence.
func (l *Listing) Validate() error {
	if l.AgentID == "" {
		return ErrMissingAgentID
	}
	if l.Category != "" && !category.Valid(l.Category) {
		return ErrUnknownCategory
	}
	if l.EndDate != nil && l.EndDate.Before(l.StartDate) {
		return ErrInvalidWindow
	}
	if l.AmountPaid <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsCurrent reports whether the listing should pin its agent at the given
// time: paid, started, and not yet past its end date. An expired window
// never boosts regardless of the stored status; expiry is effective the
// moment the window lapses, not when the sweep flips the row. Open-ended
// listings stay current once started.
func (l *Listing) IsCurrent(now time.Time) bool {
	if l.Status != StatusActive {
		return false
	}
	if now.Before(l.StartDate) {
		return false
	}
	if l.EndDate == nil {
		return true
	}
	return !now.After(*l.EndDate)
}
