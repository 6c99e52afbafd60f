package featured

import (
	"errors"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
)

// Slot pricing in cents per featured day. A listing's amount is
// days * PricePerDayCents; the checkout session carries the agent, scope,
// and window in metadata so the webhook can activate the right listing.
const PricePerDayCents = 500

// CheckoutParams describes one featured slot purchase. Category is the
// placement scope being bought, empty for the global directory view.
type CheckoutParams struct {
	AgentID    string
	Category   string
	StartDate  time.Time
	EndDate    time.Time
	SuccessURL string
	CancelURL  string
}

// Days returns the purchased window length, minimum one day.
func (p *CheckoutParams) Days() int64 {
	days := int64(p.EndDate.Sub(p.StartDate).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

// Client is an interface for Stripe operations to enable testing with mocks.
type Client interface {
	CreateCheckoutSession(params *CheckoutParams) (*stripe.CheckoutSession, error)
	ConstructWebhookEvent(payload []byte, signature string) (stripe.Event, error)
}

// StripeClient implements the Client interface using the real Stripe SDK.
type StripeClient struct {
	webhookSecret string
}

// NewStripeClient creates a new Stripe client with the given API key and
// webhook signing secret.
func NewStripeClient(apiKey, webhookSecret string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{webhookSecret: webhookSecret}
}

// CreateCheckoutSession creates a Stripe Checkout Session for one featured
// slot purchase.
func (c *StripeClient) CreateCheckoutSession(params *CheckoutParams) (*stripe.CheckoutSession, error) {
	amount := params.Days() * PricePerDayCents

	sessionParams := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Featured agent listing"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: map[string]string{
			"agent_id":   params.AgentID,
			"category":   params.Category,
			"start_date": params.StartDate.Format(time.RFC3339),
			"end_date":   params.EndDate.Format(time.RFC3339),
		},
	}

	return session.New(sessionParams)
}

// ConstructWebhookEvent verifies a webhook payload's signature and parses it.
func (c *StripeClient) ConstructWebhookEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signature, c.webhookSecret)
}

// ListingFromSession builds a pending listing from a completed checkout
// session's metadata. Window bounds fall back to a one-day slot starting
// now when metadata is missing or malformed; an unknown category scope
// degrades to a global placement.
func ListingFromSession(sess *stripe.CheckoutSession, now time.Time) *Listing {
	start, err := time.Parse(time.RFC3339, sess.Metadata["start_date"])
	if err != nil {
		start = now
	}
	end, err := time.Parse(time.RFC3339, sess.Metadata["end_date"])
	if err != nil || end.Before(start) {
		end = start.Add(24 * time.Hour)
	}

	l := &Listing{
		AgentID:         sess.Metadata["agent_id"],
		Category:        sess.Metadata["category"],
		Status:          StatusPending,
		AmountPaid:      sess.AmountTotal,
		Currency:        string(sess.Currency),
		StripeSessionID: sess.ID,
		StartDate:       start,
		EndDate:         &end,
	}
	if sess.PaymentIntent != nil {
		l.StripePaymentIntentID = sess.PaymentIntent.ID
	}
	if errors.Is(l.Validate(), ErrUnknownCategory) {
		l.Category = ""
	}
	return l
}
