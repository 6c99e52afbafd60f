package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/moltworks/agentrank/internal/agent"
	"github.com/moltworks/agentrank/internal/category"
	"github.com/moltworks/agentrank/internal/featured"
	"github.com/moltworks/agentrank/internal/middleware"

	"github.com/stripe/stripe-go/v81"
)

// maxWebhookBodyBytes caps webhook payload reads.
const maxWebhookBodyBytes = 65536

// FeaturedHandlers holds dependencies for featured listing purchase and
// webhook endpoints.
type FeaturedHandlers struct {
	agents       agent.Repository
	listings     featured.Repository
	stripeClient featured.Client
}

// NewFeaturedHandlers creates a new FeaturedHandlers instance.
func NewFeaturedHandlers(agents agent.Repository, listings featured.Repository, stripeClient featured.Client) *FeaturedHandlers {
	return &FeaturedHandlers{
		agents:       agents,
		listings:     listings,
		stripeClient: stripeClient,
	}
}

// checkoutRequest is the POST /featured/checkout request body. An empty
// category buys a global placement. Self-serve checkout always sells a
// bounded window; the per-day price needs one.
type checkoutRequest struct {
	AgentID    string    `json:"agent_id"`
	Category   string    `json:"category,omitempty"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	SuccessURL string    `json:"success_url"`
	CancelURL  string    `json:"cancel_url"`
}

// Checkout handles POST /featured/checkout - starts a Stripe Checkout
// Session for one featured slot and records the provisional listing. The
// listing stays pending until the payment webhook confirms it.
func (h *FeaturedHandlers) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.stripeClient == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePaymentFailed)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodePaymentFailed, "Payments are not configured")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}

	if req.AgentID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "agent_id is required")
		return
	}
	if req.Category != "" && !category.Valid(req.Category) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeUnknownCategory)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeUnknownCategory, "Unknown category: "+req.Category)
		return
	}
	if req.EndDate.IsZero() {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "end_date is required")
		return
	}
	if req.EndDate.Before(req.StartDate) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidWindow)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidWindow, "end_date must not precede start_date")
		return
	}

	if _, err := h.agents.GetAgent(r.Context(), req.AgentID); err != nil {
		if errors.Is(err, agent.ErrAgentNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAgentNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeAgentNotFound, "Agent not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to verify agent for checkout", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to start checkout")
		return
	}

	params := &featured.CheckoutParams{
		AgentID:    req.AgentID,
		Category:   req.Category,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	}
	sess, err := h.stripeClient.CreateCheckoutSession(params)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to create checkout session",
			"agent_id", req.AgentID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePaymentFailed)
		WriteError(w, ctx, http.StatusBadGateway, ErrCodePaymentFailed, "Failed to create checkout session")
		return
	}

	listing := &featured.Listing{
		AgentID:         req.AgentID,
		Category:        req.Category,
		Status:          featured.StatusPending,
		AmountPaid:      params.Days() * featured.PricePerDayCents,
		Currency:        "usd",
		StripeSessionID: sess.ID,
		StartDate:       req.StartDate,
		EndDate:         &req.EndDate,
	}
	if err := h.listings.Insert(r.Context(), listing); err != nil {
		slog.ErrorContext(r.Context(), "failed to record provisional listing",
			"agent_id", req.AgentID, "session_id", sess.ID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to record listing")
		return
	}

	writeJSON(w, r.Context(), http.StatusCreated, map[string]any{
		"listing_id":   listing.ID,
		"session_id":   sess.ID,
		"checkout_url": sess.URL,
	})
}

// StripeWebhook handles POST /internal/stripe - Stripe event delivery.
// Signature verification happens before any processing; unhandled event
// types are acknowledged and dropped.
func (h *FeaturedHandlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.stripeClient == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodePaymentFailed)
		WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodePaymentFailed, "Payments are not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Failed to read payload")
		return
	}

	event, err := h.stripeClient.ConstructWebhookEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		slog.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeAuthFailed, "Invalid webhook signature")
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(w, r, event)
	case "checkout.session.expired":
		h.handleCheckoutExpired(w, r, event)
	default:
		slog.DebugContext(r.Context(), "ignoring webhook event", "type", event.Type)
		w.WriteHeader(http.StatusOK)
	}
}

// handleCheckoutCompleted activates the listing for a paid session.
func (h *FeaturedHandlers) handleCheckoutCompleted(w http.ResponseWriter, r *http.Request, event stripe.Event) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Malformed event payload")
		return
	}

	listing, err := h.listings.GetBySessionID(r.Context(), sess.ID)
	if errors.Is(err, featured.ErrListingNotFound) {
		// Provisional record lost or webhook arrived first; rebuild the
		// listing from session metadata.
		listing = featured.ListingFromSession(&sess, time.Now())
		if insertErr := h.listings.Insert(r.Context(), listing); insertErr != nil {
			slog.ErrorContext(r.Context(), "failed to rebuild listing from session",
				"session_id", sess.ID, "error", insertErr)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to process payment")
			return
		}
		err = nil
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to look up listing for session",
			"session_id", sess.ID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to process payment")
		return
	}

	var paymentIntentID string
	if sess.PaymentIntent != nil {
		paymentIntentID = sess.PaymentIntent.ID
	}
	if err := h.listings.Activate(r.Context(), listing.ID, paymentIntentID); err != nil {
		slog.ErrorContext(r.Context(), "failed to activate listing",
			"listing_id", listing.ID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to process payment")
		return
	}

	slog.InfoContext(r.Context(), "featured listing activated",
		"listing_id", listing.ID,
		"agent_id", listing.AgentID,
		"session_id", sess.ID,
		"payment_intent", paymentIntentID)
	w.WriteHeader(http.StatusOK)
}

// handleCheckoutExpired drops the provisional listing for an abandoned
// session. A missing listing is fine; there is nothing to clean up.
func (h *FeaturedHandlers) handleCheckoutExpired(w http.ResponseWriter, r *http.Request, event stripe.Event) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Malformed event payload")
		return
	}

	listing, err := h.listings.GetBySessionID(r.Context(), sess.ID)
	if errors.Is(err, featured.ErrListingNotFound) {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to look up listing for expired session",
			"session_id", sess.ID, "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to process event")
		return
	}

	if err := h.listings.UpdateStatus(r.Context(), listing.ID, featured.StatusExpired); err != nil {
		slog.ErrorContext(r.Context(), "failed to expire abandoned listing",
			"listing_id", listing.ID, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}
