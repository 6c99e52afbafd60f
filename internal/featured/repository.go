package featured

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines featured listing persistence.
type Repository interface {
	// Insert adds a new listing, assigning an ID when absent.
	Insert(ctx context.Context, l *Listing) error

	// GetByID retrieves a listing. Returns ErrListingNotFound if absent.
	GetByID(ctx context.Context, id string) (*Listing, error)

	// GetBySessionID retrieves a listing by its Stripe checkout session.
	GetBySessionID(ctx context.Context, sessionID string) (*Listing, error)

	// ListCurrent returns listings that pin their agent at the given time,
	// across all scopes, ordered by amount paid descending, then start date
	// ascending, then ID.
	ListCurrent(ctx context.Context, now time.Time) ([]Listing, error)

	// Activate flips a listing to active and records the payment
	// transaction reference.
	Activate(ctx context.Context, id, paymentIntentID string) error

	// UpdateStatus transitions a listing's status.
	UpdateStatus(ctx context.Context, id, status string) error

	// DeactivateExpired flips active listings whose window has lapsed to
	// expired, returning how many rows changed. Open-ended listings never
	// lapse. Rows are kept for billing history.
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)
}

// PostgresRepository implements Repository backed by Postgres.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// Insert adds a new listing.
func (r *PostgresRepository) Insert(ctx context.Context, l *Listing) error {
	if err := l.Validate(); err != nil {
		return err
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = StatusPending
	}

	query := `
		INSERT INTO featured_listings (
			id, agent_id, category, status, amount_paid, currency,
			stripe_session_id, stripe_payment_intent_id,
			start_date, end_date, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`

	_, err := r.db.ExecContext(ctx, query,
		l.ID, l.AgentID, nullString(l.Category), l.Status, l.AmountPaid,
		l.Currency, nullString(l.StripeSessionID),
		nullString(l.StripePaymentIntentID), l.StartDate, nullTime(l.EndDate))
	if err != nil {
		return fmt.Errorf("failed to insert featured listing: %w", err)
	}
	return nil
}

// GetByID retrieves a listing.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Listing, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetBySessionID retrieves a listing by its Stripe checkout session.
func (r *PostgresRepository) GetBySessionID(ctx context.Context, sessionID string) (*Listing, error) {
	return r.getOne(ctx, `WHERE stripe_session_id = $1`, sessionID)
}

// listingColumns is the select list matched by scanListing.
const listingColumns = `id, agent_id, category, status, amount_paid, currency,
       stripe_session_id, stripe_payment_intent_id,
       start_date, end_date, created_at, updated_at`

// scanListing reads one row into a Listing.
func scanListing(scan func(dest ...any) error) (*Listing, error) {
	var l Listing
	var categoryName, sessionID, paymentIntentID sql.NullString
	var endDate, createdAt, updatedAt sql.NullTime
	if err := scan(&l.ID, &l.AgentID, &categoryName, &l.Status, &l.AmountPaid,
		&l.Currency, &sessionID, &paymentIntentID,
		&l.StartDate, &endDate, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	l.Category = categoryName.String
	l.StripeSessionID = sessionID.String
	l.StripePaymentIntentID = paymentIntentID.String
	if endDate.Valid {
		l.EndDate = &endDate.Time
	}
	if createdAt.Valid {
		l.CreatedAt = &createdAt.Time
	}
	if updatedAt.Valid {
		l.UpdatedAt = &updatedAt.Time
	}
	return &l, nil
}

// getOne fetches a single listing matching the where clause.
func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM featured_listings ` + where

	row := r.db.QueryRowContext(ctx, query, arg)
	l, err := scanListing(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get featured listing: %w", err)
	}
	return l, nil
}

// ListCurrent returns listings that pin their agent at the given time.
func (r *PostgresRepository) ListCurrent(ctx context.Context, now time.Time) ([]Listing, error) {
	query := `
		SELECT ` + listingColumns + `
		FROM featured_listings
		WHERE status = $1 AND start_date <= $2
		  AND (end_date IS NULL OR end_date >= $2)
		ORDER BY amount_paid DESC, start_date ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, StatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list current featured listings: %w", err)
	}
	defer rows.Close()

	var listings []Listing
	for rows.Next() {
		l, err := scanListing(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan featured listing: %w", err)
		}
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate featured listings: %w", err)
	}

	return listings, nil
}

// Activate flips a listing to active and records its payment intent.
func (r *PostgresRepository) Activate(ctx context.Context, id, paymentIntentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE featured_listings
		SET status = $2, stripe_payment_intent_id = $3, updated_at = NOW()
		WHERE id = $1
	`, id, StatusActive, nullString(paymentIntentID))
	if err != nil {
		return fmt.Errorf("failed to activate featured listing %s: %w", id, err)
	}
	return oneRowAffected(res)
}

// UpdateStatus transitions a listing's status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE featured_listings SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("failed to update featured listing %s: %w", id, err)
	}
	return oneRowAffected(res)
}

// oneRowAffected maps a zero-row update to ErrListingNotFound.
func oneRowAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrListingNotFound
	}
	return nil
}

// DeactivateExpired flips active listings whose window has lapsed.
func (r *PostgresRepository) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE featured_listings
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND end_date IS NOT NULL AND end_date < $3
	`, StatusExpired, StatusActive, now)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired listings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deactivation result: %w", err)
	}

	if affected > 0 {
		r.logger.Info("expired featured listings deactivated", "count", affected)
	}
	return int(affected), nil
}

// nullString maps "" to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime maps nil to SQL NULL.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	listings map[string]*Listing
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{listings: make(map[string]*Listing)}
}

// Insert adds a new listing.
func (r *InMemoryRepository) Insert(ctx context.Context, l *Listing) error {
	if err := l.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Status == "" {
		l.Status = StatusPending
	}
	now := time.Now()
	copied := *l
	copied.CreatedAt = &now
	copied.UpdatedAt = &now
	r.listings[l.ID] = &copied
	return nil
}

// GetByID retrieves a listing.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	copied := *l
	return &copied, nil
}

// GetBySessionID retrieves a listing by its Stripe checkout session.
func (r *InMemoryRepository) GetBySessionID(ctx context.Context, sessionID string) (*Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, l := range r.listings {
		if l.StripeSessionID == sessionID {
			copied := *l
			return &copied, nil
		}
	}
	return nil, ErrListingNotFound
}

// ListCurrent returns listings that pin their agent at the given time.
func (r *InMemoryRepository) ListCurrent(ctx context.Context, now time.Time) ([]Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var current []Listing
	for _, l := range r.listings {
		if l.IsCurrent(now) {
			current = append(current, *l)
		}
	}
	sort.Slice(current, func(i, j int) bool {
		if current[i].AmountPaid != current[j].AmountPaid {
			return current[i].AmountPaid > current[j].AmountPaid
		}
		if !current[i].StartDate.Equal(current[j].StartDate) {
			return current[i].StartDate.Before(current[j].StartDate)
		}
		return current[i].ID < current[j].ID
	})
	return current, nil
}

// Activate flips a listing to active and records its payment intent.
func (r *InMemoryRepository) Activate(ctx context.Context, id, paymentIntentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return ErrListingNotFound
	}
	now := time.Now()
	l.Status = StatusActive
	l.StripePaymentIntentID = paymentIntentID
	l.UpdatedAt = &now
	return nil
}

// UpdateStatus transitions a listing's status.
func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return ErrListingNotFound
	}
	now := time.Now()
	l.Status = status
	l.UpdatedAt = &now
	return nil
}

// DeactivateExpired flips active listings whose window has lapsed.
func (r *InMemoryRepository) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, l := range r.listings {
		if l.Status == StatusActive && l.EndDate != nil && l.EndDate.Before(now) {
			l.Status = StatusExpired
			ts := time.Now()
			l.UpdatedAt = &ts
			count++
		}
	}
	return count, nil
}
