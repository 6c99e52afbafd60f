package category

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
)

// Repository provides read access to the seeded taxonomy.
type Repository interface {
	// GetByName retrieves a category by name. Returns ErrUnknownCategory if absent.
	GetByName(ctx context.Context, name string) (*Category, error)

	// List returns all categories ordered by name.
	List(ctx context.Context) ([]Category, error)
}

// PostgresRepository implements Repository backed by Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByName retrieves a category by name.
func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*Category, error) {
	var c Category
	query := `SELECT id, name, description, post_count FROM categories WHERE name = $1`
	err := r.db.QueryRowContext(ctx, query, name).Scan(&c.ID, &c.Name, &c.Description, &c.PostCount)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownCategory
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category %s: %w", name, err)
	}
	return &c, nil
}

// List returns all categories ordered by name.
func (r *PostgresRepository) List(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description, post_count FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.PostCount); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}

	return categories, nil
}

// InMemoryRepository is an in-memory implementation of Repository seeded
// with the full taxonomy. Used for testing and development.
type InMemoryRepository struct {
	mu     sync.RWMutex
	byName map[string]*Category
}

// NewInMemoryRepository creates a new in-memory repository seeded with Names.
func NewInMemoryRepository() *InMemoryRepository {
	r := &InMemoryRepository{byName: make(map[string]*Category, len(Names))}
	for i, name := range Names {
		r.byName[name] = &Category{
			ID:   fmt.Sprintf("cat-%02d", i+1),
			Name: name,
		}
	}
	return r
}

// GetByName retrieves a category by name.
func (r *InMemoryRepository) GetByName(ctx context.Context, name string) (*Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.byName[name]
	if !ok {
		return nil, ErrUnknownCategory
	}
	copied := *c
	return &copied, nil
}

// List returns all categories ordered by name.
func (r *InMemoryRepository) List(ctx context.Context) ([]Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	categories := make([]Category, 0, len(r.byName))
	for _, name := range sortedNames() {
		categories = append(categories, *r.byName[name])
	}
	return categories, nil
}

// sortedNames returns the taxonomy names in lexical order.
func sortedNames() []string {
	names := make([]string, len(Names))
	copy(names, Names)
	sort.Strings(names)
	return names
}
