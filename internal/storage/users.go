package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UserRepository provides operations for the users table
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user
func (r *UserRepository) Create(q Querier, u *User) error {
	_, err := q.Exec(`
		INSERT INTO users (id, username, email, role, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Username, u.Email, u.Role, u.CreatedAt.Format(time.RFC3339))

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// Get retrieves a user by ID, or (nil, nil) when absent
func (r *UserRepository) Get(q Querier, id string) (*User, error) {
	return r.getBy(q, "id = ?", id)
}

// GetByUsername retrieves a user by username, or (nil, nil) when absent
func (r *UserRepository) GetByUsername(q Querier, username string) (*User, error) {
	return r.getBy(q, "username = ?", username)
}

func (r *UserRepository) getBy(q Querier, where string, arg interface{}) (*User, error) {
	var u User
	var createdAt string

	err := q.QueryRow(
		"SELECT id, username, email, role, created_at FROM users WHERE "+where, arg,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Role, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at format: %w", err)
	}

	return &u, nil
}

// CategoryRepository provides operations for the categories table
type CategoryRepository struct {
	db *DB
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a new category
func (r *CategoryRepository) Create(q Querier, c *Category) error {
	_, err := q.Exec(
		"INSERT INTO categories (id, name, description) VALUES (?, ?, ?)",
		c.ID, c.Name, c.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// Get retrieves a category by ID, or (nil, nil) when absent
func (r *CategoryRepository) Get(q Querier, id string) (*Category, error) {
	var c Category
	err := q.QueryRow(
		"SELECT id, name, description FROM categories WHERE id = ?", id,
	).Scan(&c.ID, &c.Name, &c.Description)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	return &c, nil
}

// GetByName retrieves a category by name, or (nil, nil) when absent.
// Used to resolve AI-suggested category names.
func (r *CategoryRepository) GetByName(q Querier, name string) (*Category, error) {
	var c Category
	err := q.QueryRow(
		"SELECT id, name, description FROM categories WHERE name = ? COLLATE NOCASE", name,
	).Scan(&c.ID, &c.Name, &c.Description)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}

	return &c, nil
}

// List returns all categories in name order
func (r *CategoryRepository) List(q Querier) ([]*Category, error) {
	rows, err := q.Query("SELECT id, name, description FROM categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, &c)
	}

	return categories, rows.Err()
}
