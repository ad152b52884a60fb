// Package userstore persists user accounts and API keys, and bootstraps the
// single administrative account at startup.
package userstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"exchange-core/internal/apperr"
	"exchange-core/internal/models"

	"github.com/google/uuid"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store operates the users table.
type Store struct{}

func New() *Store { return &Store{} }

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var id, role string
	if err := row.Scan(&id, &u.Name, &role, &u.APIKey); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("userstore: invalid user id %q: %w", id, err)
	}
	u.ID = parsed
	u.Role = models.Role(role)
	return &u, nil
}

// Create registers a new ordinary user with a generated `key-<uuid4>` API
// key.
func (s *Store) Create(ctx context.Context, q Querier, name string) (*models.User, error) {
	user := &models.User{
		ID:     uuid.New(),
		Name:   name,
		Role:   models.RoleUser,
		APIKey: "key-" + uuid.New().String(),
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO users (id, name, role, api_key) VALUES (?, ?, ?, ?)
	`, user.ID.String(), user.Name, string(user.Role), user.APIKey); err != nil {
		return nil, fmt.Errorf("userstore: create failed: %w", err)
	}
	return user, nil
}

// GetByID fetches a user by id.
func (s *Store) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*models.User, error) {
	row := q.QueryRowContext(ctx, `SELECT id, name, role, api_key FROM users WHERE id = ?`, id.String())
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("userstore: get_by_id failed: %w", err)
	}
	return user, nil
}

// GetByAPIKey resolves the caller identity behind a bearer API key.
func (s *Store) GetByAPIKey(ctx context.Context, q Querier, apiKey string) (*models.User, error) {
	row := q.QueryRowContext(ctx, `SELECT id, name, role, api_key FROM users WHERE api_key = ?`, apiKey)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, apperr.Unauthenticated("invalid API key")
	}
	if err != nil {
		return nil, fmt.Errorf("userstore: get_by_api_key failed: %w", err)
	}
	return user, nil
}

// Delete removes a user row. Balances and orders cascade at the DB level,
// but callers should refund live orders through engine.DeleteUser first so
// the cascade never silently drops a reservation.
func (s *Store) Delete(ctx context.Context, q Querier, id uuid.UUID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("userstore: delete failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("userstore: delete rows_affected failed: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// EnsureAdmin returns the single administrative account, creating it on
// first run. The API key comes from ADMIN_API_KEY when set, otherwise a
// random `admin-key-<uuid4>` is generated and must be read from the log.
func (s *Store) EnsureAdmin(ctx context.Context, database *sql.DB) (*models.User, error) {
	row := database.QueryRowContext(ctx, `SELECT id, name, role, api_key FROM users WHERE role = ? LIMIT 1`, string(models.RoleAdmin))
	if admin, err := scanUser(row); err == nil {
		return admin, nil
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("userstore: ensure_admin lookup failed: %w", err)
	}

	apiKey := os.Getenv("ADMIN_API_KEY")
	if apiKey == "" {
		apiKey = "admin-key-" + uuid.New().String()
	}
	admin := &models.User{ID: uuid.New(), Name: "Admin", Role: models.RoleAdmin, APIKey: apiKey}
	if _, err := database.ExecContext(ctx, `
		INSERT INTO users (id, name, role, api_key) VALUES (?, ?, ?, ?)
	`, admin.ID.String(), admin.Name, string(admin.Role), admin.APIKey); err != nil {
		return nil, fmt.Errorf("userstore: ensure_admin insert failed: %w", err)
	}
	return admin, nil
}
