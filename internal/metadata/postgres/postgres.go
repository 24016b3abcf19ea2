// Package postgres provides a PostgreSQL-backed account store.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Fabeuss/oasis/internal/auth"
	"github.com/Fabeuss/oasis/internal/logging"
	"github.com/Fabeuss/oasis/internal/metrics"
	"github.com/Fabeuss/oasis/pkg/retry"
)

//go:embed schema.sql
var schema string

// DefaultAdmin is the account created by EnsureDefaultAdmin.
const DefaultAdmin = "admin"

// Store is a PostgreSQL account store.
type Store struct {
	db *sql.DB
}

// New opens the database and waits for it to answer a ping.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	err = retry.Do(ctx, retry.StartupConfig(), func() error {
		if err := db.PingContext(ctx); err != nil {
			logging.Warn("database not ready", zap.Error(err))
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpdateConnectionMetrics updates the database connection metrics.
func (s *Store) UpdateConnectionMetrics() {
	stats := s.db.Stats()
	metrics.SetDBConnectionsOpen(stats.OpenConnections)
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return nil
}

// LookupUser implements auth.UserStore.
func (s *Store) LookupUser(ctx context.Context, username string) (*auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, is_admin FROM users WHERE username = $1`,
		username).Scan(&u.Username, &u.PasswordHash, &u.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// CreateUser stores a new account with a bcrypt hash of password.
func (s *Store) CreateUser(ctx context.Context, username, password string, isAdmin bool) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, is_admin) VALUES ($1, $2, $3)`,
		username, string(hashed), isAdmin)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	logging.Info("user created", zap.String("username", username), zap.Bool("is_admin", isAdmin))
	return nil
}

// CountUsers returns the number of stored accounts.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// EnsureDefaultAdmin creates the admin account when the table is empty.
// It does nothing when password is empty.
func (s *Store) EnsureDefaultAdmin(ctx context.Context, password string) error {
	if password == "" {
		return nil
	}
	count, err := s.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	logging.Warn("no users found, creating default admin", zap.String("username", DefaultAdmin))
	return s.CreateUser(ctx, DefaultAdmin, password, true)
}
