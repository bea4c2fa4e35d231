package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/xtrntr/papertrade/internal/errs"
	"github.com/xtrntr/papertrade/internal/models"
)

const userColumns = "id, name, email, password_hash, is_verified, COALESCE(reset_token, ''), reset_token_expiry, created_at"

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.IsVerified, &u.ResetToken, &u.ResetTokenExpiry, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser inserts a verified user
func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	return createUser(ctx, db.Pool, user)
}

// rowQuerier is satisfied by both the pool and a transaction
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func createUser(ctx context.Context, q rowQuerier, user *models.User) error {
	err := q.QueryRow(ctx,
		"INSERT INTO users (id, name, email, password_hash, is_verified) VALUES ($1, $2, $3, $4, $5) RETURNING created_at",
		user.ID, user.Name, user.Email, user.PasswordHash, user.IsVerified).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Email, errs.ErrDuplicate)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by id
func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(db.Pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", email, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// SetResetToken stores a password reset token on the user
func (db *DB) SetResetToken(ctx context.Context, userID, token string, expiry time.Time) error {
	tag, err := db.Pool.Exec(ctx, "UPDATE users SET reset_token = $1, reset_token_expiry = $2 WHERE id = $3", token, expiry, userID)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, errs.ErrNotFound)
	}
	return nil
}

// UpdatePassword replaces the password hash and clears any reset token
func (db *DB) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := db.Pool.Exec(ctx,
		"UPDATE users SET password_hash = $1, reset_token = NULL, reset_token_expiry = NULL WHERE id = $2",
		passwordHash, userID)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, errs.ErrNotFound)
	}
	return nil
}

// SavePendingUser inserts the pending signup, replacing any previous one for the email
func (db *DB) SavePendingUser(ctx context.Context, p *models.PendingUser) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO pending_users (email, name, password_hash, otp, otp_expiry, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			name = EXCLUDED.name,
			password_hash = EXCLUDED.password_hash,
			otp = EXCLUDED.otp,
			otp_expiry = EXCLUDED.otp_expiry,
			created_at = EXCLUDED.created_at
	`, p.Email, p.Name, p.PasswordHash, p.OTP, p.OTPExpiry, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save pending user: %w", err)
	}
	return nil
}

// GetPendingUser retrieves the pending signup for email
func (db *DB) GetPendingUser(ctx context.Context, email string) (*models.PendingUser, error) {
	p := &models.PendingUser{}
	err := db.Pool.QueryRow(ctx,
		"SELECT email, name, password_hash, otp, otp_expiry, created_at FROM pending_users WHERE email = $1",
		email).Scan(&p.Email, &p.Name, &p.PasswordHash, &p.OTP, &p.OTPExpiry, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pending user %s: %w", email, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get pending user: %w", err)
	}
	return p, nil
}

// PromotePendingUser deletes the pending signup and creates the verified user atomically
func (db *DB) PromotePendingUser(ctx context.Context, email string, user *models.User) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, "DELETE FROM pending_users WHERE email = $1", email)
	if err != nil {
		return fmt.Errorf("failed to delete pending user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending user %s: %w", email, errs.ErrNotFound)
	}
	if err := createUser(ctx, tx, user); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
