package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/geocms/lab-reservation/internal/model"
	"github.com/geocms/lab-reservation/internal/utils"
)

const userCols = `id, email, full_name, password_hash, role, is_active, created_at, updated_at`

// ErrEmailExists is returned by Create for a duplicate address.
var ErrEmailExists = errors.New("email already exists")

// UserRepo stores campus accounts.  Emails are kept lower-cased.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create hashes password with the given bcrypt cost and inserts an active
// account with role.
func (r *UserRepo) Create(ctx context.Context, email, fullName, password string, role model.Role, cost int) (uint64, error) {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (email, full_name, password_hash, role) VALUES (?, ?, ?, ?)`,
		normalizeEmail(email), strings.TrimSpace(fullName), hash, role)
	switch {
	case IsDuplicate(err):
		return 0, ErrEmailExists
	case err != nil:
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return u, ErrNotFound
	case err != nil:
		return u, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ? LIMIT 1`, normalizeEmail(email)))
}

func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ? LIMIT 1`, id))
}
