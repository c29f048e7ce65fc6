package cockroach

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carelink-backend/internal/domain"
)

// ErrUserNotFound is returned when a lookup matches no user
var ErrUserNotFound = errors.New("user not found")

// UserRepository handles user profile lookups
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID retrieves one user profile
func (r *UserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `
		SELECT user_id, display_name, role, paired_with, created_at
		FROM users
		WHERE user_id = $1
	`

	user := &domain.User{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&user.UserID,
		&user.DisplayName,
		&user.Role,
		&user.PairedWith,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

// ArePaired reports whether the two users form a care pair in either
// direction.
func (r *UserRepository) ArePaired(ctx context.Context, a, b uuid.UUID) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM users
		WHERE (user_id = $1 AND paired_with = $2)
		   OR (user_id = $2 AND paired_with = $1)
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, a, b).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check pairing: %w", err)
	}
	return count > 0, nil
}

// SetPairedWith links a user to its care partner; a nil partner clears
// the link.
func (r *UserRepository) SetPairedWith(ctx context.Context, userID uuid.UUID, partner *uuid.UUID) error {
	query := `
		UPDATE users
		SET paired_with = $2
		WHERE user_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, partner)
	if err != nil {
		return fmt.Errorf("failed to set pairing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
