package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep-go/internal/model"
)

// pgxPool is the subset of *pgxpool.Pool used by the repository; pgxmock
// satisfies it in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresUserRepository handles user persistence on PostgreSQL.
type PostgresUserRepository struct {
	pool pgxPool
	now  func() time.Time
}

// NewPostgresUserRepository creates a new PostgresUserRepository.
func NewPostgresUserRepository(pool pgxPool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool, now: utcNow}
}

// Create inserts a new user and sets the generated ID and timestamps on it.
func (r *PostgresUserRepository) Create(ctx context.Context, user *model.User) error {
	candidate := *user
	prepareNew(&candidate, r.now())

	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, full_name, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		candidate.ID, candidate.Email, candidate.PasswordHash, candidate.FullName,
		candidate.IsActive, candidate.CreatedAt, candidate.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == emailUniqueKey {
			return &DuplicateError{Field: "email", Value: user.Email}
		}
		return oops.With("operation", "insert user").Wrap(err)
	}

	*user = candidate
	return nil
}

// FindCredentialsByEmail retrieves a user including the password hash.
func (r *PostgresUserRepository) FindCredentialsByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, full_name, is_active, created_at, updated_at
		 FROM users WHERE email = $1`, email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FullName,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, oops.With("operation", "select user by email").Wrap(err)
	}

	return user, nil
}

// FindByID retrieves a user by their ID, without the password hash.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, full_name, is_active, created_at, updated_at
		 FROM users WHERE id = $1`, id).Scan(
		&user.ID, &user.Email, &user.FullName, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, oops.With("operation", "select user by id").With("user_id", id).Wrap(err)
	}

	return user, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
