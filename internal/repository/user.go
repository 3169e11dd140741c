package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/gatekeep/gatekeep-go/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

// mysqlDuplicateEntry is the MySQL server error number for a unique key
// violation (ER_DUP_ENTRY).
const mysqlDuplicateEntry = 1062

// emailUniqueKey is the unique constraint on users.email created by the
// migrations.
const emailUniqueKey = "users_email_key"

// DuplicateError reports a uniqueness violation on a user field. It matches
// ErrDuplicateEmail with errors.Is when the field is the email.
type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateEmail && e.Field == "email"
}

// UserRepository persists user accounts. Only FindCredentialsByEmail reads
// the password hash.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindCredentialsByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// prepareNew assigns the fields the repository owns on creation.
func prepareNew(user *model.User, now time.Time) {
	user.ID = uuid.NewString()
	user.IsActive = true
	user.CreatedAt = now
	user.UpdatedAt = now
}

// MySQLUserRepository handles user persistence on MySQL.
type MySQLUserRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewMySQLUserRepository creates a new MySQLUserRepository.
func NewMySQLUserRepository(db *sql.DB) *MySQLUserRepository {
	return &MySQLUserRepository{db: db, now: utcNow}
}

// Create inserts a new user and sets the generated ID and timestamps on it.
func (r *MySQLUserRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (id, email, password_hash, full_name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	candidate := *user
	prepareNew(&candidate, r.now())

	_, err := r.db.ExecContext(ctx, query,
		candidate.ID, candidate.Email, candidate.PasswordHash, candidate.FullName,
		candidate.IsActive, candidate.CreatedAt, candidate.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEmailError(err) {
			return &DuplicateError{Field: "email", Value: user.Email}
		}
		return fmt.Errorf("insert user: %w", err)
	}

	*user = candidate
	return nil
}

// FindCredentialsByEmail retrieves a user including the password hash.
func (r *MySQLUserRepository) FindCredentialsByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT id, email, password_hash, full_name, is_active, created_at, updated_at
		FROM users WHERE email = ?`

	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.FullName,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("select user by email: %w", err)
	}

	return user, nil
}

// FindByID retrieves a user by their ID, without the password hash.
func (r *MySQLUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT id, email, full_name, is_active, created_at, updated_at FROM users WHERE id = ?`

	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.FullName, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("select user by id: %w", err)
	}

	return user, nil
}

// isDuplicateEmailError checks if a MySQL error is a duplicate entry (code
// 1062) on the email unique key. MySQL 8 qualifies the key with the table
// name, 5.7 does not.
func isDuplicateEmailError(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != mysqlDuplicateEntry {
		return false
	}
	return strings.HasSuffix(myErr.Message, "'"+emailUniqueKey+"'") ||
		strings.HasSuffix(myErr.Message, "."+emailUniqueKey+"'")
}

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

var _ UserRepository = (*MySQLUserRepository)(nil)
