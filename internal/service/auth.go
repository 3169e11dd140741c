package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gatekeep/gatekeep-go/internal/crypto"
	"github.com/gatekeep/gatekeep-go/internal/model"
	"github.com/gatekeep/gatekeep-go/internal/repository"
	"github.com/gatekeep/gatekeep-go/internal/session"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

// TokenIssuer issues and verifies session tokens.
type TokenIssuer interface {
	Issue(userID string) (crypto.Token, error)
	Verify(value string) (*crypto.Claims, error)
}

// Session is the outcome of a successful register, login or status check.
type Session struct {
	User  model.PublicUser
	Token crypto.Token
}

// Response returns the API body for the session.
func (s Session) Response() model.AuthResponse {
	return model.AuthResponse{PublicUser: s.User, Token: s.Token.Value}
}

// AuthService handles authentication business logic.
type AuthService struct {
	repo      repository.UserRepository
	hasher    PasswordHasher
	tokens    TokenIssuer
	denylist  session.Denylist
	logger    *slog.Logger
	validate  *validator.Validate
	dummyHash string
}

// NewAuthService creates a new AuthService. A nil denylist disables
// server-side revocation and a nil logger uses slog.Default.
func NewAuthService(repo repository.UserRepository, hasher PasswordHasher, tokens TokenIssuer, denylist session.Denylist, logger *slog.Logger) (*AuthService, error) {
	if denylist == nil {
		denylist = session.NopDenylist{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Compared against when the email is unknown so both failure paths
	// cost one bcrypt verification.
	dummyHash, err := newDummyHash(hasher)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy password hash: %w", err)
	}

	return &AuthService{
		repo:      repo,
		hasher:    hasher,
		tokens:    tokens,
		denylist:  denylist,
		logger:    logger,
		validate:  newValidator(),
		dummyHash: dummyHash,
	}, nil
}

// Register creates a new user account and opens a session for it.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (Session, error) {
	if err := s.validateRequest(req); err != nil {
		return Session{}, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, crypto.ErrPasswordTooLong) {
			return Session{}, validationError(map[string]string{"password": "must be at most 72 bytes"})
		}
		return Session{}, s.internal("register", "hash password", err)
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		var dup *repository.DuplicateError
		if errors.As(err, &dup) {
			return Session{}, duplicateAccount(dup.Field, dup.Error())
		}
		return Session{}, s.internal("register", "create user", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return s.open("register", user.Public())
}

// Login authenticates a user by email and password and opens a session.
// Unknown emails and wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (Session, error) {
	if err := s.validateRequest(req); err != nil {
		return Session{}, err
	}

	user, err := s.repo.FindCredentialsByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.hasher.Verify(req.Password, s.dummyHash)
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, s.internal("login", "find user", err)
	}

	if !s.hasher.Verify(req.Password, user.PasswordHash) || !user.IsActive {
		return Session{}, ErrInvalidCredentials
	}

	return s.open("login", user.Public())
}

// Logout ends the session identified by identity. It always succeeds; with
// no identity there is nothing to revoke.
func (s *AuthService) Logout(ctx context.Context, identity *model.Identity) error {
	if identity == nil || identity.TokenID == "" {
		return nil
	}
	if err := s.denylist.Revoke(ctx, identity.TokenID, identity.ExpiresAt); err != nil {
		s.logger.Warn("logout: revoke token", "user_id", identity.UserID, "error", err)
	}
	return nil
}

// CheckStatus renews the session of an already authenticated identity.
func (s *AuthService) CheckStatus(ctx context.Context, identity *model.Identity) (Session, error) {
	if identity == nil || identity.UserID == "" {
		return Session{}, ErrUnauthenticated
	}

	user, err := s.repo.FindByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Session{}, ErrUnauthenticated
		}
		return Session{}, s.internal("check status", "find user", err)
	}
	if !user.IsActive {
		return Session{}, ErrUnauthenticated
	}

	return s.open("check status", user.Public())
}

// Authenticate turns a presented session token into an identity.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.Identity, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		if errors.Is(err, crypto.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, s.internal("authenticate", "check denylist", err)
	}
	if revoked {
		return nil, ErrUnauthenticated
	}

	identity := &model.Identity{UserID: claims.UserID, TokenID: claims.ID}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

func newDummyHash(hasher PasswordHasher) (string, error) {
	plain, err := crypto.RandomString(32)
	if err != nil {
		return "", err
	}
	return hasher.Hash(plain)
}

func (s *AuthService) open(op string, user model.PublicUser) (Session, error) {
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, s.internal(op, "issue token", err)
	}
	return Session{User: user, Token: token}, nil
}

func (s *AuthService) internal(op, step string, err error) *Error {
	s.logger.Error(op+": "+step, "error", err)
	return internalError(err)
}

func (s *AuthService) validateRequest(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return s.internal("validate", "struct", err)
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = describe(fe)
	}
	return validationError(fields)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// describe renders a field error without echoing the rejected value.
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
