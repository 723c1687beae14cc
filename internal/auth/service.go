package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/saleslog/backend/internal/models"
)

// ErrDuplicateEmail is returned when registering with an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

// ErrInvalidCredentials is returned on a failed login.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Signup is the result of registering a new tenant: the tenant, its admin
// user, and the raw API key (shown once; only the hash is stored).
type Signup struct {
	Tenant *models.Tenant
	User   *models.User
	APIKey string
}

// Tenants and Users are the slices of the repository layer the service needs.
type Tenants interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Tenant) error
}

type Users interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type APIKeys interface {
	Create(ctx context.Context, k *models.APIKey) error
}

// Granter credits a tenant's token balance. Used for the signup grant.
type Granter interface {
	Grant(ctx context.Context, tenantID uuid.UUID, userID *uuid.UUID, amount int64, reason string) (uuid.UUID, error)
}

type Service interface {
	Register(ctx context.Context, tenantName, email, password, displayName string) (*Signup, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, uuid.UUID, string, error)
}

type service struct {
	tenants     Tenants
	users       Users
	keys        APIKeys
	granter     Granter
	secret      []byte
	signupGrant int64
}

func NewService(tenants Tenants, users Users, keys APIKeys, granter Granter, secret string, signupGrant int64) *service {
	return &service{
		tenants:     tenants,
		users:       users,
		keys:        keys,
		granter:     granter,
		secret:      []byte(secret),
		signupGrant: signupGrant,
	}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Register creates a tenant and its admin user in a single transaction,
// then issues an API key and the signup token grant.
func (s *service) Register(ctx context.Context, tenantName, email, password, displayName string) (*Signup, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	tx, err := s.users.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tenant := &models.Tenant{Name: tenantName}
	if err := s.tenants.CreateTx(ctx, tx, tenant); err != nil {
		return nil, err
	}
	user := &models.User{
		TenantID:     tenant.ID,
		Email:        email,
		DisplayName:  displayName,
		Role:         models.RoleAdmin,
		PasswordHash: string(hash),
	}
	if err := s.users.CreateTx(ctx, tx, user); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	rawKey, err := newRawKey()
	if err != nil {
		return nil, err
	}
	key := &models.APIKey{
		TenantID: tenant.ID,
		UserID:   user.ID,
		Name:     "default",
		KeyHash:  hashKey(rawKey),
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, err
	}

	if s.signupGrant > 0 {
		if _, err := s.granter.Grant(ctx, tenant.ID, &user.ID, s.signupGrant, models.TokenReasonSignupGrant); err != nil {
			return nil, err
		}
	}

	return &Signup{Tenant: tenant, User: user, APIKey: rawKey}, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(user)
}

func (s *service) issueToken(u *models.User) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		TenantID: u.TenantID.String(),
		Role:     u.Role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// ValidateToken returns (userID, tenantID, role) for a valid token.
func (s *service) ValidateToken(ctx context.Context, token string) (uuid.UUID, uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, uuid.Nil, "", err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, uuid.Nil, "", errors.New("invalid token")
	}
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, uuid.Nil, "", err
	}
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return uuid.Nil, uuid.Nil, "", err
	}
	return userID, tenantID, c.Role, nil
}

func newRawKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk_" + hex.EncodeToString(buf), nil
}

func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
