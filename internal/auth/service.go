// Package auth authenticates API callers with bcrypt-hashed passwords and
// HS256 bearer tokens.
package auth

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const issuer = "supervisr"

// Config is the [server.auth] section.
type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Users     []User        `mapstructure:"users"`
}

// Claims represents JWT claims
type Claims struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// Service checks credentials against the configured users.
type Service struct {
	users     map[string]User
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewService validates c. Without a secret a random one is generated, so
// tokens do not survive a restart.
func NewService(c Config) (*Service, error) {
	users := make(map[string]User, len(c.Users))
	for _, u := range c.Users {
		if u.Username == "" {
			return nil, fmt.Errorf("auth: user without username")
		}
		if _, dup := users[u.Username]; dup {
			return nil, fmt.Errorf("auth: duplicate user %s", u.Username)
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("auth: user %s: password_hash is not a bcrypt hash: %w", u.Username, err)
		}
		if u.Role == "" {
			u.Role = RoleViewer
		}
		if u.Role != RoleViewer && u.Role != RoleOperator {
			return nil, fmt.Errorf("auth: user %s: unknown role %q", u.Username, u.Role)
		}
		users[u.Username] = u
	}

	secret := []byte(c.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}
	ttl := c.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{users: users, jwtSecret: secret, tokenTTL: ttl, now: time.Now}, nil
}

// HashPassword returns the bcrypt hash to put into a user's password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Basic checks a username/password pair.
func (s *Service) Basic(username, password string) (*Result, error) {
	u, ok := s.users[username]
	if !ok || password == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &Result{Username: u.Username, Role: u.Role}, nil
}

// Login checks the credentials and issues a bearer token.
func (s *Service) Login(username, password string) (*Token, error) {
	res, err := s.Basic(username, password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := &Claims{
		Username: res.Username,
		Role:     res.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   res.Username,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Type: "Bearer", Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify validates a bearer token. Tokens of users no longer configured are rejected.
func (s *Service) Verify(token string) (*Result, error) {
	if token == "" {
		return nil, ErrInvalidCredentials
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	u, ok := s.users[claims.Username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return &Result{Username: u.Username, Role: u.Role}, nil
}
