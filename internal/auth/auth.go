package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin = "admin"
	issuer    = "casnos"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrDisabled           = errors.New("admin auth disabled")
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Options struct {
	KeyHash  string
	Secret   string
	TokenTTL time.Duration
	Now      func() time.Time
}

// Authenticator guards the admin surface. With no key hash configured it
// is disabled and every check passes.
type Authenticator struct {
	keyHash []byte
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

func New(opts Options) *Authenticator {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 12 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Authenticator{
		keyHash: []byte(strings.TrimSpace(opts.KeyHash)),
		secret:  []byte(opts.Secret),
		ttl:     opts.TokenTTL,
		now:     opts.Now,
	}
}

func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.keyHash) > 0
}

// Login checks the shared admin key and issues a signed admin token.
func (a *Authenticator) Login(key string) (string, time.Time, error) {
	if !a.Enabled() {
		return "", time.Time{}, ErrDisabled
	}
	if err := bcrypt.CompareHashAndPassword(a.keyHash, []byte(key)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	now := a.now()
	expires := now.Add(a.ttl)
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   RoleAdmin,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// Verify accepts any token when auth is disabled.
func (a *Authenticator) Verify(tokenString string) error {
	if !a.Enabled() {
		return nil
	}
	if tokenString == "" {
		return ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Role != RoleAdmin {
		return ErrInvalidToken
	}
	return nil
}

func BearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
