package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Subject is the subject of every maintenance token.
const Subject = "operator"

const defaultTTL = 15 * time.Minute

// Claims are the JWT claims of a maintenance token.
type Claims struct {
	jwt.RegisteredClaims
	Device string `json:"dev"`
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Authenticator checks the operator password and issues tokens.
type Authenticator struct {
	passwordHash string
	secret       []byte
	ttl          time.Duration
	device       string
	now          func() time.Time
}

// NewAuthenticator creates an Authenticator. A non-positive ttl selects
// 15 minutes.
func NewAuthenticator(passwordHash, secret, device string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Authenticator{
		passwordHash: passwordHash,
		secret:       []byte(secret),
		ttl:          ttl,
		device:       device,
		now:          time.Now,
	}
}

// Login verifies password and returns a signed access token.
func (a *Authenticator) Login(password string) (*Token, error) {
	if a.passwordHash == "" || len(a.secret) == 0 {
		return nil, ErrNotConfigured
	}

	ok, err := VerifyPassword(password, a.passwordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return a.issue()
}

func (a *Authenticator) issue() (*Token, error) {
	now := a.now()
	exp := now.Add(a.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		Device: a.device,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("signing access token: %w", err)
	}
	return &Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: exp.UTC()}, nil
}

// Verify parses tokenString and checks signature, expiry and subject.
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, ErrNotConfigured
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithSubject(Subject),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
