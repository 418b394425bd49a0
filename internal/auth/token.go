package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pliu/chatcore/internal/apperr"
)

// Resolver turns a bearer credential into an account id.
type Resolver interface {
	Resolve(ctx context.Context, bearer string) (string, error)
}

// Claims is the token body. The account id is the email claim when present,
// otherwise the subject.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) AccountID() string {
	if c.Email != "" {
		return c.Email
	}
	return c.Subject
}

// JWTResolver verifies HS256 tokens signed with a shared secret.
type JWTResolver struct {
	secret []byte
	issuer string
}

func NewJWTResolver(secret, issuer string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), issuer: issuer}
}

func (r *JWTResolver) Resolve(_ context.Context, bearer string) (string, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return "", apperr.Unauthenticated("missing bearer token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	token, err := jwt.ParseWithClaims(bearer, &Claims{}, func(*jwt.Token) (any, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperr.Unauthenticated("token expired")
		}
		return "", apperr.Unauthenticated("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", apperr.Unauthenticated("invalid token")
	}
	id := strings.ToLower(strings.TrimSpace(claims.AccountID()))
	if id == "" {
		return "", apperr.Unauthenticated("token carries no account")
	}
	return id, nil
}

// IssueToken signs a token for accountID. Credentials are issued by the
// identity service; this exists for tests and local tooling.
func IssueToken(secret, issuer, accountID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
