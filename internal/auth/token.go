package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the token namespace. It is carried in the aud claim so a customer
// token can never be presented on an admin route.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Principal is the authenticated caller passed into every service call.
type Principal struct {
	ID    primitive.ObjectID
	Email string
	Role  Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrWrongAudience = errors.New("token audience mismatch")
)

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Tokens signs and parses access tokens. Customer and admin tokens use
// separate secrets.
type Tokens struct {
	customerSecret []byte
	adminSecret    []byte
	ttl            time.Duration
	now            func() time.Time
}

func NewTokens(customerSecret, adminSecret string, ttl time.Duration) *Tokens {
	if adminSecret == "" {
		adminSecret = customerSecret
	}
	return &Tokens{
		customerSecret: []byte(customerSecret),
		adminSecret:    []byte(adminSecret),
		ttl:            ttl,
		now:            time.Now,
	}
}

// TTL is the access token lifetime.
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

func (t *Tokens) secret(role Role) []byte {
	if role == RoleAdmin {
		return t.adminSecret
	}
	return t.customerSecret
}

// Issue returns a signed HS256 token for the principal.
func (t *Tokens) Issue(p Principal) (string, error) {
	now := t.now()
	c := claims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.Hex(),
			Audience:  jwt.ClaimStrings{string(p.Role)},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(t.secret(p.Role))
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

// Parse validates raw and returns its principal. The token must have been
// issued for the expected role.
func (t *Tokens) Parse(raw string, expected Role) (Principal, error) {
	var c claims
	token, err := jwt.ParseWithClaims(raw, &c, func(tok *jwt.Token) (interface{}, error) {
		return t.secret(expected), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(string(expected)),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenInvalidAudience) {
			return Principal{}, ErrWrongAudience
		}
		return Principal{}, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	id, err := primitive.ObjectIDFromHex(c.Subject)
	if err != nil {
		return Principal{}, errors.Wrap(ErrInvalidToken, "subject is not an id")
	}
	return Principal{ID: id, Email: c.Email, Role: expected}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(strings.TrimSpace(header))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// HashRefreshToken returns the stored form of a refresh token.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewRefreshToken returns a random opaque refresh token.
func NewRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generate refresh token")
	}
	return hex.EncodeToString(buf), nil
}
