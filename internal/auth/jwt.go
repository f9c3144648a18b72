// Package auth validates the HMAC-signed bearer tokens that guard the admin
// endpoints.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/utafrali/EcommerceGo/taxonomy/pkg/middleware"
)

// RoleAdmin is the role required by category mutations.
const RoleAdmin = "admin"

// ErrEmptySecret is returned by NewValidator when no secret is configured.
var ErrEmptySecret = errors.New("auth: empty JWT secret")

// tokenClaims is the JWT payload. Tokens issued by the user service carry the
// subject in user_id; sub is used otherwise.
type tokenClaims struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Validator checks HMAC-signed JWTs with a shared secret.
type Validator struct {
	secret []byte
	parser *jwt.Parser
	now    func() time.Time
}

// NewValidator creates a validator for tokens signed with secret.
func NewValidator(secret string) (*Validator, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	v := &Validator{secret: []byte(secret), now: time.Now}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
	)
	return v, nil
}

// Validate parses token and returns its subject and role. It satisfies
// middleware.TokenValidator.
func (v *Validator) Validate(token string) (*middleware.Claims, error) {
	var claims tokenClaims
	if _, err := v.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &middleware.Claims{Subject: subject, Role: claims.Role}, nil
}

// Issue signs an HS256 token for subject with role, valid for ttl.
func (v *Validator) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
