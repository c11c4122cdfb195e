// Package auth identifies the actor behind a request.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/richardliu001/ledger-core/internal/model"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return r, nil
	}
	return "", model.Errorf(model.KindInvalidArgument, "unknown role %q", s)
}

// Actor is whoever triggers an operation: a user, an admin or the scheduler.
type Actor struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin || a.Role == RoleSuperAdmin }

// System is the actor used by scheduled jobs.
var System = Actor{UserID: "system", Role: RoleSuperAdmin}

// RequireAdmin returns PermissionDenied unless a holds an admin role.
func RequireAdmin(a Actor) error {
	if !a.IsAdmin() {
		return model.Errorf(model.KindPermissionDenied, "role %q cannot process requests", a.Role)
	}
	return nil
}

type Claims struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

func (s *TokenService) Issue(a Actor) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: a.UserID,
		Role:   a.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *TokenService) Parse(token string) (Actor, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	t, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return Actor{}, err
	}
	if !t.Valid || claims.UserID == "" {
		return Actor{}, errors.New("invalid token")
	}
	role, err := ParseRole(string(claims.Role))
	if err != nil {
		return Actor{}, err
	}
	return Actor{UserID: claims.UserID, Role: role}, nil
}
