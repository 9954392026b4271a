// internal/service/identity/tokens.go

package identity

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"wimbli/internal/domain/auth"
)

// Claims is the session token payload
type Claims struct {
	UserID   string `json:"uid"`
	Email    string `json:"email"`
	AuthTime int64  `json:"auth_time"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates HS256 session tokens and keeps a revocation
// list until each revoked token would have expired anyway
type JWTManager struct {
	secret []byte
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewJWTManager creates a new token manager
func NewJWTManager(secret string, now func() time.Time) *JWTManager {
	if now == nil {
		now = time.Now
	}
	return &JWTManager{
		secret:  []byte(secret),
		now:     now,
		revoked: make(map[string]time.Time),
	}
}

// GenerateToken issues a signed token for user, valid for ttl
func (m *JWTManager) GenerateToken(user auth.User, ttl time.Duration) (string, time.Time, error) {
	issued := m.now()
	expiresAt := issued.Add(ttl)

	claims := &Claims{
		UserID:   user.ID,
		Email:    user.Email,
		AuthTime: user.SignedIn.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issued),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error signing token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken checks the signature, expiry and revocation of a token
func (m *JWTManager) ValidateToken(token string) (*auth.User, error) {
	claims, err := m.parse(token)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	_, revoked := m.revoked[claims.ID]
	m.mu.Unlock()
	if revoked {
		return nil, auth.NewError(auth.CodeInvalidToken, "token revoked")
	}

	return &auth.User{
		ID:       claims.UserID,
		Email:    claims.Email,
		SignedIn: time.Unix(claims.AuthTime, 0).UTC(),
	}, nil
}

// RevokeToken rejects the token from now on
func (m *JWTManager) RevokeToken(token string) error {
	claims, err := m.parse(token)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.revoked {
		if now.After(exp) {
			delete(m.revoked, id)
		}
	}
	m.revoked[claims.ID] = claims.ExpiresAt.Time
	return nil
}

func (m *JWTManager) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, auth.NewError(auth.CodeInvalidToken, err.Error())
	}
	if !parsed.Valid {
		return nil, auth.NewError(auth.CodeInvalidToken, "invalid token")
	}
	return claims, nil
}
