package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/propdesk/turnover/internal/domain"
)

const issuer = "turnover"

// DefaultTTL is the lifetime of an issued token.
const DefaultTTL = 12 * time.Hour

// Claims carry the worker identity. Subject is the worker ID.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 worker tokens.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens returns a signer for secret.
func NewTokens(secret []byte) (*Tokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty signing secret")
	}
	return &Tokens{secret: secret, now: time.Now}, nil
}

// Issue signs a token for actor valid for ttl (DefaultTTL when zero).
func (t *Tokens) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	if actor.ID == "" {
		return "", fmt.Errorf("issue token: empty worker id")
	}
	if actor.Role != domain.RoleWorker && actor.Role != domain.RoleManager {
		return "", fmt.Errorf("issue token: unknown role %q", actor.Role)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := t.now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the actor it names. Every failure
// wraps domain.ErrUnauthorized.
func (t *Tokens) Verify(token string) (domain.Actor, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return domain.Actor{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return domain.Actor{}, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	if claims.Role != domain.RoleWorker && claims.Role != domain.RoleManager {
		return domain.Actor{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthorized, claims.Role)
	}
	return domain.Actor{ID: claims.Subject, Role: claims.Role}, nil
}
