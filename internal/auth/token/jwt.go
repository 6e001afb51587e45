package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/clock"
	"github.com/smallbiznis/levy/internal/config"
)

var ErrMissingSecret = errors.New("auth jwt secret is not configured")

// Claims carried by bearer tokens issued by the identity service.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	issuer string
	clock  clock.Clock
}

func NewVerifier(cfg config.Config, clk clock.Clock) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.AuthJWTSecret)
	if secret == "" {
		if cfg.IsProduction() {
			return nil, ErrMissingSecret
		}
		secret = "levy-dev-secret"
	}
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Verifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(cfg.AuthJWTIssuer),
		clock:  clk,
	}, nil
}

// Verify validates an HMAC-signed bearer token and returns its principal.
func (v *Verifier) Verify(raw string) (domain.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, options...)
	if err != nil || !parsed.Valid {
		return domain.Principal{}, domain.ErrInvalidToken
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Principal{}, err
	}
	principal := domain.Principal{
		UserID: strings.TrimSpace(claims.Subject),
		Email:  strings.TrimSpace(claims.Email),
		Name:   strings.TrimSpace(claims.Name),
		Role:   role,
	}
	if !principal.Valid() {
		return domain.Principal{}, domain.ErrInvalidToken
	}
	return principal, nil
}

// Issue signs a token for principal. Used by the dev token command and tests.
func (v *Verifier) Issue(principal domain.Principal, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	claims := Claims{
		Email: principal.Email,
		Name:  principal.Name,
		Role:  string(principal.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
