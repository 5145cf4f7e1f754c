package auth

import (
	"fmt"
	"time"

	stderrors "errors"

	"github.com/golang-jwt/jwt/v5"
	pkgerrors "github.com/stellaide/server/pkg/errors"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims are the statements carried by both token kinds. Access tokens add
// the role, refresh tokens carry only the subject and expiry.
type Claims struct {
	Role      string `json:"role,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Provider signs and verifies the access/refresh token pair with a shared
// HS256 secret. Verification is stateless; whether a refresh token is still
// the live session for its subject is the session store's call, not ours.
type Provider struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewProvider(secret string, accessTTL, refreshTTL time.Duration) *Provider {
	return &Provider{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (p *Provider) AccessTTL() time.Duration  { return p.accessTTL }
func (p *Provider) RefreshTTL() time.Duration { return p.refreshTTL }

func (p *Provider) IssueAccessToken(subject, role string) (string, error) {
	return p.sign(Claims{
		Role:      role,
		TokenType: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(p.accessTTL)),
		},
	})
}

func (p *Provider) IssueRefreshToken(subject string) (string, error) {
	return p.sign(Claims{
		TokenType: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(p.refreshTTL)),
		},
	})
}

func (p *Provider) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

// ParseAccess verifies signature and structure of an access token. On expiry
// it still returns the decoded claims next to ErrExpiredAccessToken so
// callers can keep trusting the identity while rejecting the token.
func (p *Provider) ParseAccess(tokenString string) (*Claims, error) {
	return p.parse(tokenString, TypeAccess,
		pkgerrors.ErrMalformedAccessToken,
		pkgerrors.ErrUnsupportedAccessToken,
		pkgerrors.ErrExpiredAccessToken,
		pkgerrors.ErrInvalidAccessToken)
}

// ParseRefresh verifies signature and structure of a refresh token. Expired
// refresh tokens are rejected outright; there is no lenient path for them.
func (p *Provider) ParseRefresh(tokenString string) (*Claims, error) {
	return p.parse(tokenString, TypeRefresh,
		pkgerrors.ErrMalformedRefreshToken,
		pkgerrors.ErrUnsupportedRefreshToken,
		pkgerrors.ErrExpiredRefreshToken,
		pkgerrors.ErrInvalidRefreshToken)
}

func (p *Provider) parse(tokenString, wantType string, malformed, unsupported, expired, invalid *pkgerrors.Error) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
		}
		return p.secret, nil
	})

	switch {
	case err == nil:
	case stderrors.Is(err, jwt.ErrTokenMalformed):
		return nil, fmt.Errorf("%w: %v", malformed, err)
	case stderrors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, fmt.Errorf("%w: %v", unsupported, err)
	case stderrors.Is(err, jwt.ErrTokenExpired):
		// Claims are decoded before expiry validation; hand them back so
		// the caller can apply the lenient access-token policy.
		if claims.Subject == "" || claims.TokenType != wantType {
			return nil, fmt.Errorf("%w: %v", invalid, err)
		}
		return claims, expired
	default:
		return nil, fmt.Errorf("%w: %v", invalid, err)
	}

	if claims.Subject == "" {
		return nil, malformed
	}
	if claims.TokenType != wantType {
		return nil, unsupported
	}
	return claims, nil
}
