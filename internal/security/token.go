package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenPurpose string

const (
	TokenPurposeAccess  TokenPurpose = "access"
	TokenPurposeRefresh TokenPurpose = "refresh"
)

// Email confirmation and password reset links share a fixed window.
const emailTokenTTL = 7 * 24 * time.Hour

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenMalformed = errors.New("token malformed")
)

// Claims carries the subject plus a token_type discriminator separating
// access from refresh tokens. Email tokens omit token_type entirely.
type Claims struct {
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// TokenDetails is an issued token together with its validity window.
type TokenDetails struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec signs and verifies all tokens with a single shared secret
// and a configured HMAC method.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
}

func NewTokenCodec(secret, algorithm string) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("signing algorithm %q is not HMAC", algorithm)
	}
	return &TokenCodec{secret: []byte(secret), method: method}, nil
}

// Issue signs a token for the subject with iat, exp and token_type claims.
func (c *TokenCodec) Issue(subject string, purpose TokenPurpose, ttl time.Duration) (TokenDetails, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		TokenType: string(purpose),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return TokenDetails{}, fmt.Errorf("sign token: %w", err)
	}
	return TokenDetails{Token: signed, IssuedAt: now, ExpiresAt: expiresAt}, nil
}

// Decode verifies signature and expiry and requires the token_type claim
// to match the expected purpose and the subject to be present. It never
// returns claims from an invalid token.
func (c *TokenCodec) Decode(tokenStr string, expected TokenPurpose) (*Claims, error) {
	claims, err := c.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.TokenType != string(expected) {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

// IssueEmailToken signs a 7-day token carrying only the email address as
// subject. There is deliberately no token_type claim: confirmation and
// reset links share one token space, matching the endpoints that consume
// them.
func (c *TokenCodec) IssueEmailToken(email string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(emailTokenTTL)),
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign email token: %w", err)
	}
	return signed, nil
}

// DecodeEmailToken verifies an email token and returns the subject email.
// No token_type check is applied.
func (c *TokenCodec) DecodeEmailToken(tokenStr string) (string, error) {
	claims, err := c.parse(tokenStr)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", ErrTokenMalformed
	}
	return claims.Subject, nil
}

func (c *TokenCodec) parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		default:
			return nil, ErrTokenMalformed
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
