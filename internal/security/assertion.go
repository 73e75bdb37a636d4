// Package security loads signing keys and issues the signed JWT client assertions
// exchanged for platform access tokens.
package security

import (
	"crypto"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAssertionTTL is how long a client assertion stays valid.
const DefaultAssertionTTL = 200 * time.Second

// ErrInvalidAssertion is returned when an assertion is malformed, expired, or signed by another key.
var ErrInvalidAssertion = errors.New("invalid assertion")

// AssertionClaims are the claims of a client-credentials JWT assertion.
// aud is a single string rather than an array, as token endpoints expect.
type AssertionClaims struct {
	Issuer    string           `json:"iss"`
	Subject   string           `json:"sub"`
	Audience  string           `json:"aud"`
	ExpiresAt *jwt.NumericDate `json:"exp"`
	ID        string           `json:"jti"`
}

func (c AssertionClaims) GetExpirationTime() (*jwt.NumericDate, error) { return c.ExpiresAt, nil }
func (c AssertionClaims) GetIssuedAt() (*jwt.NumericDate, error)       { return nil, nil }
func (c AssertionClaims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c AssertionClaims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c AssertionClaims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c AssertionClaims) GetAudience() (jwt.ClaimStrings, error) {
	if c.Audience == "" {
		return nil, nil
	}
	return jwt.ClaimStrings{c.Audience}, nil
}

// AssertionSigner signs short-lived client assertions for one service account with RS256 (or ES256 for ECDSA keys).
type AssertionSigner struct {
	privateKey     crypto.Signer
	serviceAccount string
	audience       string
	ttl            time.Duration
	now            func() time.Time
}

// NewAssertionSigner returns a signer whose assertions carry iss=sub=serviceAccount and aud=audience (the token URL).
// A non-positive ttl uses DefaultAssertionTTL.
func NewAssertionSigner(privateKey crypto.Signer, serviceAccount, audience string, ttl time.Duration) *AssertionSigner {
	if ttl <= 0 {
		ttl = DefaultAssertionTTL
	}
	return &AssertionSigner{
		privateKey:     privateKey,
		serviceAccount: serviceAccount,
		audience:       audience,
		ttl:            ttl,
		now:            time.Now,
	}
}

// Sign issues a new assertion with a fresh jti.
// Returns the compact token, its jti, and expiration time.
func (s *AssertionSigner) Sign() (token, jti string, expiresAt time.Time, err error) {
	jti = uuid.NewString()
	expiresAt = s.now().UTC().Add(s.ttl)
	claims := AssertionClaims{
		Issuer:    s.serviceAccount,
		Subject:   s.serviceAccount,
		Audience:  s.audience,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        jti,
	}
	token, err = s.sign(claims)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return token, jti, expiresAt, nil
}

func (s *AssertionSigner) sign(claims jwt.Claims) (string, error) {
	method, err := SigningMethod(s.privateKey.Public())
	if err != nil {
		return "", err
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(s.privateKey)
}

// ValidateAssertion parses and validates an assertion (signature, exp, aud) against publicKey.
func ValidateAssertion(publicKey crypto.PublicKey, tokenString, audience string) (*AssertionClaims, error) {
	claims := &AssertionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		method, err := SigningMethod(publicKey)
		if err != nil || method.Alg() != token.Method.Alg() {
			return nil, ErrInvalidAssertion
		}
		return publicKey, nil
	}, jwt.WithAudience(audience), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidAssertion
	}
	if claims.Issuer == "" || claims.Issuer != claims.Subject || claims.ID == "" {
		return nil, ErrInvalidAssertion
	}
	return claims, nil
}
