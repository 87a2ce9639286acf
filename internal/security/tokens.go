package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or fails signature, issuer or audience checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned when an HMAC secret is too short to sign session claims.
	ErrWeakSecret = errors.New("jwt secret must be at least 32 bytes")
)

// minSecretLen is the minimum HS256 secret length in bytes.
const minSecretLen = 32

// SessionClaims is the signed session artifact returned after login: the user id and
// role names plus the registered expiry, issuer and audience claims.
type SessionClaims struct {
	jwt.RegisteredClaims
	UserID string   `json:"id"`
	Roles  []string `json:"roles"`
}

// HasRole reports whether the claim carries role.
func (c *SessionClaims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// TokenProvider issues and validates session claims. It signs with HS256 (shared secret)
// or with RS256/ES256 (private/public key pair).
type TokenProvider struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	issuer    string
	audience  string
	ttl       time.Duration
	nowF      func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with the given private key (RS256 for RSA, ES256 for ECDSA).
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration) (*TokenProvider, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrInvalidKey
	}
	var method jwt.SigningMethod
	switch privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	if KeyAlg(publicKey) != method.Alg() {
		return nil, ErrInvalidKey
	}
	return newProvider(method, privateKey, publicKey, issuer, audience, ttl), nil
}

// NewHMACTokenProvider returns a TokenProvider that signs with HS256 using secret.
func NewHMACTokenProvider(secret []byte, issuer, audience string, ttl time.Duration) (*TokenProvider, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	key := slices.Clone(secret)
	return newProvider(jwt.SigningMethodHS256, key, key, issuer, audience, ttl), nil
}

func newProvider(method jwt.SigningMethod, signKey, verifyKey any, issuer, audience string, ttl time.Duration) *TokenProvider {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenProvider{
		method:    method,
		signKey:   signKey,
		verifyKey: verifyKey,
		issuer:    issuer,
		audience:  audience,
		ttl:       ttl,
		nowF:      time.Now,
	}
}

// Issue signs a session claim for userID with the given role names.
// Returns the token string and its expiration time.
func (p *TokenProvider) Issue(userID string, roles []string) (token string, expiresAt time.Time, err error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.nowF().UTC()
	expiresAt = now.Add(p.ttl)
	if roles == nil {
		roles = []string{}
	}
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
		Roles:  slices.Clone(roles),
	}
	token, err = jwt.NewWithClaims(p.method, claims).SignedString(p.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate parses and validates a session token (algorithm, signature, exp, iss, aud).
// Any failure is reported as ErrInvalidToken.
func (p *TokenProvider) Validate(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return p.verifyKey, nil
	},
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.nowF),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.UserID != claims.Subject {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TTL returns the lifetime of issued claims.
func (p *TokenProvider) TTL() time.Duration {
	return p.ttl
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
