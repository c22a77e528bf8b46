// Package auth issues and validates the service's JWTs and hashes passwords.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MinSecretLen is the HS512 key size in bytes.
const MinSecretLen = 64

// TokenType distinguishes the two key classes.  It is carried in the `type`
// claim so an access token can never be accepted where a refresh token is
// expected and vice versa.
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Claims is the JWT payload.  Role is only set on access tokens.
type Claims struct {
	Role string    `json:"role,omitempty"`
	Type TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Token is a signed JWT together with its expiry.
type Token struct {
	Raw       string
	ExpiresAt time.Time
}

// TokenService signs and verifies access and refresh tokens with separate
// HMAC-SHA-512 keys.  It holds no per-token state.
type TokenService struct {
	accessKey  []byte
	refreshKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// NewTokenService validates the key material and TTLs.  Callers are expected
// to treat an error as fatal at startup.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, log zerolog.Logger) (*TokenService, error) {
	if len(accessSecret) < MinSecretLen {
		return nil, fmt.Errorf("access token secret must be at least %d bytes, got %d", MinSecretLen, len(accessSecret))
	}
	if len(refreshSecret) < MinSecretLen {
		return nil, fmt.Errorf("refresh token secret must be at least %d bytes, got %d", MinSecretLen, len(refreshSecret))
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("access and refresh token secrets must differ")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	return &TokenService{
		accessKey:  []byte(accessSecret),
		refreshKey: []byte(refreshSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		log:        log.With().Str("component", "token_service").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// IssueAccessToken signs a short-lived token carrying subject and role.
func (s *TokenService) IssueAccessToken(subject, role string) (Token, error) {
	if subject == "" || role == "" {
		return Token{}, errors.New("subject and role are required")
	}
	return s.sign(Claims{Role: role, Type: AccessToken}, subject, s.accessKey, s.accessTTL)
}

// IssueRefreshToken signs a long-lived token carrying only the subject.
// Each refresh token gets a unique jti so that revoking one session never
// revokes another issued in the same second.
func (s *TokenService) IssueRefreshToken(subject string) (Token, error) {
	if subject == "" {
		return Token{}, errors.New("subject is required")
	}
	c := Claims{Type: RefreshToken}
	c.ID = uuid.NewString()
	return s.sign(c, subject, s.refreshKey, s.refreshTTL)
}

func (s *TokenService) sign(c Claims, subject string, key []byte, ttl time.Duration) (Token, error) {
	now := s.now()
	exp := now.Add(ttl)
	c.Subject = subject
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(exp)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, c).SignedString(key)
	if err != nil {
		return Token{}, fmt.Errorf("sign %s token: %w", c.Type, err)
	}
	return Token{Raw: signed, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// ValidateAccessToken reports whether raw is a well-formed, unexpired access
// token signed with the access key.  The failure reason is logged only.
func (s *TokenService) ValidateAccessToken(raw string) bool {
	_, ok := s.parse(raw, AccessToken)
	return ok
}

// ValidateRefreshToken is ValidateAccessToken for refresh tokens.
func (s *TokenService) ValidateRefreshToken(raw string) bool {
	_, ok := s.parse(raw, RefreshToken)
	return ok
}

// Subject returns the `sub` claim of a valid token of the given type, or ""
// when the token does not validate.
func (s *TokenService) Subject(raw string, typ TokenType) string {
	c, ok := s.parse(raw, typ)
	if !ok {
		return ""
	}
	return c.Subject
}

// Role returns the `role` claim of a valid access token, or "".
func (s *TokenService) Role(raw string) string {
	c, ok := s.parse(raw, AccessToken)
	if !ok {
		return ""
	}
	return c.Role
}

// Claims returns the parsed claims of a valid token of the given type.
func (s *TokenService) Claims(raw string, typ TokenType) (*Claims, bool) {
	return s.parse(raw, typ)
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) parse(raw string, typ TokenType) (*Claims, bool) {
	if raw == "" {
		s.log.Error().Str("type", string(typ)).Msg("token is empty")
		return nil, false
	}
	key := s.accessKey
	if typ == RefreshToken {
		key = s.refreshKey
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		s.logFailure(typ, err)
		return nil, false
	}
	if claims.Type != typ {
		s.log.Error().Str("type", string(typ)).Str("got", string(claims.Type)).Msg("token has wrong type")
		return nil, false
	}
	if claims.Subject == "" {
		s.log.Error().Str("type", string(typ)).Msg("token has no subject")
		return nil, false
	}
	if typ == AccessToken && claims.Role == "" {
		s.log.Error().Msg("access token has no role")
		return nil, false
	}
	return claims, true
}

func (s *TokenService) logFailure(typ TokenType, err error) {
	level, reason := zerolog.ErrorLevel, "invalid"
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		level, reason = zerolog.WarnLevel, "expired"
	case errors.Is(err, jwt.ErrTokenMalformed):
		reason = "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		reason = "bad signature"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		reason = "unsupported algorithm"
	}
	s.log.WithLevel(level).Err(err).Str("type", string(typ)).Str("reason", reason).Msg("token rejected")
}

// Fingerprint returns the SHA-256 hex digest of a raw token.  Stores key on
// the fingerprint so raw tokens never leave the process.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
