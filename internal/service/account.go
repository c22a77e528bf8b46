package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/restaurant-reservation/internal/apperr"
	"github.com/iliyamo/restaurant-reservation/internal/auth"
	"github.com/iliyamo/restaurant-reservation/internal/metrics"
	"github.com/iliyamo/restaurant-reservation/internal/model"
	"github.com/iliyamo/restaurant-reservation/internal/repository"
)

// UserStore is the user persistence the account flows need.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByUsername(ctx context.Context, username string) (model.User, error)
}

// RevocationStore denylists refresh tokens by fingerprint.
type RevocationStore interface {
	Revoke(ctx context.Context, fingerprint string, ttl time.Duration) error
	IsRevoked(ctx context.Context, fingerprint string) (bool, error)
	Available() bool
}

// TokenPair is returned by a successful sign-in.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AccessGrant is returned by a successful refresh.
type AccessGrant struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Validation describes an access token.
type Validation struct {
	Valid    bool   `json:"valid"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// SignUpInput is a self-service registration request.
type SignUpInput struct {
	Username string
	Password string
	FullName *string
	Phone    *string
}

// AccountService implements sign-up, sign-in, refresh, validation and
// logout on top of the token service.  Subjects are usernames.
type AccountService struct {
	users      UserStore
	tokens     *auth.TokenService
	revoked    RevocationStore
	bcryptCost int
	dummyHash  string
	verify     func(hash, plain string) bool
	now        func() time.Time
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

func NewAccountService(users UserStore, tokens *auth.TokenService, revoked RevocationStore, bcryptCost int, m *metrics.Metrics, log zerolog.Logger) *AccountService {
	log = log.With().Str("component", "accounts").Logger()
	// Unknown usernames are checked against this hash so that sign-in costs
	// the same whether or not the account exists.
	dummy, err := auth.HashPassword(uuid.NewString(), bcryptCost)
	if err != nil {
		log.Error().Err(err).Msg("dummy password hash")
	}
	return &AccountService{
		users:      users,
		tokens:     tokens,
		revoked:    revoked,
		bcryptCost: bcryptCost,
		dummyHash:  dummy,
		verify:     auth.VerifyPassword,
		now:        func() time.Time { return time.Now().UTC() },
		metrics:    m,
		log:        log,
	}
}

var errInvalidCredentials = apperr.Unauthorizedf("invalid username or password")

// SignUp registers a CLIENT account.
func (s *AccountService) SignUp(ctx context.Context, in SignUpInput) (model.User, error) {
	username := repository.NormalizeUsername(in.Username)
	if len(username) < 3 || len(username) > 100 {
		return model.User{}, apperr.BadRequestf("username must be between 3 and 100 characters")
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return model.User{}, apperr.BadRequestf("username must not contain whitespace")
	}
	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return model.User{}, apperr.BadRequestf("password must be at least %d characters", auth.MinPasswordLen)
		}
		return model.User{}, apperr.Wrap(apperr.Internal, err, "hash password")
	}

	u := model.User{
		Username:     username,
		PasswordHash: hash,
		FullName:     in.FullName,
		Phone:        in.Phone,
		Role:         model.RoleClient,
		Enabled:      true,
	}
	if err := s.users.Create(ctx, &u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.User{}, apperr.Conflictf("username already exists")
		}
		return model.User{}, apperr.Wrap(apperr.Internal, err, "create user")
	}
	s.log.Info().Uint64("user_id", u.ID).Str("username", u.Username).Msg("user registered")
	return u, nil
}

// SignIn verifies the password and issues an access and a refresh token.
func (s *AccountService) SignIn(ctx context.Context, username, password string) (TokenPair, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.verify(s.dummyHash, password)
			s.metrics.IncAuthFailure("unknown_user")
			return TokenPair{}, errInvalidCredentials
		}
		return TokenPair{}, apperr.Wrap(apperr.Internal, err, "load user")
	}
	if !s.verify(u.PasswordHash, password) {
		s.metrics.IncAuthFailure("bad_password")
		return TokenPair{}, errInvalidCredentials
	}
	if !u.Enabled {
		s.metrics.IncAuthFailure("disabled")
		return TokenPair{}, apperr.Unauthorizedf("account is disabled")
	}

	access, err := s.tokens.IssueAccessToken(u.Username, string(u.Role))
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.Internal, err, "issue access token")
	}
	refresh, err := s.tokens.IssueRefreshToken(u.Username)
	if err != nil {
		return TokenPair{}, apperr.Wrap(apperr.Internal, err, "issue refresh token")
	}
	s.metrics.IncTokenIssued(string(auth.AccessToken))
	s.metrics.IncTokenIssued(string(auth.RefreshToken))

	return TokenPair{
		AccessToken:      access.Raw,
		RefreshToken:     refresh.Raw,
		TokenType:        "Bearer",
		ExpiresIn:        int64(s.tokens.AccessTTL() / time.Second),
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token.  The
// refresh token itself is not rotated.  The user must still exist, be
// enabled and the token must not have been revoked by a logout.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (AccessGrant, error) {
	if !s.tokens.ValidateRefreshToken(refreshToken) {
		s.metrics.IncAuthFailure("invalid_refresh")
		return AccessGrant{}, apperr.Unauthorizedf("invalid refresh token")
	}
	revoked, err := s.revoked.IsRevoked(ctx, auth.Fingerprint(refreshToken))
	if err != nil {
		return AccessGrant{}, apperr.Wrap(apperr.Internal, err, "check revocation")
	}
	if revoked {
		s.metrics.IncAuthFailure("revoked_refresh")
		return AccessGrant{}, apperr.Unauthorizedf("refresh token has been revoked")
	}

	username := s.tokens.Subject(refreshToken, auth.RefreshToken)
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.IncAuthFailure("unknown_user")
			return AccessGrant{}, apperr.Unauthorizedf("user no longer exists")
		}
		return AccessGrant{}, apperr.Wrap(apperr.Internal, err, "load user")
	}
	if !u.Enabled {
		s.metrics.IncAuthFailure("disabled")
		return AccessGrant{}, apperr.Unauthorizedf("account is disabled")
	}

	access, err := s.tokens.IssueAccessToken(u.Username, string(u.Role))
	if err != nil {
		return AccessGrant{}, apperr.Wrap(apperr.Internal, err, "issue access token")
	}
	s.metrics.IncTokenIssued(string(auth.AccessToken))
	return AccessGrant{
		AccessToken: access.Raw,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.AccessTTL() / time.Second),
		ExpiresAt:   access.ExpiresAt,
	}, nil
}

// Validate reports whether accessToken is valid and, if so, who it names.
func (s *AccountService) Validate(accessToken string) Validation {
	c, ok := s.tokens.Claims(accessToken, auth.AccessToken)
	if !ok {
		return Validation{Valid: false}
	}
	return Validation{Valid: true, Username: c.Subject, Role: c.Role}
}

// Logout revokes a refresh token until it would have expired anyway.
func (s *AccountService) Logout(ctx context.Context, refreshToken string) error {
	c, ok := s.tokens.Claims(refreshToken, auth.RefreshToken)
	if !ok {
		return apperr.Unauthorizedf("invalid refresh token")
	}
	if !s.revoked.Available() {
		return apperr.Unavailablef("logout is unavailable")
	}
	ttl := c.ExpiresAt.Time.Sub(s.now())
	if err := s.revoked.Revoke(ctx, auth.Fingerprint(refreshToken), ttl); err != nil {
		return apperr.Wrap(apperr.Internal, err, "revoke refresh token")
	}
	s.log.Info().Str("username", c.Subject).Msg("refresh token revoked")
	return nil
}
