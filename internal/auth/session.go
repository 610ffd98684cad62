// Package auth covers users, role capabilities and token-based sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/obs"
)

const (
	defaultIssuer     = "moc-studio"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	minSecretLength   = 16
	auditResource     = "session"
)

// Claims represents JWT claims carried by access tokens.
type Claims struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
	jwt.RegisteredClaims
}

// Auditor records global audit entries. *audit.Ledger satisfies it.
type Auditor interface {
	Append(ctx context.Context, targetID string, entry audit.Entry) (audit.Entry, error)
}

// Service issues and verifies sessions.
type Service struct {
	users      UserStore
	refresh    RefreshStore
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	auditor    Auditor
	log        *zap.Logger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithRefreshStore replaces the default in-memory refresh token store.
func WithRefreshStore(rs RefreshStore) ServiceOption {
	return func(s *Service) error {
		if rs == nil {
			return errors.New("auth: refresh store is nil")
		}
		s.refresh = rs
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

func WithAuditor(a Auditor) ServiceOption {
	return func(s *Service) error {
		s.auditor = a
		return nil
	}
}

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) error {
		s.log = l
		return nil
	}
}

// NewService constructs a session service. secret signs access tokens.
func NewService(users UserStore, secret string, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, errors.New("auth: user store is required")
	}
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("auth: secret must be at least %d characters", minSecretLength)
	}
	s := &Service{
		users:      users,
		refresh:    NewInMemoryRefresh(),
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Users exposes the backing user store.
func (s *Service) Users() UserStore { return s.users }

// Login opens a session for the active user registered under email. Users
// with a password must use LoginWithPassword.
func (s *Service) Login(ctx context.Context, email string) (Session, error) {
	return s.LoginWithPassword(ctx, email, "")
}

// LoginWithPassword opens a session after checking password against the
// user's stored hash. The password is ignored for users without one.
func (s *Service) LoginWithPassword(ctx context.Context, email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Session{}, fmt.Errorf("%w: email is required", apperr.ErrValidation)
	}
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			obs.ObserveSession("login_rejected")
			return Session{}, fmt.Errorf("%w: unknown user", apperr.ErrUnauthenticated)
		}
		return Session{}, err
	}
	if !u.Active {
		obs.ObserveSession("login_rejected")
		s.audit(ctx, u, audit.ActionSecurityViolation, "login attempt by inactive user")
		return Session{}, fmt.Errorf("%w: user is inactive", apperr.ErrUnauthenticated)
	}
	if u.PasswordHash != "" {
		if err := VerifyPassword(u.PasswordHash, password); err != nil {
			obs.ObserveSession("login_rejected")
			s.audit(ctx, u, audit.ActionSecurityViolation, "login with invalid credentials")
			return Session{}, fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthenticated)
		}
	}
	sess, err := s.mint(ctx, u)
	if err != nil {
		return Session{}, err
	}
	obs.ObserveSession("login")
	s.audit(ctx, u, audit.ActionLogin, "login")
	return sess, nil
}

// ValidateToken verifies an access token and returns its user. Expired tokens
// fail with apperr.ErrSessionExpired, anything else with ErrUnauthenticated.
func (s *Service) ValidateToken(ctx context.Context, token string) (User, error) {
	claims, err := s.parseAccess(token)
	if err != nil {
		return User{}, err
	}
	u, err := s.users.Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return User{}, fmt.Errorf("%w: token subject unknown", apperr.ErrUnauthenticated)
		}
		return User{}, err
	}
	if !u.Active {
		return User{}, fmt.Errorf("%w: user is inactive", apperr.ErrUnauthenticated)
	}
	return u, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// session is minted.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	rec, err := s.lookupRefresh(ctx, refreshToken)
	if err != nil {
		obs.ObserveSession("refresh_rejected")
		return Session{}, err
	}
	u, err := s.users.Find(ctx, rec.UserID)
	if err != nil || !u.Active {
		obs.ObserveSession("refresh_rejected")
		return Session{}, fmt.Errorf("%w: user unavailable", apperr.ErrSessionExpired)
	}
	if err := s.refresh.Revoke(ctx, rec.ID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Session{}, fmt.Errorf("%w: refresh token already used", apperr.ErrSessionExpired)
		}
		return Session{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	sess, err := s.mint(ctx, u)
	if err != nil {
		return Session{}, err
	}
	obs.ObserveSession("refresh")
	return sess, nil
}

// Logout revokes a refresh token. Unknown or malformed tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	id, _, err := splitRefreshToken(refreshToken)
	if err != nil {
		return nil
	}
	rec, err := s.refresh.Find(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return err
	}
	if rec.Revoked {
		return nil
	}
	if err := s.refresh.Revoke(ctx, id); err != nil {
		// Lost a race with another logout or refresh of the same token.
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	obs.ObserveSession("logout")
	if u, err := s.users.Find(ctx, rec.UserID); err == nil {
		s.audit(ctx, u, audit.ActionLogout, "logout")
	}
	return nil
}

// Resume restores a session on start-up: a valid access token is kept, an
// expired one is replaced through the refresh token, otherwise the session
// is expired.
func (s *Service) Resume(ctx context.Context, accessToken, refreshToken string) (Session, error) {
	if strings.TrimSpace(accessToken) != "" {
		u, err := s.ValidateToken(ctx, accessToken)
		if err == nil {
			claims, _ := s.parseAccess(accessToken)
			sess := Session{User: u, Token: accessToken, RefreshToken: refreshToken}
			if claims != nil && claims.ExpiresAt != nil {
				sess.AccessExpiresAt = claims.ExpiresAt.Time
			}
			return sess, nil
		}
	}
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, fmt.Errorf("%w: no usable credentials", apperr.ErrSessionExpired)
	}
	sess, err := s.Refresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, apperr.ErrSessionExpired) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("%w: %v", apperr.ErrSessionExpired, err)
	}
	return sess, nil
}

func (s *Service) mint(ctx context.Context, u User) (Session, error) {
	now := s.now().UTC()
	access, accessExp, err := s.signAccess(u, now)
	if err != nil {
		return Session{}, err
	}
	refresh, rec, err := generateRefreshToken(u.ID, now, s.refreshTTL)
	if err != nil {
		return Session{}, fmt.Errorf("generate refresh token: %w", err)
	}
	if err := s.refresh.Save(ctx, rec); err != nil {
		return Session{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Session{
		User:             u,
		Token:            access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rec.ExpiresAt,
	}, nil
}

func (s *Service) signAccess(u User, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.accessTTL)
	claims := Claims{
		Name: u.Name,
		Role: u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (s *Service) parseAccess(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", apperr.ErrUnauthenticated)
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: access token expired", apperr.ErrSessionExpired)
		}
		return nil, fmt.Errorf("%w: invalid token", apperr.ErrUnauthenticated)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: invalid token", apperr.ErrUnauthenticated)
	}
	return claims, nil
}

func (s *Service) lookupRefresh(ctx context.Context, raw string) (RefreshToken, error) {
	id, secret, err := splitRefreshToken(raw)
	if err != nil {
		return RefreshToken{}, fmt.Errorf("%w: malformed refresh token", apperr.ErrSessionExpired)
	}
	rec, err := s.refresh.Find(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return RefreshToken{}, fmt.Errorf("%w: unknown refresh token", apperr.ErrSessionExpired)
		}
		return RefreshToken{}, err
	}
	if rec.Revoked || !s.now().Before(rec.ExpiresAt) {
		return RefreshToken{}, fmt.Errorf("%w: refresh token no longer valid", apperr.ErrSessionExpired)
	}
	if !secureCompareHash(rec.TokenHash, secret) {
		_ = s.refresh.Revoke(ctx, rec.ID)
		return RefreshToken{}, fmt.Errorf("%w: refresh token mismatch", apperr.ErrSessionExpired)
	}
	return rec, nil
}

func (s *Service) audit(ctx context.Context, u User, action audit.Action, details string) {
	if s.auditor == nil {
		return
	}
	_, err := s.auditor.Append(ctx, u.ID, u.Actor().Entry(auditResource, action, details))
	if err != nil {
		s.logger().Warn("audit append failed", zap.String("user_id", u.ID), zap.Error(err))
	}
}

func (s *Service) logger() *zap.Logger {
	if s.log != nil {
		return s.log
	}
	return obs.Logger()
}
