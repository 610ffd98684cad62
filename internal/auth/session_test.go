package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/apperr"
	"github.com/celloweb-ai/MOC-Studio-BR/internal/audit"
)

const testSecret = "test-secret-0123456789"

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *fakeClock, *audit.Ledger) {
	t.Helper()
	users := NewInMemoryUsers()
	ctx := context.Background()
	for _, u := range []User{
		{ID: "1", Name: "Admin User", Email: "admin@moctudio.com", Role: RoleAdmin, Active: true},
		{ID: "2", Name: "Carlos Processos", Email: "carlos@oilgas.com", Role: RoleProcessEngineer, Active: true},
		{ID: "9", Name: "Former Staff", Email: "former@oilgas.com", Role: RoleHSECoordinator, Active: false},
	} {
		_, err := users.Create(ctx, u)
		require.NoError(t, err)
	}
	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	ledger, err := audit.NewLedger(audit.NewInMemory())
	require.NoError(t, err)
	base := []ServiceOption{WithClock(clock.Now), WithAuditor(ledger), WithAccessTTL(15 * time.Minute)}
	svc, err := NewService(users, testSecret, append(base, opts...)...)
	require.NoError(t, err)
	return svc, clock, ledger
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(NewInMemoryUsers(), "short")
	require.Error(t, err)
}

func TestLoginAndValidate(t *testing.T) {
	svc, _, ledger := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Login(ctx, "Carlos@OilGas.com")
	require.NoError(t, err)
	require.Equal(t, "2", sess.User.ID)
	require.NotEmpty(t, sess.Token)
	require.NotEmpty(t, sess.RefreshToken)
	require.True(t, sess.RefreshExpiresAt.After(sess.AccessExpiresAt))

	u, err := svc.ValidateToken(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, RoleProcessEngineer, u.Role)

	entries, err := ledger.All(ctx, audit.Query{Action: audit.ActionLogin})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLoginRejections(t *testing.T) {
	svc, _, ledger := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, "")
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Login(ctx, "nobody@oilgas.com")
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = svc.Login(ctx, "former@oilgas.com")
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)

	entries, err := ledger.All(ctx, audit.Query{Action: audit.ActionSecurityViolation})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestPasswordLogin(t *testing.T) {
	svc, _, ledger := newTestService(t)
	ctx := context.Background()

	hash, err := HashPassword("p50-albacora")
	require.NoError(t, err)
	_, err = svc.Users().Create(ctx, User{ID: "3", Name: "Ana HSE", Email: "ana@oilgas.com", Role: RoleHSECoordinator, Active: true, PasswordHash: hash})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ana@oilgas.com")
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = svc.LoginWithPassword(ctx, "ana@oilgas.com", "wrong-password")
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
	sess, err := svc.LoginWithPassword(ctx, "ana@oilgas.com", "p50-albacora")
	require.NoError(t, err)
	require.Equal(t, "3", sess.User.ID)

	// A password is not required from users that have none.
	_, err = svc.LoginWithPassword(ctx, "carlos@oilgas.com", "anything")
	require.NoError(t, err)

	trail, err := ledger.Read(ctx, "3")
	require.NoError(t, err)
	require.Len(t, trail, 3)
	require.Equal(t, audit.ActionSecurityViolation, trail[0].Action)
	require.Equal(t, audit.ActionLogin, trail[2].Action)

	_, err = HashPassword("short")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestValidateRejectsForeignTokens(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	otherSecret, _, _ := newTestService(t)
	otherSecret.secret = []byte("another-secret-0123456789")
	sess, err := otherSecret.Login(ctx, "admin@moctudio.com")
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, sess.Token)
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)

	otherIssuer, _, _ := newTestService(t, WithIssuer("someone-else"))
	sess, err = otherIssuer.Login(ctx, "admin@moctudio.com")
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, sess.Token)
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = svc.ValidateToken(ctx, "not-a-jwt")
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = svc.ValidateToken(ctx, "")
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestExpiredAccessToken(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Login(ctx, "admin@moctudio.com")
	require.NoError(t, err)

	clock.Advance(16 * time.Minute)
	_, err = svc.ValidateToken(ctx, sess.Token)
	require.ErrorIs(t, err, apperr.ErrSessionExpired)
}

func TestRefreshRotates(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	first, err := svc.Login(ctx, "admin@moctudio.com")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	second, err := svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.NotEqual(t, first.Token, second.Token)

	_, err = svc.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrSessionExpired)

	_, err = svc.Refresh(ctx, "garbage")
	require.ErrorIs(t, err, apperr.ErrSessionExpired)

	id, _, err := splitRefreshToken(second.RefreshToken)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, id+".wrong-secret")
	require.ErrorIs(t, err, apperr.ErrSessionExpired)
	_, err = svc.Refresh(ctx, second.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrSessionExpired, "a mismatched secret revokes the token")
}

func TestRefreshExpires(t *testing.T) {
	svc, clock, _ := newTestService(t, WithRefreshTTL(time.Hour))
	ctx := context.Background()
	sess, err := svc.Login(ctx, "admin@moctudio.com")
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = svc.Refresh(ctx, sess.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrSessionExpired)
}

func TestLogoutRevokes(t *testing.T) {
	svc, _, ledger := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Login(ctx, "admin@moctudio.com")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, sess.RefreshToken))
	require.NoError(t, svc.Logout(ctx, sess.RefreshToken))
	require.NoError(t, svc.Logout(ctx, "junk"))

	_, err = svc.Refresh(ctx, sess.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrSessionExpired)

	entries, err := ledger.All(ctx, audit.Query{Action: audit.ActionLogout})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// softRevokeStore keeps revoked tokens around flagged instead of deleting them.
type softRevokeStore struct {
	*InMemoryRefresh
	revoked map[string]RefreshToken
}

func (s *softRevokeStore) Find(ctx context.Context, id string) (RefreshToken, error) {
	if tok, ok := s.revoked[id]; ok {
		return tok, nil
	}
	return s.InMemoryRefresh.Find(ctx, id)
}

func (s *softRevokeStore) Revoke(ctx context.Context, id string) error {
	tok, err := s.InMemoryRefresh.Find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.InMemoryRefresh.Revoke(ctx, id); err != nil {
		return err
	}
	tok.Revoked = true
	s.revoked[id] = tok
	return nil
}

func TestRepeatedLogoutAuditsOnce(t *testing.T) {
	store := &softRevokeStore{InMemoryRefresh: NewInMemoryRefresh(), revoked: map[string]RefreshToken{}}
	svc, _, ledger := newTestService(t, WithRefreshStore(store))
	ctx := context.Background()
	sess, err := svc.Login(ctx, "carlos@oilgas.com")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Logout(ctx, sess.RefreshToken))
	}

	entries, err := ledger.All(ctx, audit.Query{Action: audit.ActionLogout})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestInMemoryRefreshEvicts(t *testing.T) {
	svc, clock, _ := newTestService(t, WithRefreshTTL(time.Hour))
	store := svc.refresh.(*InMemoryRefresh)
	ctx := context.Background()

	first, err := svc.Login(ctx, "carlos@oilgas.com")
	require.NoError(t, err)
	second, err := svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, 1, store.size(), "rotation drops the old token")

	require.NoError(t, svc.Logout(ctx, second.RefreshToken))
	require.Equal(t, 0, store.size())

	_, err = svc.Login(ctx, "admin@moctudio.com")
	require.NoError(t, err)
	clock.Advance(2 * time.Hour)
	_, err = svc.Login(ctx, "carlos@oilgas.com")
	require.NoError(t, err)
	require.Equal(t, 1, store.size(), "expired tokens are swept on save")
}

func TestResume(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Login(ctx, "carlos@oilgas.com")
	require.NoError(t, err)

	kept, err := svc.Resume(ctx, sess.Token, sess.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, sess.Token, kept.Token)
	require.Equal(t, sess.RefreshToken, kept.RefreshToken)

	clock.Advance(20 * time.Minute)
	renewed, err := svc.Resume(ctx, sess.Token, sess.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, sess.Token, renewed.Token)
	require.Equal(t, "2", renewed.User.ID)

	_, err = svc.Resume(ctx, sess.Token, sess.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrSessionExpired)
	_, err = svc.Resume(ctx, "", "")
	require.ErrorIs(t, err, apperr.ErrSessionExpired)
}

func TestDeactivatedUserLosesSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess, err := svc.Login(ctx, "carlos@oilgas.com")
	require.NoError(t, err)

	u := sess.User
	u.Active = false
	_, err = svc.Users().Update(ctx, u)
	require.NoError(t, err)

	_, err = svc.ValidateToken(ctx, sess.Token)
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = svc.Refresh(ctx, sess.RefreshToken)
	require.ErrorIs(t, err, apperr.ErrSessionExpired)
}
