package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcore/hospital-ledger/auth"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeUserStore map[string]*auth.StoredUser

func (f fakeUserStore) GetUserByUsername(_ context.Context, username string) (*auth.StoredUser, error) {
	return f[username], nil
}

func newTestService(t *testing.T) *auth.Service {
	t.Helper()
	hash, err := auth.HashPassword("secret123")
	require.NoError(t, err)

	store := fakeUserStore{
		"admin": {ID: 1, Username: "admin", PasswordHash: hash, Role: auth.RoleAdmin},
		"nurse": {ID: 2, Username: "nurse", PasswordHash: hash, Role: auth.RoleStaff},
	}
	return auth.NewService(store, "test-signing-key", time.Hour)
}

// =============================================================================
// LOGIN AND VERIFY
// =============================================================================

func TestLogin_ValidCredential(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Login(context.Background(), "admin", "secret123")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	user, err := svc.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.Equal(t, auth.RoleAdmin, user.Role)
}

func TestLogin_WrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, errWrong := svc.Login(ctx, "admin", "nope")
	_, errUnknown := svc.Login(ctx, "ghost", "nope")

	assert.ErrorIs(t, errWrong, auth.ErrInvalidCredentials)
	assert.ErrorIs(t, errUnknown, auth.ErrInvalidCredentials)
	assert.Equal(t, errWrong.Error(), errUnknown.Error(),
		"caller must not be able to probe for usernames")
}

func TestVerify_ExpiredToken(t *testing.T) {
	svc := newTestService(t)

	past := time.Now().Add(-2 * time.Hour)
	svc.SetClock(func() time.Time { return past })
	token, err := svc.Login(context.Background(), "admin", "secret123")
	require.NoError(t, err)

	svc.SetClock(time.Now)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerify_Garbage(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Verify("not.a.token")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestHashPassword_NeverPlaintext(t *testing.T) {
	hash, err := auth.HashPassword("secret123")
	require.NoError(t, err)
	assert.NotContains(t, hash, "secret123")
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func authedRequest(t *testing.T, svc *auth.Service, username string) *http.Request {
	t.Helper()
	token, err := svc.Login(context.Background(), username, "secret123")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestMiddleware_AttachesUser(t *testing.T) {
	svc := newTestService(t)

	var got *auth.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
	})

	rec := httptest.NewRecorder()
	svc.Middleware(next).ServeHTTP(rec, authedRequest(t, svc, "nurse"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "nurse", got.Username)
}

func TestMiddleware_RejectsMissingAndBadTokens(t *testing.T) {
	svc := newTestService(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})

	rec := httptest.NewRecorder()
	svc.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bogus")
	rec = httptest.NewRecorder()
	svc.Middleware(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole_AdminOnly(t *testing.T) {
	svc := newTestService(t)

	called := false
	handler := svc.Middleware(auth.RequireRole(auth.RoleAdmin)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, svc, "nurse"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, called)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, svc, "admin"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}
