package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/AfshinJalili/rentabili/libs/logging"
	"github.com/AfshinJalili/rentabili/services/api/internal/authn"
	"github.com/AfshinJalili/rentabili/services/api/internal/cache"
	"github.com/AfshinJalili/rentabili/services/api/internal/events"
	"github.com/AfshinJalili/rentabili/services/api/internal/rate"
	"github.com/AfshinJalili/rentabili/services/api/internal/security"
	"github.com/AfshinJalili/rentabili/services/api/internal/tokens"
	"github.com/AfshinJalili/rentabili/services/testutil"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var testSecret = []byte("test-secret")

type recordingEmitter struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingEmitter) Emit(_ context.Context, eventType string, _ uuid.UUID, _ events.Meta) {
	r.mu.Lock()
	r.types = append(r.types, eventType)
	r.mu.Unlock()
}

func (r *recordingEmitter) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

type testEnv struct {
	router  *gin.Engine
	store   *memStore
	events  *recordingEmitter
	handler *Handler
}

func newTestEnv(t *testing.T, routes Routes) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newMemStore()
	emitter := &recordingEmitter{}
	logger := logging.Discard()
	h := &Handler{
		Store: store,
		Tokens: tokens.NewService(store, tokens.Config{
			Secret:     testSecret,
			Issuer:     "rentabili",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		}),
		Authenticator: authn.NewPasswordAuthenticator(store),
		Events:        emitter,
		Cache:         cache.NewMiddleware(cache.NewMemoryStore(), "test:", logger),
		Logger:        logger,
		Argon2:        security.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		Cookie:        CookieConfig{Name: "refresh_token", Path: "/auth", Secure: true},
		DashboardTTL:  time.Minute,
	}

	r := gin.New()
	h.RegisterRoutes(r, routes)
	return &testEnv{router: r, store: store, events: emitter, handler: h}
}

func (e *testEnv) register(t *testing.T, email, password string) uuid.UUID {
	t.Helper()
	w := testutil.MakeAPIRequest(e.router, http.MethodPost, "/auth/register", map[string]string{
		"email": email, "password": password, "name": "Test User",
	})
	testutil.AssertHTTPStatus(t, w, http.StatusCreated)
	var user struct {
		ID uuid.UUID `json:"id"`
	}
	decode(t, w, &user)
	return user.ID
}

func (e *testEnv) login(t *testing.T, email, password string) (string, *http.Cookie) {
	t.Helper()
	w := testutil.MakeAPIRequest(e.router, http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": password,
	})
	testutil.AssertHTTPStatus(t, w, http.StatusOK)
	var resp tokenResponse
	decode(t, w, &resp)
	cookie := testutil.ResponseCookie(w, "refresh_token")
	if cookie == nil {
		t.Fatalf("expected refresh cookie")
	}
	return resp.AccessToken, cookie
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestTokenLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t, Routes{PublicUsers: true})
	env.register(t, "ana@example.com", "correct-horse")

	access, cookie := env.login(t, "Ana@Example.com", "correct-horse")
	if !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteStrictMode || cookie.Path != "/auth" {
		t.Fatalf("unexpected cookie attributes %+v", cookie)
	}
	if cookie.MaxAge != int((7 * 24 * time.Hour).Seconds()) {
		t.Fatalf("unexpected cookie max-age %d", cookie.MaxAge)
	}

	w := testutil.MakeAuthRequest(env.router, http.MethodGet, "/wallets", nil, access)
	testutil.AssertHTTPStatus(t, w, http.StatusOK)

	w = testutil.Do(env.router, testutil.Request{Method: http.MethodPost, Path: "/auth/refresh", Cookies: []*http.Cookie{cookie}})
	testutil.AssertHTTPStatus(t, w, http.StatusOK)
	rotated := testutil.ResponseCookie(w, "refresh_token")
	if rotated == nil || rotated.Value == cookie.Value {
		t.Fatalf("expected a new refresh cookie")
	}

	w = testutil.Do(env.router, testutil.Request{Method: http.MethodPost, Path: "/auth/refresh", Cookies: []*http.Cookie{cookie}})
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeUnauthorized)

	w = testutil.Do(env.router, testutil.Request{Method: http.MethodPost, Path: "/auth/logout", Cookies: []*http.Cookie{rotated}})
	testutil.AssertHTTPStatus(t, w, http.StatusNoContent)
	if cleared := testutil.ResponseCookie(w, "refresh_token"); cleared == nil || cleared.MaxAge >= 0 {
		t.Fatalf("expected cookie cleared on logout")
	}

	w = testutil.Do(env.router, testutil.Request{Method: http.MethodPost, Path: "/auth/refresh", Cookies: []*http.Cookie{rotated}})
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeUnauthorized)

	want := []string{events.TypeUserRegistered, events.TypeSessionStarted, events.TypeSessionRotated, events.TypeSessionRevoked}
	got := env.events.seen()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestLogoutAlwaysNoContent(t *testing.T) {
	env := newTestEnv(t, Routes{})

	w := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/logout", nil)
	testutil.AssertHTTPStatus(t, w, http.StatusNoContent)

	garbage := &http.Cookie{Name: "refresh_token", Value: "not-a-token"}
	for i := 0; i < 2; i++ {
		w = testutil.Do(env.router, testutil.Request{Method: http.MethodPost, Path: "/auth/logout", Cookies: []*http.Cookie{garbage}})
		testutil.AssertHTTPStatus(t, w, http.StatusNoContent)
	}

	env.store.tokenErr = errStoreDown
	w = testutil.Do(env.router, testutil.Request{Method: http.MethodPost, Path: "/auth/logout", Cookies: []*http.Cookie{garbage}})
	testutil.AssertHTTPStatus(t, w, http.StatusNoContent)
}

func TestRefreshWithoutCookie(t *testing.T) {
	env := newTestEnv(t, Routes{})
	w := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/refresh", nil)
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeUnauthorized)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t, Routes{})
	env.register(t, "ana@example.com", "correct-horse")
	access, _ := env.login(t, "ana@example.com", "correct-horse")

	w := testutil.Do(env.router, testutil.Request{
		Method:  http.MethodPost,
		Path:    "/auth/refresh",
		Cookies: []*http.Cookie{{Name: "refresh_token", Value: access}},
	})
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeUnauthorized)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, Routes{})
	env.register(t, "ana@example.com", "correct-horse")

	w := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/login", map[string]string{
		"email": "ana@example.com", "password": "wrong-horse",
	})
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeUnauthorized)

	w = testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/login", map[string]string{"email": "ana@example.com"})
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeInvalidRequest)
}

func TestLoginPersistenceFailureIssuesNoToken(t *testing.T) {
	env := newTestEnv(t, Routes{})
	env.register(t, "ana@example.com", "correct-horse")
	env.store.tokenErr = errStoreDown

	w := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/login", map[string]string{
		"email": "ana@example.com", "password": "correct-horse",
	})
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeInternalError)
	if testutil.ResponseCookie(w, "refresh_token") != nil {
		t.Fatalf("no refresh cookie may be set on persistence failure")
	}
	var body map[string]any
	decode(t, w, &body)
	if _, ok := body["access_token"]; ok {
		t.Fatalf("no access token may be returned on persistence failure")
	}
}

func TestRegisterValidationAndConflict(t *testing.T) {
	env := newTestEnv(t, Routes{})
	env.register(t, "ana@example.com", "correct-horse")

	w := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/register", map[string]string{
		"email": "ANA@example.com", "password": "another-pass", "name": "Dup",
	})
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeConflict)

	w = testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/register", map[string]string{
		"email": "not-an-email", "password": "correct-horse", "name": "X",
	})
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeInvalidRequest)
	testutil.AssertErrorMessage(t, w, "email must be a valid email")

	w = testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/register", map[string]string{
		"email": "bia@example.com", "password": "short", "name": "X",
	})
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeInvalidRequest)
	testutil.AssertErrorMessage(t, w, "password must be at least 8 characters")
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t, Routes{
		Login: rate.Middleware("auth", rate.NewMemory(5, 5*time.Minute), logging.Discard(), nil),
	})

	body := map[string]string{"email": "nobody@example.com", "password": "whatever"}
	for i := 0; i < 5; i++ {
		w := testutil.Do(env.router, testutil.Request{Method: http.MethodPost, Path: "/auth/login", Body: body, RemoteAddr: "10.0.0.9:5555"})
		testutil.AssertErrorCode(t, w, testutil.ErrorCodeUnauthorized)
	}
	w := testutil.Do(env.router, testutil.Request{Method: http.MethodPost, Path: "/auth/login", Body: body, RemoteAddr: "10.0.0.9:5555"})
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeRateLimited)

	w = testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/refresh", nil)
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeUnauthorized)
}

func TestProtectedRoutesAuth(t *testing.T) {
	env := newTestEnv(t, Routes{})

	w := testutil.MakeAPIRequest(env.router, http.MethodGet, "/wallets", nil)
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeUnauthorized)

	w = testutil.MakeAuthRequest(env.router, http.MethodGet, "/wallets", nil, "garbage")
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeForbidden)

	refresh, err := testutil.GenerateJWT(testutil.DemoUserID, "refresh", testSecret, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	w = testutil.MakeAuthRequest(env.router, http.MethodGet, "/wallets", nil, refresh)
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeForbidden)

	expired, err := testutil.GenerateJWT(testutil.DemoUserID, "access", testSecret, time.Minute, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	w = testutil.MakeAuthRequest(env.router, http.MethodGet, "/wallets", nil, expired)
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeForbidden)
}

func TestPublicUserRoutesFlag(t *testing.T) {
	public := newTestEnv(t, Routes{PublicUsers: true})
	w := testutil.MakeAPIRequest(public.router, http.MethodGet, "/users", nil)
	testutil.AssertHTTPStatus(t, w, http.StatusOK)

	private := newTestEnv(t, Routes{PublicUsers: false})
	w = testutil.MakeAPIRequest(private.router, http.MethodGet, "/users", nil)
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeUnauthorized)

	token, err := testutil.GenerateAccessToken(testutil.DemoUserID, testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	w = testutil.MakeAuthRequest(private.router, http.MethodGet, "/users", nil, token)
	testutil.AssertHTTPStatus(t, w, http.StatusOK)
}

func TestGeneralLimiterCoversAPIRoutes(t *testing.T) {
	env := newTestEnv(t, Routes{
		General: rate.Middleware("general", rate.NewMemory(2, time.Minute), logging.Discard(), nil),
	})
	for i := 0; i < 2; i++ {
		w := testutil.MakeAPIRequest(env.router, http.MethodGet, "/wallets", nil)
		testutil.AssertErrorCode(t, w, testutil.ErrorCodeUnauthorized)
	}
	w := testutil.MakeAPIRequest(env.router, http.MethodPost, "/auth/logout", nil)
	testutil.AssertErrorCode(t, w, testutil.ErrorCodeRateLimited)
}
