package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactbook/api/internal/config"
	"contactbook/api/internal/mail"
	"contactbook/api/internal/models"
	"contactbook/api/internal/repository"
	"contactbook/api/internal/security"
	"contactbook/api/internal/service"
)

// --- In-memory fakes backing a real AuthService ---

type memUserRepo struct {
	mu     sync.Mutex
	users  map[string]models.User // keyed by email
	tokens map[string]string      // refresh token -> user id
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[string]models.User{}, tokens: map[string]string{}}
}

func (r *memUserRepo) Create(ctx context.Context, user models.User) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Email]; ok {
		return models.User{}, repository.ErrUserExists
	}
	user.CreatedAt = time.Now().UTC()
	r.users[user.Email] = user
	return user, nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[email]; ok {
		return u, nil
	}
	return models.User{}, repository.ErrUserNotFound
}

func (r *memUserRepo) GetByUsernameAndRefreshToken(ctx context.Context, username, token string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.tokens[token]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	for _, u := range r.users {
		if u.Username == username && u.ID == userID {
			return u, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (r *memUserRepo) ConfirmEmail(ctx context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Confirmed = true
	r.users[email] = u
	return nil
}

func (r *memUserRepo) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	r.users[email] = u
	return nil
}

type memTokenStore struct {
	repo *memUserRepo
}

func (s *memTokenStore) Create(ctx context.Context, rec models.RefreshToken) (models.RefreshToken, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	s.repo.tokens[rec.Token] = rec.UserID
	return rec, nil
}

func (s *memTokenStore) Rotate(ctx context.Context, oldToken string, rec models.RefreshToken, userID string) (*models.RefreshToken, error) {
	s.repo.mu.Lock()
	defer s.repo.mu.Unlock()
	owner, ok := s.repo.tokens[oldToken]
	if !ok || owner != userID {
		return nil, nil
	}
	delete(s.repo.tokens, oldToken)
	s.repo.tokens[rec.Token] = userID
	rec.UserID = userID
	return &rec, nil
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, token string) (*models.User, error) { return nil, nil }
func (noopCache) Set(ctx context.Context, token string, user models.User) error {
	return nil
}

type captureMailer struct {
	mu   sync.Mutex
	last mail.Message
	done chan struct{}
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{done: make(chan struct{}, 8)}
}

func (m *captureMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	m.last = msg
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

func (m *captureMailer) wait(t *testing.T) mail.Message {
	t.Helper()
	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("no email dispatched within 2s")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// --- Router fixture ---

type apiFixture struct {
	router *gin.Engine
	repo   *memUserRepo
	mailer *captureMailer
	codec  *security.TokenCodec
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		HTTP: config.HTTPConfig{PublicURL: "http://localhost:8080"},
		Security: config.SecurityConfig{
			JWTSecret:       "test-secret",
			JWTAlgorithm:    "HS256",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
	}
	codec, err := security.NewTokenCodec(cfg.Security.JWTSecret, cfg.Security.JWTAlgorithm)
	require.NoError(t, err)

	repo := newMemUserRepo()
	mailer := newCaptureMailer()
	auth := service.NewAuthService(repo, &memTokenStore{repo: repo}, noopCache{}, codec, mailer, cfg, zerolog.Nop())

	h := HandlerSet{
		log:         zerolog.Nop(),
		cfg:         cfg,
		authService: auth,
	}

	router := gin.New()
	router.SetHTMLTemplate(Templates())
	h.Register(router.Group("/api"))

	return &apiFixture{router: router, repo: repo, mailer: mailer, codec: codec}
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return f.do(req)
}

func (f *apiFixture) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req)
}

func (f *apiFixture) registerAndConfirm(t *testing.T) {
	t.Helper()
	rec := f.postJSON("/api/auth/register", `{"username":"alice","email":"alice@example.com","password":"S3cure!pass"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	f.mailer.wait(t)
	require.NoError(t, f.repo.ConfirmEmail(context.Background(), "alice@example.com"))
}

func (f *apiFixture) login(t *testing.T) tokenResponse {
	t.Helper()
	rec := f.postForm("/api/auth/login", url.Values{"username": {"alice"}, "password": {"S3cure!pass"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func messageOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["message"]
}

// --- Register ---

func TestRegisterEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.postJSON("/api/auth/register", `{"username":"alice","email":"alice@example.com","password":"S3cure!pass"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Username)
	assert.Equal(t, "user", resp.Role)
	require.NotNil(t, resp.Avatar)
	assert.Contains(t, *resp.Avatar, "gravatar.com")
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestRegisterEndpoint_DuplicateEmail(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndConfirm(t)

	rec := f.postJSON("/api/auth/register", `{"username":"alice2","email":"alice@example.com","password":"S3cure!pass"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User with such email already exists", messageOf(t, rec))
}

func TestRegisterEndpoint_DuplicateUsername(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndConfirm(t)

	rec := f.postJSON("/api/auth/register", `{"username":"alice","email":"other@example.com","password":"S3cure!pass"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User with such username already exists", messageOf(t, rec))
}

func TestRegisterEndpoint_WeakPassword(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.postJSON("/api/auth/register", `{"username":"alice","email":"alice@example.com","password":"alllowercase1!"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, messageOf(t, rec), "uppercase")
}

// --- Login ---

func TestLoginEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndConfirm(t)

	resp := f.login(t)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
}

func TestLoginEndpoint_WrongPassword(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndConfirm(t)

	rec := f.postForm("/api/auth/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not valid password or username", messageOf(t, rec))
}

func TestLoginEndpoint_UnconfirmedEmail(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.postJSON("/api/auth/register", `{"username":"alice","email":"alice@example.com","password":"S3cure!pass"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	f.mailer.wait(t)

	rec = f.postForm("/api/auth/login", url.Values{"username": {"alice"}, "password": {"S3cure!pass"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Email must be confirmed", messageOf(t, rec))
}

// --- Email confirmation ---

func TestConfirmEmailEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.postJSON("/api/auth/register", `{"username":"alice","email":"alice@example.com","password":"S3cure!pass"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	msg := f.mailer.wait(t)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/auth/confirmed_email/"+msg.Token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Email confirmed successfully", messageOf(t, rec))

	// confirming again is idempotent
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/auth/confirmed_email/"+msg.Token, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Your email is already confirmed", messageOf(t, rec))
}

func TestConfirmEmailEndpoint_MalformedToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/confirmed_email/garbage", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Invalid email verification token", messageOf(t, rec))
}

// --- Refresh ---

func TestRefreshEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndConfirm(t)
	pair := f.login(t)

	rec := f.postJSON("/api/auth/refresh-token", `{"refresh_token":"`+pair.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, pair.RefreshToken, resp.RefreshToken, "refresh must return the rotated token")

	// the superseded token is dead
	rec = f.postJSON("/api/auth/refresh-token", `{"refresh_token":"`+pair.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired refresh token", messageOf(t, rec))

	// the rotated token still works
	rec = f.postJSON("/api/auth/refresh-token", `{"refresh_token":"`+resp.RefreshToken+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshEndpoint_AccessTokenRejected(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndConfirm(t)
	pair := f.login(t)

	rec := f.postJSON("/api/auth/refresh-token", `{"refresh_token":"`+pair.AccessToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired refresh token", messageOf(t, rec))
}

// --- Current user ---

func TestMeEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndConfirm(t)
	pair := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.Username)
}

func TestMeEndpoint_MissingToken(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/users/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Could not validate credentials", messageOf(t, rec))
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestMeEndpoint_RefreshTokenRejected(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndConfirm(t)
	pair := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	rec := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- Password reset ---

func TestPasswordResetFlow(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndConfirm(t)

	rec := f.postJSON("/api/auth/reset-password-request", `{"email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Check your mailbox for reset password email", messageOf(t, rec))
	msg := f.mailer.wait(t)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/auth/reset-password-form/"+msg.Token, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), msg.Token)

	rec = f.postForm("/api/auth/reset-password", url.Values{
		"token":        {msg.Token},
		"new_password": {"N3w!password"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Password has been reset successfully", messageOf(t, rec))

	// old password no longer works, new one does
	rec = f.postForm("/api/auth/login", url.Values{"username": {"alice"}, "password": {"S3cure!pass"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.postForm("/api/auth/login", url.Values{"username": {"alice"}, "password": {"N3w!password"}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPasswordResetEndpoint_MissingFields(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.postForm("/api/auth/reset-password", url.Values{"token": {"abc"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid data", messageOf(t, rec))
}

// --- Error mapping ---

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{service.ErrInvalidCredentials, http.StatusUnauthorized, "Not valid password or username"},
		{service.ErrEmailNotConfirmed, http.StatusUnauthorized, "Email must be confirmed"},
		{service.ErrEmailTaken, http.StatusConflict, "User with such email already exists"},
		{service.ErrUsernameTaken, http.StatusConflict, "User with such username already exists"},
		{service.ErrForbidden, http.StatusForbidden, "Forbidden"},
		{service.ErrInvalidRefreshToken, http.StatusUnauthorized, "Invalid or expired refresh token"},
		{service.ErrVerification, http.StatusBadRequest, "Verification error"},
		{security.ErrTokenExpired, http.StatusUnprocessableEntity, "Invalid email verification token"},
		{service.ErrContactNotFound, http.StatusNotFound, "Contact not found"},
		{errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		status, message := statusForError(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.message, message, tt.err.Error())
	}
}
