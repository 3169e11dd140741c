package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatekeep/gatekeep-go/internal/model"
	"github.com/gatekeep/gatekeep-go/internal/service"
	"github.com/gatekeep/gatekeep-go/internal/session"
)

type stubAuth struct {
	tokens map[string]*model.Identity
	err    error
	seen   []string
}

func (s *stubAuth) Authenticate(_ context.Context, token string) (*model.Identity, error) {
	s.seen = append(s.seen, token)
	if s.err != nil {
		return nil, s.err
	}
	if identity, ok := s.tokens[token]; ok {
		return identity, nil
	}
	return nil, service.ErrTokenInvalid
}

func identityEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(identity.UserID))
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRequireSession(t *testing.T) {
	auth := &stubAuth{tokens: map[string]*model.Identity{"good": {UserID: "u-1"}}}
	cookies := session.NewCookieManager(session.CookieConfig{})
	h := RequireSession(auth, cookies, discardLogger())(identityEcho(t))

	tests := []struct {
		name       string
		prepare    func(r *http.Request)
		wantStatus int
		wantBody   string
		wantCode   string
	}{
		{
			name:       "cookie",
			prepare:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session", Value: "good"}) },
			wantStatus: http.StatusOK,
			wantBody:   "u-1",
		},
		{
			name:       "bearer fallback",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") },
			wantStatus: http.StatusOK,
			wantBody:   "u-1",
		},
		{
			name:       "missing",
			prepare:    func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthenticated",
		},
		{
			name:       "malformed authorization header",
			prepare:    func(r *http.Request) { r.Header.Set("Authorization", "Basic Zm9vOmJhcg==") },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "unauthenticated",
		},
		{
			name:       "invalid token",
			prepare:    func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session", Value: "bad"}) },
			wantStatus: http.StatusUnauthorized,
			wantCode:   "token_invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/check-status", nil)
			tt.prepare(req)
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec)["error"])
			} else {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRequireSession_Expired(t *testing.T) {
	h := RequireSession(&stubAuth{err: service.ErrTokenExpired}, session.NewCookieManager(session.CookieConfig{}), discardLogger())(identityEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "old"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token_expired", decodeError(t, rec)["error"])
}

func TestRequireSession_InternalErrorIsOpaque(t *testing.T) {
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	h := RequireSession(&stubAuth{err: errors.New("redis: connection pool timeout")}, session.NewCookieManager(session.CookieConfig{}), logger)(identityEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: "tok"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "internal_error", body["error"])
	assert.NotContains(t, rec.Body.String(), "redis")
	assert.Contains(t, logs.String(), "redis: connection pool timeout", "cause goes to the injected logger")
}

func TestOptionalSession(t *testing.T) {
	auth := &stubAuth{tokens: map[string]*model.Identity{"good": {UserID: "u-1"}}}
	h := OptionalSession(auth, session.NewCookieManager(session.CookieConfig{}))(identityEcho(t))

	withSession := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	withSession.AddCookie(&http.Cookie{Name: "session", Value: "good"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withSession)
	assert.Equal(t, "u-1", rec.Body.String())

	invalid := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	invalid.AddCookie(&http.Cookie{Name: "session", Value: "bad"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, invalid)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIdentityFromContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	_, ok = IdentityFromContext(WithIdentity(context.Background(), nil))
	assert.False(t, ok)

	identity, ok := IdentityFromContext(WithIdentity(context.Background(), &model.Identity{UserID: "u-1"}))
	require.True(t, ok)
	assert.Equal(t, "u-1", identity.UserID)
}

func TestRequestLogger(t *testing.T) {
	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(logs, nil))
	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString(`{"password":"hunter22"}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &line))
	assert.Equal(t, "POST", line["method"])
	assert.Equal(t, "/auth/login", line["path"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
	assert.EqualValues(t, len("short and stout"), line["bytes"])
	assert.NotContains(t, logs.String(), "hunter22")
}

func TestSecureHeaders(t *testing.T) {
	h := SecureHeaders(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}
