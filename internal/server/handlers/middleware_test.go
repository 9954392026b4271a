package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"wimbli/internal/domain/auth"
	"wimbli/internal/domain/chat"
	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/feed"
	"wimbli/internal/domain/validation"
)

func TestLimiterStoreAllow(t *testing.T) {
	s := NewLimiterStore(1, 3, 50*time.Millisecond)
	defer s.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, s.Allow("user:a"), "iteration %d", i)
	}
	assert.False(t, s.Allow("user:a"))
	assert.True(t, s.Allow("user:b"))
}

func TestRateLimitRejectsBurst(t *testing.T) {
	s := NewLimiterStore(0.001, 1, time.Minute)
	defer s.Stop()

	h := RateLimit(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?token=query", nil)
	r.Header.Set("Authorization", "Bearer header")
	assert.Equal(t, "header", bearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/?token=query", nil)
	assert.Equal(t, "query", bearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/?token=query", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(r))
}

type stubProvider struct {
	auth.Provider
	users map[string]*auth.User
}

func (p stubProvider) CurrentUser(ctx context.Context, token string) (*auth.User, error) {
	if u, ok := p.users[token]; ok {
		return u, nil
	}
	return nil, auth.NewError(auth.CodeInvalidToken, "unknown token")
}

func TestAuthenticate(t *testing.T) {
	provider := stubProvider{users: map[string]*auth.User{"t1": {ID: "alice"}}}

	var seen string
	h := Authenticate(provider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := UserFrom(r.Context())
		seen = u.ID + "/" + tokenFrom(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer t1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice/t1", seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), string(auth.CodeInvalidToken))
}

func TestRequireDevice(t *testing.T) {
	var device string
	h := RequireDevice(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		device = DeviceFrom(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/?device=phone", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, "phone", device)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRespondWithServiceError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{validation.New("title", "is required"), http.StatusBadRequest},
		{auth.NewError(auth.CodeEmailInUse, ""), http.StatusConflict},
		{auth.NewError(auth.CodeRequiresRecentLogin, ""), http.StatusForbidden},
		{fmt.Errorf("error getting post: %w", docstore.ErrNotFound), http.StatusNotFound},
		{feed.ErrForbidden, http.StatusForbidden},
		{chat.ErrEmptyMessage, http.StatusBadRequest},
		{fmt.Errorf("sending: %w", chat.ErrNotMember), http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		respondWithServiceError(rec, "Failed", tc.err)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}
