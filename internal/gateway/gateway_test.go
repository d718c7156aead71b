package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCreds struct {
	token   string
	cookies []*http.Cookie
}

func (s staticCreds) Token(context.Context) (string, error) { return s.token, nil }
func (s staticCreds) BackendCookies() []*http.Cookie       { return s.cookies }

func quiet() Option { return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))) }

func TestDo_AttachesBearerAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		ck, err := r.Cookie("azor_access")
		assert.NoError(t, err)
		assert.Equal(t, "backend", ck.Value)
		assert.Equal(t, "/users/me", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"u1"}`))
	}))
	defer srv.Close()

	gw := NewClient(srv.URL+"/", quiet()).With(staticCreds{
		token:   "tok",
		cookies: []*http.Cookie{{Name: "azor_access", Value: "backend"}},
	})
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, gw.Do(context.Background(), Request{Path: "/users/me"}, &out))
	assert.Equal(t, "u1", out.ID)
}

func TestDo_CallerAuthorizationWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer provisional", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	gw := NewClient(srv.URL, quiet()).With(staticCreds{token: "session"})
	h := http.Header{}
	h.Set("Authorization", "Bearer provisional")
	var out map[string]any
	require.NoError(t, gw.Do(context.Background(), Request{Method: http.MethodPost, Path: "x", Header: h}, &out))
	assert.Nil(t, out)
}

func TestDo_AnonymousSendsNoCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.Empty(t, r.Cookies())
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "a@b.c", r.PostForm.Get("username"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	gw := NewClient(srv.URL, quiet()).With(staticCreds{token: "stale", cookies: []*http.Cookie{{Name: "azor_access", Value: "x"}}})
	err := gw.Do(context.Background(), Request{
		Method:    http.MethodPost,
		Path:      "/auth/token",
		Form:      url.Values{"username": {"a@b.c"}},
		Anonymous: true,
	}, nil)
	require.NoError(t, err)
}

func TestDo_StatusErrorCarriesTruncatedBody(t *testing.T) {
	long := strings.Repeat("x", 2*MaxErrorBody)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(long))
	}))
	defer srv.Close()

	err := NewClient(srv.URL, quiet()).With(nil).Do(context.Background(), Request{Method: http.MethodDelete, Path: "/referrals/1"}, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, http.MethodDelete, se.Method)
	assert.Equal(t, srv.URL+"/referrals/1", se.URL)
	assert.Len(t, se.Body, MaxErrorBody)
	assert.True(t, IsStatus(err, 401, 404))
	assert.False(t, IsStatus(err, 404))
}

func TestDo_TimeoutIsTransportError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	err := NewClient(srv.URL, quiet()).With(nil).Do(context.Background(), Request{Path: "/slow", Timeout: 50 * time.Millisecond}, nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 0, StatusOf(err))
}

func TestDo_RejectsTwoBodies(t *testing.T) {
	err := NewClient("http://127.0.0.1:1", quiet()).With(nil).Do(context.Background(), Request{
		JSON: map[string]string{"a": "b"},
		Form: url.Values{"a": {"b"}},
	}, nil)
	require.Error(t, err)
	assert.Equal(t, 0, StatusOf(err))
}

func TestBearer(t *testing.T) {
	tok, err := Bearer("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
}

func TestDo_QueryStaysOutOfLogsAndErrors(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ring me at 5pm", r.URL.Query().Get("note"))
		if r.URL.Path == "/slow" {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	defer close(release)

	var logs strings.Builder
	c := NewClient(srv.URL, WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	note := url.Values{"note": {"ring me at 5pm"}}

	err := c.With(nil).Do(context.Background(), Request{Method: http.MethodPost, Path: "/referrals/1/agent-note", Query: note}, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, srv.URL+"/referrals/1/agent-note", se.URL)

	err = c.With(nil).Do(context.Background(), Request{Method: http.MethodPost, Path: "/slow", Query: note, Timeout: 50 * time.Millisecond}, nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.NotContains(t, err.Error(), "5pm")

	assert.NotContains(t, logs.String(), "5pm")
	assert.NotContains(t, logs.String(), "note=")
}
