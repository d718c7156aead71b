package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"partner-portal/internal/account"
	"partner-portal/internal/gateway"
	"partner-portal/internal/httpapi"
	"partner-portal/internal/metrics"
	"partner-portal/internal/mfa"
	"partner-portal/internal/session"
	"partner-portal/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend stands in for the external API.
type fakeBackend struct {
	mu          sync.Mutex
	role        string
	enrolled    bool
	revoked     bool
	noReferrals bool
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	authed := r.Header.Get("Authorization") == "Bearer final" && !b.revoked

	switch r.URL.Path {
	case "/auth/token":
		if r.FormValue("password") != "pw" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"detail":"Invalid credentials"}`)
			return
		}
		tok := "final"
		if !b.enrolled {
			tok = "provisional"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": tok, "token_type": "bearer", "role": b.role, "mfa_enroll": !b.enrolled})
		return
	case "/users/mfa/setup":
		_, _ = io.WriteString(w, `{"otpauth":"otpauth://totp/Azor:a?secret=JBSWY3DPEHPK3PXP","qr":"AAAA","recovery_codes":["r1","r2"]}`)
		return
	case "/users/mfa/verify":
		if r.Header.Get("Authorization") != "Bearer provisional" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["code"] == "000000" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"detail":"Invalid MFA code"}`)
			return
		}
		b.enrolled = true
		_, _ = io.WriteString(w, `{"ok":true}`)
		return
	}

	if !authed {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
		return
	}
	switch r.URL.Path {
	case "/users/me":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "u1", "email": "a@example.com", "first_name": "Ada", "role": b.role})
	case "/referrals/my":
		if b.noReferrals {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `[{"id":"r1","ref_no":"AZR-2025-0001","company":"Acme","status":"Won"}]`)
	case "/admin/announcements":
		_, _ = io.WriteString(w, `{"items":["Maintenance Friday"]}`)
	case "/audit/events":
		_, _ = io.WriteString(w, `[{"id":7,"action":"referral.updated","entity_type":"referral","entity_id":"r1","created_at":"2025-01-02T03:04:05"}]`)
	case "/admin/users":
		_, _ = io.WriteString(w, `{"items":[{"id":"u1","email":"a@example.com","role":"COVENANT"}],"next":""}`)
	case "/admin/referrals":
		_, _ = io.WriteString(w, `{"items":[{"id":"r1","ref_no":"AZR-2025-0001","company":"Acme","status":"New"}],"next":""}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type harness struct {
	t   *testing.T
	r   *gin.Engine
	jar map[string]*http.Cookie
}

func newHarness(t *testing.T, b *fakeBackend, limiter *httpapi.Limiter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	gw := gateway.NewClient(srv.URL, gateway.WithLogger(quiet))
	if limiter == nil {
		limiter = httpapi.NewLimiter(1000, 1000)
	}
	h := httpapi.Handlers{
		Accounts:    account.NewService(gw, account.WithLogger(quiet)),
		Storage:     session.NewMemoryStorage(),
		Enrollments: mfa.NewRegistry(time.Minute),
		Gate:        utils.NewLocalGate(1),
		Limiter:     limiter,
		Metrics:     m,
		SessionTTL:  time.Hour,
		LoginPath:   "/",
	}
	return &harness{t: t, r: newRouter(quiet, h, m, routerConfig{LoginPath: "/"}), jar: map[string]*http.Cookie{}}
}

// do sends a JSON request with the harness cookies and keeps the cookies it sets.
func (hs *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	hs.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(hs.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range hs.jar {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	hs.r.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(hs.jar, c.Name)
			continue
		}
		hs.jar[c.Name] = c
	}
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func (hs *harness) login() {
	hs.t.Helper()
	w := hs.do(http.MethodPost, "/login", map[string]string{"email": "a@example.com", "password": "pw"})
	require.Equal(hs.t, http.StatusOK, w.Code, w.Body.String())
}

func TestProtectedPageWithoutSessionRedirectsAtEdge(t *testing.T) {
	hs := newHarness(t, &fakeBackend{role: "AZOR", enrolled: true}, nil)
	for _, p := range []string{"/dashboard", "/referrals", "/admin", "/account"} {
		w := hs.do(http.MethodGet, p, nil)
		assert.Equal(t, http.StatusFound, w.Code, p)
		assert.Equal(t, "/", w.Header().Get("Location"), p)
	}
	w := hs.do(http.MethodGet, "/login", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, hs.jar, session.CookieDevice)
}

func TestHealthzAndMetricsArePublic(t *testing.T) {
	hs := newHarness(t, &fakeBackend{role: "AZOR", enrolled: true}, nil)
	assert.Equal(t, http.StatusOK, hs.do(http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, hs.do(http.MethodGet, "/metrics", nil).Code)
}

func TestLoginThenDashboard(t *testing.T) {
	hs := newHarness(t, &fakeBackend{role: "AZOR", enrolled: true}, nil)
	hs.login()
	require.Contains(t, hs.jar, session.CookieToken)
	assert.Equal(t, "AZOR", hs.jar[session.CookieRole].Value)

	w := hs.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	refs := body["referrals"].([]any)
	require.Len(t, refs, 1)
	assert.Equal(t, "success", refs[0].(map[string]any)["badge"])
	assert.Equal(t, []any{"Maintenance Friday"}, body["announcements"])
	activity := body["activity"].([]any)
	require.Len(t, activity, 1)
	assert.Equal(t, "Referral AZR-2025-0001 updated", activity[0].(map[string]any)["label"])
}

func TestLoginRejectedShowsBackendMessage(t *testing.T) {
	hs := newHarness(t, &fakeBackend{role: "AZOR", enrolled: true}, nil)
	w := hs.do(http.MethodPost, "/login", map[string]string{"email": "a@example.com", "password": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid credentials", decode(t, w)["error"])
	assert.NotContains(t, hs.jar, session.CookieToken)
}

func TestRevokedSessionIsClearedAndRedirected(t *testing.T) {
	b := &fakeBackend{role: "AZOR", enrolled: true}
	hs := newHarness(t, b, nil)
	hs.login()

	b.mu.Lock()
	b.revoked = true
	b.mu.Unlock()

	w := hs.do(http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "/", decode(t, w)["redirect"])
	assert.NotContains(t, hs.jar, session.CookieToken, "session cookies are expired")
	assert.NotContains(t, hs.jar, session.CookieRole)

	w = hs.do(http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusFound, w.Code, "the edge now redirects")
}

func TestEnrollmentRequiredNeverReachesDashboard(t *testing.T) {
	hs := newHarness(t, &fakeBackend{role: "AZOR"}, nil)

	w := hs.do(http.MethodPost, "/login", map[string]string{"email": "a@example.com", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "enroll", body["outcome"])
	assert.Equal(t, "/enroll", body["redirect"])
	assert.NotContains(t, hs.jar, session.CookieToken)

	assert.Equal(t, http.StatusFound, hs.do(http.MethodGet, "/dashboard", nil).Code)

	w = hs.do(http.MethodGet, "/enroll", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode(t, w)
	assert.Equal(t, "ready", view["state"])
	enrollment := view["enrollment"].(map[string]any)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", enrollment["secret"])
	assert.Equal(t, "data:image/png;base64,AAAA", enrollment["qr"])

	w = hs.do(http.MethodPost, "/enroll/verify", map[string]string{"code": "12a456"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Enter the 6-digit code.", decode(t, w)["error"])

	w = hs.do(http.MethodPost, "/enroll/verify", map[string]string{"code": "000000"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	rejected := decode(t, w)
	assert.Equal(t, "Invalid MFA code", rejected["error"])
	assert.Equal(t, "ready", rejected["state"], "a rejected code returns to ready")
	assert.NotNil(t, rejected["enrollment"])

	w = hs.do(http.MethodPost, "/enroll/verify", map[string]string{"code": "123456"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "/dashboard", decode(t, w)["redirect"])
	assert.Equal(t, "final", hs.jar[session.CookieToken].Value)

	assert.Equal(t, http.StatusOK, hs.do(http.MethodGet, "/dashboard", nil).Code)
	assert.Equal(t, http.StatusNotFound, hs.do(http.MethodGet, "/enroll", nil).Code, "the flow is gone once complete")
}

func TestMissingReferralFeedIsEmpty(t *testing.T) {
	hs := newHarness(t, &fakeBackend{role: "AZOR", enrolled: true, noReferrals: true}, nil)
	hs.login()

	w := hs.do(http.MethodGet, "/referrals", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []any{}, decode(t, w)["referrals"])
}

func TestAdminUsesLiveRole(t *testing.T) {
	b := &fakeBackend{role: "AZOR", enrolled: true}
	hs := newHarness(t, b, nil)
	hs.login()
	hs.jar[session.CookieRole] = &http.Cookie{Name: session.CookieRole, Value: "COVENANT"}

	w := hs.do(http.MethodGet, "/admin", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "a forged role cookie passes the edge but not the live check")

	b.mu.Lock()
	b.role = "COVENANT"
	b.mu.Unlock()
	w = hs.do(http.MethodGet, "/admin", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(50), body["audit_limit"])
	assert.Equal(t, []any{"Maintenance Friday"}, body["announcements"])
	assert.Equal(t, "50", hs.jar["audit_page_size"].Value)

	w = hs.do(http.MethodGet, "/admin/audit?limit=900", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(500), decode(t, w)["limit"])
	assert.Equal(t, "500", hs.jar["audit_page_size"].Value)
}

func TestLoginIsRateLimited(t *testing.T) {
	hs := newHarness(t, &fakeBackend{role: "AZOR", enrolled: true}, httpapi.NewLimiter(0.0001, 1))
	hs.login()
	w := hs.do(http.MethodPost, "/login", map[string]string{"email": "a@example.com", "password": "pw"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	hs := newHarness(t, &fakeBackend{role: "AZOR", enrolled: true}, nil)
	hs.login()
	w := hs.do(http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, hs.jar, session.CookieToken)
	assert.Equal(t, http.StatusFound, hs.do(http.MethodGet, "/dashboard", nil).Code)
}
