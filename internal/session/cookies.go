package session

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// Cookie names shared with the backend and the edge guard.
const (
	CookieToken   = "token"
	CookieRole    = "role"
	CookieBackend = "azor_access"
	CookieDevice  = "portal_device"
)

// Cookies is the cookie mirror of the session.
type Cookies interface {
	Cookie(name string) (string, bool)
	SetCookie(name, value string, maxAge int)
	ExpireCookie(name string)
}

type CookieOptions struct {
	Secure bool
	Domain string
}

// GinCookies reads request cookies and writes response cookies on a gin context.
// Values written during the request are visible to later reads in the same request.
type GinCookies struct {
	c       *gin.Context
	opts    CookieOptions
	written map[string]*string
}

func NewGinCookies(c *gin.Context, opts CookieOptions) *GinCookies {
	return &GinCookies{c: c, opts: opts, written: map[string]*string{}}
}

func (g *GinCookies) Cookie(name string) (string, bool) {
	if v, ok := g.written[name]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	v, err := g.c.Cookie(name)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func (g *GinCookies) SetCookie(name, value string, maxAge int) {
	g.c.SetSameSite(http.SameSiteLaxMode)
	g.c.SetCookie(name, value, maxAge, "/", g.opts.Domain, g.opts.Secure, true)
	v := value
	g.written[name] = &v
}

func (g *GinCookies) ExpireCookie(name string) {
	g.c.SetSameSite(http.SameSiteLaxMode)
	g.c.SetCookie(name, "", -1, "/", g.opts.Domain, g.opts.Secure, true)
	g.written[name] = nil
}

// MemoryCookies is a cookie jar for tests and the terminal client.
type MemoryCookies struct {
	mu     sync.Mutex
	values map[string]string
	maxAge map[string]int
}

func NewMemoryCookies() *MemoryCookies {
	return &MemoryCookies{values: map[string]string{}, maxAge: map[string]int{}}
}

func (m *MemoryCookies) Cookie(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[name]
	return v, ok && v != ""
}

func (m *MemoryCookies) SetCookie(name, value string, maxAge int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	m.maxAge[name] = maxAge
}

func (m *MemoryCookies) ExpireCookie(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, name)
	delete(m.maxAge, name)
}

// MaxAge returns the max-age last written for name.
func (m *MemoryCookies) MaxAge(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxAge[name]
}
