package guard

import "strings"

// DefaultPublic is the closed set of pages reachable without a session.
var DefaultPublic = []string{"/", "/login", "/enroll"}

// assetPrefixes are not pages and are never guarded.
var assetPrefixes = []string{"/static/", "/favicon", "/healthz", "/metrics"}

// Routes is the public-route allow-list. Every path not listed is protected.
type Routes struct {
	public map[string]struct{}
}

func NewRoutes(public ...string) Routes {
	if len(public) == 0 {
		public = DefaultPublic
	}
	r := Routes{public: make(map[string]struct{}, len(public))}
	for _, p := range public {
		r.public[normalize(p)] = struct{}{}
	}
	return r
}

// IsPublic reports whether path bypasses both the edge and the in-page check.
func (r Routes) IsPublic(path string) bool {
	for _, p := range assetPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	_, ok := r.public[normalize(path)]
	return ok
}

// IsAdmin reports whether path belongs to the administrator area.
func IsAdmin(path string) bool {
	return path == "/admin" || strings.HasPrefix(path, "/admin/")
}

func normalize(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			return "/"
		}
	}
	return p
}
