package middleware

import (
	"net/http"
	"strings"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

// Session headers.
const (
	SessionHeader   = "X-Session-ID"
	PerformerHeader = "X-Performer"
)

const maxHeaderValueLen = 128

// Session stores the caller's session in the request context. The session
// id comes from X-Session-ID and falls back to the client IP; the performer
// comes from X-Performer and falls back to domain.DefaultPerformer.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := domain.Session{
			ID:        headerValue(r, SessionHeader),
			Performer: headerValue(r, PerformerHeader),
		}
		if sess.ID == "" {
			sess.ID = "ip:" + clientIP(r)
		}
		if sess.Performer == "" {
			sess.Performer = domain.DefaultPerformer
		}
		next.ServeHTTP(w, r.WithContext(domain.WithSession(r.Context(), sess)))
	})
}

// headerValue returns a trimmed header, or "" when it is oversized or holds
// control characters.
func headerValue(r *http.Request, name string) string {
	v := strings.TrimSpace(r.Header.Get(name))
	if len(v) > maxHeaderValueLen {
		return ""
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x20 || v[i] == 0x7f {
			return ""
		}
	}
	return v
}
