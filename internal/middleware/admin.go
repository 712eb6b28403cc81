package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/computebaker/tekir-quota/internal/util"
)

// AdminMiddleware protects the manual sweep endpoints. With no key
// configured the endpoints are disabled outright.
type AdminMiddleware struct {
	adminKey string
}

func NewAdminMiddleware(adminKey string) *AdminMiddleware {
	return &AdminMiddleware{adminKey: adminKey}
}

func (m *AdminMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Admin-Key")
		if m.adminKey == "" || !util.ConstantTimeEqual(key, m.adminKey) {
			log.Warn().Str("path", r.URL.Path).Msg("admin middleware: rejected request")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Unauthorized",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
