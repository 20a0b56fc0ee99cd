package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/AaronLay10/holoquest/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// authConfig holds the operator credentials resolved by config.
type authConfig struct {
	adminUser    string
	adminPass    string
	operatorUser string
	operatorPass string
	enabled      bool
}

// newAuthConfig enables auth only when admin credentials are set. With none
// set every request gets full access.
func newAuthConfig(c config.AuthConfig) authConfig {
	return authConfig{
		adminUser:    c.AdminUser,
		adminPass:    c.AdminPass,
		operatorUser: c.OperatorUser,
		operatorPass: c.OperatorPass,
		enabled:      c.AdminUser != "" && c.AdminPass != "",
	}
}

// AuthEnabled returns true if authentication is configured.
func (s *Server) AuthEnabled() bool {
	return s.auth.enabled
}

// authenticate checks basic auth credentials and returns the role if valid.
// Returns empty string if credentials are invalid.
func (a authConfig) authenticate(r *http.Request) Role {
	if !a.enabled {
		return RoleAdmin
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	if a.adminUser != "" && a.adminPass != "" {
		if secureCompare(user, a.adminUser) && secureCompare(pass, a.adminPass) {
			return RoleAdmin
		}
	}

	if a.operatorUser != "" && a.operatorPass != "" {
		if secureCompare(user, a.operatorUser) && secureCompare(pass, a.operatorPass) {
			return RoleOperator
		}
	}

	return ""
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireAuth returns 401 Unauthorized with WWW-Authenticate header.
func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Holoquest"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// requireRole wraps a handler and requires one of the specified roles.
func (s *Server) requireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := s.auth.authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

func (s *Server) requireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return s.requireRole(handler, RoleAdmin, RoleOperator)
}

func (s *Server) requireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return s.requireRole(handler, RoleAdmin)
}
