package controllers

import (
	"net/http"

	"github.com/angelmondragon/payswitch-backend/api/middleware"
	"github.com/angelmondragon/payswitch-backend/api/responses"
)

// AdminPing echoes the caller's identity; used to check a freshly minted token.
func AdminPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{
			"scope":   "admin",
			"status":  "ok",
			"subject": middleware.SubjectFromContext(r.Context()),
			"role":    string(middleware.RoleFromContext(r.Context())),
		})
	}
}
