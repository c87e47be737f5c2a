package http

import (
	"net/http"

	"struk/internal/auth"
)

// userID returns the authenticated user. The auth middleware guarantees an
// identity on every route that calls it.
func userID(r *http.Request) string {
	id, _ := auth.IdentityFromContext(r.Context())
	return id.UserID
}
