package handlers

import (
	"net/http"
	"strings"
)

// bearerToken pulls the session token from the Authorization header, falling
// back to the token query parameter for browser WebSocket clients, which
// cannot set headers on the upgrade request.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return token
		}
	}
	return r.URL.Query().Get("token")
}
