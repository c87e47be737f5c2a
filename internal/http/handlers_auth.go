package http

import (
	"net/http"
)

// handleLoginAttempt counts one login attempt for the caller's origin. The
// credential check itself lives with the identity provider.
func (s *Server) handleLoginAttempt(w http.ResponseWriter, r *http.Request) {
	origin := s.deps.Detector.ExtractClientIP(r)
	if err := s.deps.LoginLimiter.CheckLoginRate(r.Context(), origin); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": true})
}
