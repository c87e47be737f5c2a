package http

import (
	"net/http"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	now, err := ParseNow(r.URL.Query(), s.deps.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.deps.Dashboard.Dashboard(r.Context(), userID(r), now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	now, err := ParseNow(r.URL.Query(), s.deps.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	insight, err := s.deps.Insights.Insights(r.Context(), userID(r), now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, insight)
}
