package http

import (
	"errors"
	"net/http"

	"struk/internal/core"
)

// multipartOverhead leaves room for boundaries and part headers on top of the image cap.
const multipartOverhead = 64 << 10

func (s *Server) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes+multipartOverhead)

	file, _, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, r, err)
		case errors.Is(err, http.ErrMissingFile):
			writeError(w, r, core.MissingField("image"))
		default:
			writeError(w, r, core.NewValidationError("image", "must be sent as multipart/form-data"))
		}
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	draft, err := s.deps.Drafts.Ingest(r.Context(), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if draft.Warnings == nil {
		draft.Warnings = []string{}
	}
	writeJSON(w, http.StatusOK, draft)
}
