package http

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"struk/internal/core"
	"struk/internal/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	window, err := ParseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	receipts, err := s.deps.Receipts.List(r.Context(), userID(r), window)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if receipts == nil {
		receipts = []core.Receipt{}
	}
	writeJSON(w, http.StatusOK, receipts)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Receipts.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var draft core.Receipt
	if err := DecodeJSON(w, r, &draft); err != nil {
		writeError(w, r, err)
		return
	}
	uid := userID(r)
	rec, err := s.deps.Receipts.Create(r.Context(), uid, draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogReceiptMutation(r.Context(), log.OpCreate, uid, rec.ID, rec.Total().Cents)

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", fmt.Sprintf("/api/v1/receipts/%s", rec.ID)).
		Body(rec).
		Write(w)
}

func (s *Server) handleUpdateReceipt(w http.ResponseWriter, r *http.Request) {
	var input core.Receipt
	if err := DecodeJSON(w, r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	uid := userID(r)
	rec, err := s.deps.Receipts.Update(r.Context(), uid, chi.URLParam(r, "id"), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogReceiptMutation(r.Context(), log.OpUpdate, uid, rec.ID, rec.Total().Cents)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	uid, id := userID(r), chi.URLParam(r, "id")
	if err := s.deps.Receipts.Delete(r.Context(), uid, id); err != nil {
		writeError(w, r, err)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogReceiptMutation(r.Context(), log.OpDelete, uid, id, 0)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportReceipts(w http.ResponseWriter, r *http.Request) {
	window, err := ParseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := s.deps.Export.ExportReceiptsXLSX(r.Context(), userID(r), window)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
