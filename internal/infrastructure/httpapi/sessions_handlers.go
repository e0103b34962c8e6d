package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type startSessionRequest struct {
	Casino string `json:"casino"`
	Game   string `json:"game"`
}

func (d *Deps) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body", nil)
		return
	}
	if req.Casino == "" || req.Game == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "casino and game are required", nil)
		return
	}
	sess, err := d.Svc.Start(r.Context(), req.Casino, req.Game)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	d.Logger.Info().Str("session", sess.ID).Msg("session started")
	writeJSON(w, http.StatusCreated, sess)
}

func (d *Deps) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := d.Svc.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "total": len(sessions)})
}

func (d *Deps) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := d.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (d *Deps) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := d.Svc.Close(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	d.Logger.Info().Str("session", id).Int("spins", sess.Spins.Total).Msg("session closed")
	writeJSON(w, http.StatusOK, sess)
}

func (d *Deps) handleListSpins(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	from, _ := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	spins, next, err := d.Svc.ListSpins(r.Context(), id, from, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"spins": spins, "next": next})
}

func (d *Deps) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := d.Svc.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (d *Deps) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	records, err := d.Svc.Duplicates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"duplicates": records, "total": len(records)})
}

// handleExport streams the session as JSONL, one spin per line, matching the
// on-disk spool layout.
func (d *Deps) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	spins, err := d.Svc.Spins(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+id+".jsonl\"")
	enc := json.NewEncoder(w)
	for _, sp := range spins {
		if err := enc.Encode(sp); err != nil {
			d.Logger.Warn().Err(err).Str("session", id).Msg("export interrupted")
			return
		}
	}
}
