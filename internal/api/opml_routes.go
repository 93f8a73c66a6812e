package api

import (
	"net/http"

	"github.com/sparrowreader/microsub/internal/opml"
)

func (s *Server) handleOPMLImport(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	file, _, err := r.FormFile("opml")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no opml file provided")
		return
	}
	defer file.Close()

	n, err := opml.Import(r.Context(), s.Store, owner, file)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": "ok", "imported": n})
}

func (s *Server) handleOPMLExport(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	data, err := opml.ExportAll(r.Context(), s.Store, owner)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-opml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="subscriptions.opml"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
