package api

import (
	"encoding/json"
	"net/http"

	"github.com/sparrowreader/microsub/internal/errs"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps a Store/domain error to its transport status per
// §7, with ConflictError treated as an idempotent success by callers
// that already checked errs.IsConflict before calling this.
func writeStoreError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	writeError(w, errs.Status(kind), err.Error())
}
