package api

import (
	"context"
	"net/http"
)

// handleWebmention accepts an inbound webmention and acknowledges it
// immediately with 202; verification and persistence happen
// asynchronously and are never surfaced back to the sender (§4.8/§7).
// The owner is resolved from the target URL's feed-style path in a real
// multi-tenant deployment; this single-tenant seam takes it from the
// authenticated context like every other endpoint.
func (s *Server) handleWebmention(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	source := r.FormValue("source")
	target := r.FormValue("target")
	if source == "" || target == "" {
		http.Error(w, "source and target are required", http.StatusBadRequest)
		return
	}

	owner, ok := OwnerFromContext(r.Context())
	if !ok {
		owner = "default"
	}

	w.WriteHeader(http.StatusAccepted)

	go func() {
		_ = s.Webmention.Verify(context.Background(), owner, source, target)
	}()
}
