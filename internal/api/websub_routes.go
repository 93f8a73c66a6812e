package api

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sparrowreader/microsub/internal/errs"
)

func (s *Server) handleWebSubVerify(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feedId")
	q := r.URL.Query()
	leaseSeconds, _ := strconv.Atoi(q.Get("hub.lease_seconds"))
	challenge, err := s.Subscriber.Verify(r.Context(), feedID, q.Get("hub.mode"), q.Get("hub.topic"), q.Get("hub.challenge"), leaseSeconds)
	if err != nil {
		// §4.7: an unknown feed is a 404, a topic mismatch or
		// unrecognized hub.mode is a 400.
		http.Error(w, err.Error(), errs.Status(errs.KindOf(err)))
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

func (s *Server) handleWebSubReceive(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "feedId")
	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		http.Error(w, "could not read body", http.StatusBadRequest)
		return
	}
	contentType := r.Header.Get("Content-Type")
	sig256 := r.Header.Get("X-Hub-Signature-256")
	sig1 := r.Header.Get("X-Hub-Signature")

	f, err := s.Subscriber.CheckSignature(r.Context(), feedID, body, sig256, sig1)
	if err != nil {
		http.Error(w, "signature mismatch", http.StatusUnauthorized)
		return
	}

	// Acknowledge immediately; the hub is never held open on processing
	// failure (§4.7/§5).
	w.WriteHeader(http.StatusOK)

	go func() {
		_, _ = s.Subscriber.ProcessFromFeed(context.Background(), f, body, contentType)
	}()
}
