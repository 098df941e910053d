package http

import (
	"errors"
	"log/slog"
	"net/http"

	"kopilka/internal/gate"
)

// handlePINSetup provisions the device credential from two matching PIN
// entries. Provisioning succeeds at most once; afterwards the form only
// ever offers unlock.
func (s *Server) handlePINSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sess, err := s.currentSession(w, r)
	if err != nil {
		slog.ErrorContext(r.Context(), "Session create error", "error", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	next := localPath(r.Form.Get("next"), "/")
	pin := r.Form.Get("pin")
	confirm := r.Form.Get("pin_confirm")

	err = s.gate.Provision(r.Context(), sess, pin, confirm)
	switch {
	case err == nil:
		seeOther(w, r, next)
	case errors.Is(err, gate.ErrBadPIN), errors.Is(err, gate.ErrConfirmMismatch):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.renderPIN(w, r, pinView{Setup: true, Next: next, Error: err.Error()})
	case errors.Is(err, gate.ErrAlreadyProvisioned):
		// Another tab provisioned first; fall through to unlock.
		s.renderPIN(w, r, pinView{Next: next, Error: err.Error()})
	default:
		slog.ErrorContext(r.Context(), "PIN provision error", "error", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
	}
}

// handlePINUnlock verifies one PIN entry. A wrong PIN is an outcome, not
// an error: the gate stays locked and the form re-renders, with retries
// bounded only by the per-IP rate limit.
func (s *Server) handlePINUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	clientIP := extractClientIP(r)
	if !s.pinLimiter.allow(clientIP) {
		slog.WarnContext(r.Context(), "PIN attempt rate limit exceeded", "client_ip", clientIP)
		w.Header().Set("Retry-After", "60")
		http.Error(w, "Too many attempts. Please try again later.", http.StatusTooManyRequests)
		return
	}

	sess, err := s.currentSession(w, r)
	if err != nil {
		slog.ErrorContext(r.Context(), "Session create error", "error", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}

	next := localPath(r.Form.Get("next"), "/")
	pin := r.Form.Get("pin")

	ok, err := s.gate.Verify(r.Context(), sess, pin)
	switch {
	case err == nil && ok:
		seeOther(w, r, next)
	case err == nil:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.renderPIN(w, r, pinView{Next: next, Error: "Wrong PIN"})
	case errors.Is(err, gate.ErrBadPIN):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.renderPIN(w, r, pinView{Next: next, Error: err.Error()})
	case errors.Is(err, gate.ErrNotProvisioned):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		s.renderPIN(w, r, pinView{Setup: true, Next: next, Error: err.Error()})
	default:
		slog.ErrorContext(r.Context(), "PIN verify error", "error", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
	}
}
