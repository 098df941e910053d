package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"kopilka/internal/events"
	"kopilka/internal/gate"
	applog "kopilka/internal/log"
	"kopilka/internal/session"
	"kopilka/internal/storage"
	appweb "kopilka/web"
)

// sessionCookie keys the browsing session; the session carries the
// gate's unlock flag and the record snapshot the views render from.
const sessionCookie = "kopilka_session"

// pinAttemptsPerMinute bounds PIN verification per client IP.
const pinAttemptsPerMinute = 10

type Server struct {
	http.Server
	templates *template.Template

	store    storage.RecordStore
	gate     *gate.Gate
	sessions *session.Registry
	bus      *events.Bus

	pinLimiter *rateLimiter
	reqLog     *applog.StructuredLogger

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server. assetProxy, when non-nil, is mounted under /assets/ and
// fronts the configured upstream with the offline cache.
func NewServer(addr string, store storage.RecordStore, g *gate.Gate, sessions *session.Registry, bus *events.Bus, assetProxy http.Handler) *Server {
	mux := http.NewServeMux()

	httpLog := applog.New(applog.Config{
		Handler:   slog.Default().Handler(),
		Component: applog.ComponentHTTP,
	})

	s := &Server{
		Server: http.Server{
			Addr: addr,
			Handler: applog.Middleware(httpLog)(
				applog.RequestIDMiddleware(func(*http.Request) string { return generateRequestID() })(mux)),
		},
		store:      store,
		gate:       g,
		sessions:   sessions,
		bus:        bus,
		pinLimiter: newRateLimiter(pinAttemptsPerMinute),
		reqLog:     applog.NewStructuredLogger(httpLog),
	}

	// Any committed mutation drops every session snapshot so no view
	// renders from a stale cache.
	bus.Subscribe(func(events.RecordsChanged) {
		sessions.InvalidateAll()
	})

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	if assetProxy != nil {
		mux.Handle("/assets/", http.StripPrefix("/assets", assetProxy))
	}

	mux.HandleFunc("/", s.withSecurityHeaders(s.handleIndex))
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/expenses", s.withSecurityHeaders(s.handleExpenses))
	mux.HandleFunc("/expenses/delete", s.withSecurityHeaders(s.handleDelete))
	mux.HandleFunc("/reports", s.withSecurityHeaders(s.handleReports))
	mux.HandleFunc("/pin/setup", s.withSecurityHeaders(s.handlePINSetup))
	mux.HandleFunc("/pin/unlock", s.withSecurityHeaders(s.handlePINUnlock))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.pinLimiter != nil {
			s.pinLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r)
		s.reqLog.LogHTTPStart(r.Context(), r, clientIP)

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.reqLog.LogHTTPEnd(r.Context(), r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// currentSession resolves the browsing session from the cookie, creating
// a fresh locked session when the cookie is absent or expired.
func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		if sess, ok := s.sessions.Get(c.Value); ok {
			return sess, nil
		}
	}

	sess, err := s.sessions.Create()
	if err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

// guard resolves the session and gate state for a view. When the gate is
// not yet unlocked for this session it renders the PIN page itself and
// reports handled=true; the caller returns without rendering.
func (s *Server) guard(w http.ResponseWriter, r *http.Request) (sess *session.Session, handled bool) {
	sess, err := s.currentSession(w, r)
	if err != nil {
		slog.ErrorContext(r.Context(), "Session create error", "error", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return nil, true
	}

	state, err := s.gate.State(r.Context(), sess)
	if err != nil {
		slog.ErrorContext(r.Context(), "Gate state error", "error", err)
		http.Error(w, "storage unavailable", http.StatusInternalServerError)
		return nil, true
	}

	if state == gate.Unlocked {
		return sess, false
	}

	s.renderPIN(w, r, pinView{
		Setup: state == gate.Unprovisioned,
		Next:  localPath(r.URL.RequestURI(), "/"),
	})
	return nil, true
}

// pinView carries the PIN page state: setup mode when no credential
// exists yet, unlock mode otherwise.
type pinView struct {
	Setup bool
	Next  string
	Error string
}

func (s *Server) renderPIN(w http.ResponseWriter, r *http.Request, data pinView) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "pin.html", data); err != nil {
		slog.ErrorContext(r.Context(), "PIN template execution failed", "error", err, "template", "pin.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution failed", "error", err, "template", name)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
