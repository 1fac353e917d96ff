package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.renderTemplate(w, "login", nil)

	case http.MethodPost:
		username := r.FormValue("username")
		password := r.FormValue("password")

		if !s.auth.ValidateCredentials(username, password) {
			slog.Warn("Rejected web login", "user", username)
			s.renderTemplate(w, "login", map[string]any{
				"Error": "Invalid username or password",
			})
			return
		}

		id, expires, err := s.auth.CreateSession(username)
		if err != nil {
			slog.Error("Failed to create session", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    id,
			Path:     "/",
			Expires:  expires,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
		http.Redirect(w, r, "/", http.StatusSeeOther)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if cookie, err := r.Cookie(sessionCookie); err == nil {
		s.auth.DeleteSession(cookie.Value)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := map[string]any{
		"Title": "Mail Courier Status",
		"Stats": s.stats.Snapshot(),
		// Passwords never reach the template.
		"Config": map[string]any{
			"Source":   fmt.Sprintf("%s (%s, %s)", s.conf.IMAP.Addr(), s.conf.IMAP.Mailbox, s.conf.IMAP.Security),
			"Relay":    fmt.Sprintf("%s:%d (%s)", s.conf.SMTP.Server, s.conf.SMTP.Port, s.conf.SMTP.Security),
			"From":     s.conf.Forward.From,
			"To":       s.conf.Forward.To,
			"Domains":  strings.Join(s.conf.Filter.Domains, ", "),
			"Daemon":   s.conf.Daemon.Enabled,
			"Interval": s.conf.Daemon.Interval.String(),
		},
	}

	s.renderTemplate(w, "dashboard", data)
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.stats.Snapshot()); err != nil {
		slog.Error("Failed to encode status", "error", err)
	}
}
