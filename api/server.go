package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/biostream/internal/acquire"
	"github.com/banshee-data/biostream/internal/serialport"
)

// SessionStore is the slice of the session database the API needs.
type SessionStore interface {
	Sessions(limit int) ([]acquire.SessionSummary, error)
}

type Server struct {
	loop  *acquire.Loop
	store SessionStore

	// listPorts is swappable so tests run without serial hardware.
	listPorts func() ([]string, error)
}

func NewServer(loop *acquire.Loop, store SessionStore) *Server {
	return &Server{
		loop:      loop,
		store:     store,
		listPorts: serialport.ListPorts,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.statusHandler)
	mux.HandleFunc("/api/ports", s.listPortsHandler)
	mux.HandleFunc("/api/sessions", s.listSessionsHandler)
	mux.HandleFunc("/api/connect", s.connectHandler)
	mux.HandleFunc("/api/disconnect", s.disconnectHandler)
	mux.HandleFunc("/api/start", s.startHandler)
	mux.HandleFunc("/api/stop", s.stopHandler)
	mux.HandleFunc("/", s.homeHandler)
	return mux
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("Welcome to the Biostream Server!"))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.loop.Status())
}

func (s *Server) listPortsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ports, err := s.listPorts()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list ports: %v", err), http.StatusInternalServerError)
		return
	}
	if ports == nil {
		ports = []string{}
	}
	writeJSON(w, ports)
}

func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "Session log not configured", http.StatusNotFound)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, fmt.Sprintf("Invalid limit %q", raw), http.StatusBadRequest)
			return
		}
		limit = n
	}

	sessions, err := s.store.Sessions(limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to retrieve sessions: %v", err), http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []acquire.SessionSummary{}
	}
	writeJSON(w, sessions)
}

func (s *Server) connectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.loop.Connect(); err != nil {
		http.Error(w, fmt.Sprintf("Connect failed: %v", err), http.StatusConflict)
		return
	}
	writeJSON(w, s.loop.Status())
}

func (s *Server) disconnectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.loop.Disconnect(); err != nil {
		http.Error(w, fmt.Sprintf("Disconnect failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, s.loop.Status())
}

func (s *Server) startHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	// Connect first when the caller skipped it; start-from-idle is the
	// common one-shot flow.
	if s.loop.State() == acquire.StateIdle {
		if err := s.loop.Connect(); err != nil {
			http.Error(w, fmt.Sprintf("Connect failed: %v", err), http.StatusConflict)
			return
		}
	}
	if err := s.loop.Start(); err != nil {
		http.Error(w, fmt.Sprintf("Start failed: %v", err), http.StatusConflict)
		return
	}
	writeJSON(w, s.loop.Status())
}

func (s *Server) stopHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.loop.Stop()
	writeJSON(w, s.loop.Status())
}
