package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*") // Allow all for dev, or specific origin
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Directory lists every declared user.
type Directory interface {
	Known() []model.User
}

type presenceEntry struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Status   model.Presence `json:"status"`
	LastSeen *time.Time     `json:"last_seen,omitempty"`
}

// PresenceHandler serves the presence of every known user as JSON.
type PresenceHandler struct {
	directory Directory
	log       logrus.FieldLogger
}

func NewPresenceHandler(directory Directory, log logrus.FieldLogger) *PresenceHandler {
	return &PresenceHandler{directory: directory, log: log}
}

func (h *PresenceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := lo.Map(h.directory.Known(), func(u model.User, _ int) presenceEntry {
		return presenceEntry{ID: u.ID, Name: u.DisplayName, Status: u.Presence, LastSeen: u.LastSeen}
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		h.log.WithFields(logrus.Fields{"function": "ServeHTTP", "error": err}).Warn("Failed to write presence")
	}
}

type health struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

func healthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(health{Status: "ok", Connections: hub.Count()})
	}
}
