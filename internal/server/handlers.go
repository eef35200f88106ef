package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/capitol/internal/database"
	"github.com/rs/zerolog"
)

// Version is set at build time
var Version = "dev"

// handleHealth pings both databases. Any failure turns the response into a 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	checks := map[string]string{}
	for name, db := range map[string]*database.DB{database.NameCapitol: s.capitolDB, database.NameLedger: s.ledgerDB} {
		if db == nil {
			checks[name] = "not configured"
			continue
		}
		checks[name] = "ok"
		if err := db.HealthCheck(ctx); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("Health check failed")
			checks[name] = err.Error()
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"version":   Version,
		"service":   "capitol",
		"databases": checks,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, s.log, status, data)
}

func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
