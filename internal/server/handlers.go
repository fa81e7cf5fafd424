package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/custodian/internal/pipeline"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "custodian",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleConsolidate runs the full consolidation pipeline on the submitted
// provider payloads and returns the annotated portfolio with warnings.
func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	var payloads []pipeline.ProviderPayload
	if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.pipeline.Run(r.Context(), payloads)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleProviders lists the provider IDs with a registered normalizer.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": s.normalizers.Providers(),
	})
}

// handleGetClassification returns the cached classification for a ticker
// without triggering any lookup.
func (s *Server) handleGetClassification(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))

	entry, err := s.resolver.CachedEntry(ticker)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entry == nil {
		s.writeError(w, http.StatusNotFound, "no cached classification for "+ticker)
		return
	}

	s.writeJSON(w, http.StatusOK, entry)
}

// handleRefreshClassification forces a fresh authoritative lookup.
func (s *Server) handleRefreshClassification(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))

	entry, err := s.resolver.ForceRefresh(r.Context(), ticker)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, entry)
}

// handleInvalidateClassification drops a ticker from both cache tiers.
func (s *Server) handleInvalidateClassification(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))

	if err := s.resolver.Invalidate(ticker); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"ticker": ticker,
	})
}

// handleRefreshStale re-resolves persisted entries older than max_age.
func (s *Server) handleRefreshStale(w http.ResponseWriter, r *http.Request) {
	maxAge := 24 * time.Hour
	if raw := r.URL.Query().Get("max_age"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid max_age: "+err.Error())
			return
		}
		maxAge = parsed
	}

	refreshed, err := s.resolver.RefreshStale(r.Context(), maxAge)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"refreshed": refreshed,
	})
}

// handleReloadPriorities re-reads the tables file and swaps in a fresh
// priority snapshot. Runs already in flight keep their old snapshot.
func (s *Server) handleReloadPriorities(w http.ResponseWriter, r *http.Request) {
	if err := s.priorities.Reload(); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	snapshot := s.priorities.Snapshot()
	s.log.Info().Time("loaded_at", snapshot.LoadedAt()).Msg("Provider priorities reloaded")

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"loaded_at": snapshot.LoadedAt(),
	})
}

// handleGetPriorities shows the active priority snapshot.
func (s *Server) handleGetPriorities(w http.ResponseWriter, r *http.Request) {
	snapshot := s.priorities.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": snapshot.Providers(),
		"loaded_at": snapshot.LoadedAt(),
	})
}

// handleListBackups lists remote backups, newest first.
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := s.backupService.ListBackups(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"backups": backups,
		"count":   len(backups),
	})
}

// handleTriggerBackup creates and uploads a backup immediately.
func (s *Server) handleTriggerBackup(w http.ResponseWriter, r *http.Request) {
	if err := s.backupService.CreateAndUploadBackup(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}
