package api

import (
	"net/http"
	"strconv"
)

// defaultSessionLimit is used when GET /sessions has no limit parameter.
const defaultSessionLimit = 20

// handleListDevices returns the inventory the mapping table was built from.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.service.Devices(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleRefreshDevices re-reads the inventory from the channel and rebuilds
// the mapping table. A running mapping is stopped.
func (s *Server) handleRefreshDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.service.RefreshDevices(r.Context())
	if err != nil {
		s.logger.Warn("device refresh failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeChannel, err.Error())
		return
	}
	s.logger.Info("devices refreshed", "count", len(devices))
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleListSessions returns recent mapping sessions, newest first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "session history is disabled")
		return
	}

	limit := defaultSessionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessions, err := s.sessions.Recent(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
