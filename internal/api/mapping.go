package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/feedsync-core/internal/engine"
)

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	engine.Status
	Channel any `json:"channel,omitempty"`
}

// UpdateRowRequest is the body of PUT /mapping/rows/{position}.
// Omitted fields keep the row's current value.
type UpdateRowRequest struct {
	SignalIndex        *int `json:"signal_index"`
	OscillationPercent *int `json:"oscillation_percent"`
}

// handleStatus returns the engine snapshot and the channel connection.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := StatusResponse{Status: status}
	if s.channelStatus != nil {
		resp.Channel = s.channelStatus()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetMapping returns the mapping table.
func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":         status.State,
		"needs_restart": status.NeedsRestart,
		"rows":          status.Rows,
		"count":         len(status.Rows),
	})
}

// handleUpdateRow changes one row's signal index and oscillation depth.
func (s *Server) handleUpdateRow(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		writeBadRequest(w, "position must be an integer")
		return
	}

	var req UpdateRowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.SignalIndex == nil && req.OscillationPercent == nil {
		writeBadRequest(w, "signal_index or oscillation_percent is required")
		return
	}

	current, err := s.findRow(r, position)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	asg := engine.Assignment{
		SignalIndex:        current.SignalIndex,
		OscillationPercent: current.OscillationPercent,
	}
	if req.SignalIndex != nil {
		asg.SignalIndex = *req.SignalIndex
	}
	if req.OscillationPercent != nil {
		asg.OscillationPercent = *req.OscillationPercent
	}

	view, err := s.service.UpdateRow(r.Context(), position, asg)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) findRow(r *http.Request, position int) (engine.RowView, error) {
	status, err := s.service.Status(r.Context())
	if err != nil {
		return engine.RowView{}, err
	}
	for _, row := range status.Rows {
		if row.Position == position {
			return row, nil
		}
	}
	return engine.RowView{}, engine.ErrRowNotFound
}

// handleStartMapping starts a mapping session.
func (s *Server) handleStartMapping(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Start(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info("mapping started", "session_id", status.SessionID, "rows", len(status.Rows), "by", subjectFrom(r.Context()))
	writeJSON(w, http.StatusOK, status)
}

// handleStopMapping stops mapping and zeroes the actuators.
func (s *Server) handleStopMapping(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Stop(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.Info("mapping stopped", "by", subjectFrom(r.Context()))
	writeJSON(w, http.StatusOK, status)
}
