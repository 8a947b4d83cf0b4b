package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andrew-blake/melcloudhome-sub002/internal/control"
	"github.com/andrew-blake/melcloudhome-sub002/internal/melcloud"
)

// handleListDevices returns the latest fleet snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshots.Snapshot()
	writeJSON(w, http.StatusOK, snap)
}

// deviceResponse wraps one device with snapshot freshness and, when a
// schema source is available, the fields a command may target.
type deviceResponse struct {
	melcloud.Device
	Stale          bool     `json:"stale"`
	SettableFields []string `json:"settable_fields,omitempty"`
}

// handleGetDevice returns one device from the snapshot.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, ok := s.snapshots.DeviceState(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	resp := deviceResponse{
		Device: dev,
		Stale:  s.snapshots.Snapshot().Stale,
	}
	if s.schemas != nil {
		if fields, err := s.schemas.Schema(dev.Family); err == nil {
			resp.SettableFields = fields
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// applyRequest is the command payload accepted on the apply endpoint.
type applyRequest struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

// handleApplyCommand feeds one command into the dispatch pipeline.
func (s *Server) handleApplyCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Field == "" {
		writeBadRequest(w, "field is required")
		return
	}
	if len(req.Value) == 0 {
		writeBadRequest(w, "value is required")
		return
	}

	var value any
	if err := json.Unmarshal(req.Value, &value); err != nil {
		writeBadRequest(w, "invalid value")
		return
	}

	err := s.commands.Apply(r.Context(), id, req.Field, value)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"device_id": id,
			"field":     req.Field,
			"value":     value,
			"status":    "accepted",
		})
	case errors.Is(err, control.ErrUnknownDevice):
		writeNotFound(w, "device not found")
	case errors.Is(err, melcloud.ErrUnknownField):
		writeBadRequest(w, "field is not settable for this device family")
	case errors.Is(err, control.ErrRetryExhausted),
		errors.Is(err, melcloud.ErrAuthFailed),
		errors.Is(err, melcloud.ErrAPI):
		s.logger.Error("command rejected by cloud",
			"device_id", id,
			"field", req.Field,
			"error", err,
		)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "cloud rejected the command")
	default:
		s.logger.Error("command failed",
			"device_id", id,
			"field", req.Field,
			"error", err,
		)
		writeInternalError(w, "command failed")
	}
}

// handleEnergy returns the accumulated energy report.
func (s *Server) handleEnergy(w http.ResponseWriter, _ *http.Request) {
	if s.energy == nil {
		writeNotFound(w, "energy tracking disabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.energy.Report(),
	})
}
