package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FujiiNoritsugu/haptic-core/internal/device"
	"github.com/FujiiNoritsugu/haptic-core/internal/fleet"
)

// deviceIDsRequest is the optional body for fleet lifecycle endpoints.
// An absent body or empty list targets every registered device.
type deviceIDsRequest struct {
	DeviceIDs []string `json:"device_ids"`
}

// decodeDeviceIDs reads the optional {"device_ids":[...]} body.
// An empty body is valid and yields no ids.
func decodeDeviceIDs(r *http.Request) ([]string, error) {
	var req deviceIDsRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return req.DeviceIDs, nil
}

// writeFleetResults maps a fleet dispatch outcome to the HTTP response.
// Partial failure is still a 200: callers inspect the per-device map.
func writeFleetResults(w http.ResponseWriter, results map[string]fleet.Result, err error) {
	if err != nil {
		if errors.Is(err, fleet.ErrNoDevices) {
			writeNotFound(w, "no devices to address")
			return
		}
		writeInternalError(w, "fleet dispatch failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleListDevices returns all registered devices in registration order.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	desc, err := s.registry.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, desc)
}

// handleRegisterDevice registers a new device.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var desc device.Descriptor
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.registry.Register(r.Context(), &desc); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceExists):
			writeConflict(w, "device already registered")
		case errors.Is(err, device.ErrInvalidDevice):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to register device")
		}
		return
	}

	writeJSON(w, http.StatusCreated, desc)
}

// handleUpdateDevice replaces a device's descriptor fields.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var desc device.Descriptor
	if err := json.NewDecoder(r.Body).Decode(&desc); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	desc.ID = id

	if err := s.registry.Update(r.Context(), &desc); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, device.ErrInvalidDevice):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to update device")
		}
		return
	}

	writeJSON(w, http.StatusOK, desc)
}

// handleUnregisterDevice removes a device. The registry's unregister
// hook shuts its connection supervisor down.
func (s *Server) handleUnregisterDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.Unregister(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to unregister device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleDevicesStatus polls the fleet and returns per-device status.
func (s *Server) handleDevicesStatus(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["device_id"]
	results, err := s.fleet.Status(r.Context(), ids)
	writeFleetResults(w, results, err)
}

// handleInitializeDevices brings the targeted devices to Connected.
func (s *Server) handleInitializeDevices(w http.ResponseWriter, r *http.Request) {
	ids, err := decodeDeviceIDs(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	results, err := s.fleet.Initialize(r.Context(), ids)
	writeFleetResults(w, results, err)
}

// handleShutdownDevices disconnects the targeted devices.
func (s *Server) handleShutdownDevices(w http.ResponseWriter, r *http.Request) {
	ids, err := decodeDeviceIDs(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	results, err := s.fleet.Shutdown(r.Context(), ids)
	writeFleetResults(w, results, err)
}
