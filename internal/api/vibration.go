package api

import (
	"encoding/json"
	"net/http"

	"github.com/FujiiNoritsugu/haptic-core/internal/pattern"
)

// vibrationRequest is the body for POST /vibration: an emotion sample
// plus the category naming which profile to compile.
type vibrationRequest struct {
	Emotion         pattern.Emotion `json:"emotion"`
	EmotionCategory string          `json:"emotion_category"`
	DeviceIDs       []string        `json:"device_ids"`
}

// vibrationPatternRequest is the body for POST /vibration/pattern: a
// raw pre-built pattern, bypassing the compiler.
type vibrationPatternRequest struct {
	Pattern   *pattern.VibrationPattern `json:"pattern"`
	DeviceIDs []string                  `json:"device_ids"`
}

// handleVibration compiles an emotion into a pattern and dispatches it
// to the targeted devices.
func (s *Server) handleVibration(w http.ResponseWriter, r *http.Request) {
	var req vibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p := s.compiler.Compile(req.Emotion, req.EmotionCategory)
	if err := p.Validate(s.maxSteps); err != nil {
		// Compiled patterns are always valid; this guards config skew
		// where max steps is set below the largest profile.
		writeError(w, http.StatusBadRequest, "compiled pattern rejected",
			map[string]any{"reason": err.Error()})
		return
	}

	results, err := s.fleet.SendPattern(r.Context(), req.DeviceIDs, p)
	if err != nil {
		writeFleetResults(w, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"pattern": p,
	})
}

// handleVibrationPattern dispatches a caller-supplied pattern.
func (s *Server) handleVibrationPattern(w http.ResponseWriter, r *http.Request) {
	var req vibrationPatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Pattern == nil {
		writeBadRequest(w, "pattern is required")
		return
	}

	if err := req.Pattern.Validate(s.maxSteps); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pattern",
			map[string]any{"reason": err.Error()})
		return
	}

	results, err := s.fleet.SendPattern(r.Context(), req.DeviceIDs, *req.Pattern)
	writeFleetResults(w, results, err)
}

// handleVibrationStop stops playback on the targeted devices.
func (s *Server) handleVibrationStop(w http.ResponseWriter, r *http.Request) {
	ids, err := decodeDeviceIDs(r)
	if err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	results, err := s.fleet.SendStop(r.Context(), ids)
	writeFleetResults(w, results, err)
}
