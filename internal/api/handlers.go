// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ManuGH/turnstile/internal/camera"
	"github.com/ManuGH/turnstile/internal/log"
	"github.com/ManuGH/turnstile/internal/scanner"
)

const maxBodyBytes = 4 << 10

type scanRequest struct {
	Input string `json:"input"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type settingsPatch struct {
	AutoConfirm  *bool `json:"autoConfirm"`
	SoundEnabled *bool `json:"soundEnabled"`
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.door.View())
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.door.History())
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.door.Stats())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.door.Settings())
}

// handleScan runs manual entry and answers with the terminal attempt.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		respondError(w, r, http.StatusUnprocessableEntity, CodeEmptyInput, "input is blank")
		return
	}

	attempt, err := s.door.Submit(r.Context(), req.Input)
	switch {
	case err == nil:
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Info().
			Str(log.FieldEvent, "api.scan").
			Str(log.FieldAttemptID, attempt.ID).
			Str(log.FieldOutcome, string(attempt.Outcome)).
			Msg("manual scan verified")
		writeJSON(w, http.StatusOK, attempt)
	case errors.Is(err, scanner.ErrSubmitDisabled):
		respondError(w, r, http.StatusConflict, CodeBusy, "a verification is already in flight")
	case errors.Is(err, scanner.ErrClosed):
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "door is shutting down")
	default:
		respondError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.door.Reset(); err != nil {
		if errors.Is(err, scanner.ErrBusy) {
			respondError(w, r, http.StatusConflict, CodeBusy, "cannot reset while verifying")
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.door.View())
}

// handleMode answers 200 with the view even when the camera failed to
// start; the failure shows up as the hardware banner.
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	mode, ok := scanner.ParseMode(strings.ToUpper(strings.TrimSpace(req.Mode)))
	if !ok {
		respondError(w, r, http.StatusBadRequest, CodeUnknownMode, fmt.Sprintf("mode %q is not CAMERA or MANUAL", req.Mode))
		return
	}

	err := s.door.SetMode(r.Context(), mode)
	var failure *camera.Failure
	switch {
	case err == nil:
	case errors.As(err, &failure):
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).
			Str(log.FieldEvent, "api.camera_unavailable").
			Str(log.FieldFailure, string(failure.Kind)).
			Msg("camera mode selected but camera failed")
	case errors.Is(err, scanner.ErrBusy):
		respondError(w, r, http.StatusConflict, CodeBusy, "cannot switch mode while verifying")
		return
	case errors.Is(err, scanner.ErrClosed):
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "door is shutting down")
		return
	default:
		respondError(w, r, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.door.View())
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if err := decodeBody(r, &patch); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if patch.AutoConfirm == nil && patch.SoundEnabled == nil {
		respondError(w, r, http.StatusBadRequest, CodeBadRequest, "nothing to change")
		return
	}
	settings := s.door.Settings()
	if patch.AutoConfirm != nil {
		settings = s.door.SetAutoConfirm(*patch.AutoConfirm)
	}
	if patch.SoundEnabled != nil {
		settings = s.door.SetSoundEnabled(*patch.SoundEnabled)
	}
	writeJSON(w, http.StatusOK, settings)
}
