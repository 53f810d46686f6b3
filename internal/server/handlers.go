package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/gkobilansky/xgoat/internal/experiment"
	"github.com/gkobilansky/xgoat/internal/stats"
	"github.com/gkobilansky/xgoat/pkg/logger"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experimentsCount"`
	UptimeSeconds    int64  `json:"uptimeSeconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	exps, err := s.engine.Registry().List(r.Context())
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(exps),
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if !s.decode(w, r, &req) {
		return
	}

	a, err := s.engine.Assign(r.Context(), req.UserID, req.ExperimentID)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, AssignResponse{Assigned: a != nil, Assignment: a})
}

func (s *Server) handleConversion(w http.ResponseWriter, r *http.Request) {
	var req ConversionRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.RecordConversion(r.Context(), req.toEvent()); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	exps, err := s.engine.Registry().List(r.Context())
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if exps == nil {
		exps = []*experiment.Experiment{}
	}
	writeJSON(w, http.StatusOK, exps)
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req ExperimentRequest
	if !s.decode(w, r, &req) {
		return
	}

	exp := req.toExperiment()
	if err := experiment.CheckDefinition(exp); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	if err := s.engine.Registry().Register(r.Context(), exp); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	stored, err := s.engine.Registry().Get(r.Context(), exp.ID)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.engine.Registry().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.Registry().Activate)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.Registry().Pause)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.Registry().Resume)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	// The body is optional.
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	s.transition(w, r, func(ctx context.Context, id string) error {
		return s.engine.Registry().Complete(ctx, id, req.WinnerVariantID)
	})
}

// transition applies a lifecycle change and answers with the experiment.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, string) error) {
	id := r.PathValue("id")
	if err := apply(r.Context(), id); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	exp, err := s.engine.Registry().Get(r.Context(), id)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := s.engine.Performance(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (s *Server) handleSignificance(w http.ResponseWriter, r *http.Request) {
	q := SignificanceQuery{
		Control: r.URL.Query().Get("control"),
		Test:    r.URL.Query().Get("test"),
	}
	if err := requestValidate.Struct(&q); err != nil {
		s.writeError(r.Context(), w, err)
		return
	}

	result, err := s.engine.Significance(r.Context(), r.PathValue("id"), q.Control, q.Test)
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	if err := requestValidate.Struct(v); err != nil {
		s.writeError(r.Context(), w, err)
		return false
	}
	return true
}

// writeError maps domain errors onto HTTP status codes.
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		verr  *experiment.ValidationError
		vErrs validator.ValidationErrors
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Invariant: verr.Invariant})
	case errors.As(err, &vErrs):
		writeJSONError(w, http.StatusBadRequest, validationMessage(vErrs))
	case errors.Is(err, experiment.ErrValidation):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, experiment.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, experiment.ErrInvalidTransition):
		writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, stats.ErrInsufficientData):
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error(ctx, "request failed", logger.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
