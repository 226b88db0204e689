package api

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/tab-harvester/internal/harvest"
)

type summarizeResponse struct {
	Status  string   `json:"status"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) summarize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	req, err := harvest.DecodeRequest(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		s.writeStageError(w, r, err)
		return
	}

	record, err := s.summarizer.Summarize(r.Context(), req)
	if err != nil {
		s.writeStageError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summarizeResponse{
		Status:  "ok",
		Summary: record.Summary,
		Tags:    record.Tags,
	})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	m, err := s.stats.ReadMetrics(r.Context())
	if err != nil {
		s.logger.Error("read metrics failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
		writeDetail(w, http.StatusInternalServerError, "metrics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) writeStageError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	detail := "internal server error"
	var stageErr *harvest.StageError
	if errors.As(err, &stageErr) && stageErr.Detail != "" {
		detail = stageErr.Detail
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("summarize request failed",
			zap.Int("status", status),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err),
		)
	}
	writeDetail(w, status, detail)
}

// StatusFor maps the pipeline error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, harvest.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, harvest.ErrUpstreamModel), errors.Is(err, harvest.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
