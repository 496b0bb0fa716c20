package server

import (
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"eodmarker/service"
)

// StatusResponse is the body of GET /eod/status
type StatusResponse struct {
	BusinessDate   string  `json:"businessDate"`
	IsEODMarked    bool    `json:"isEODMarked"`
	CurrentTimeEST string  `json:"currentTimeEST"`
	StatusFlag     *string `json:"statusFlag"`
	UpdatedAt      *string `json:"updatedAt"`
}

// ErrorResponse is returned for failed requests
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewStatusResponse shapes a status view. Timestamps are rendered with the
// business timezone offset.
func NewStatusResponse(view *service.StatusView) StatusResponse {
	resp := StatusResponse{
		BusinessDate:   view.BusinessDate.String(),
		IsEODMarked:    view.IsMarked,
		CurrentTimeEST: view.CurrentTime.Format(time.RFC3339Nano),
	}

	if view.Record != nil {
		flag := string(view.Record.StatusFlag)
		updatedAt := view.Record.UpdatedAt.In(view.CurrentTime.Location()).Format(time.RFC3339Nano)
		resp.StatusFlag = &flag
		resp.UpdatedAt = &updatedAt
	}

	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.query.Status(r.Context())
	if err != nil {
		log.WithError(err).Error("Failed to get EOD status")
		s.recordStatus(http.StatusInternalServerError)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to read EOD status"})
		return
	}

	s.recordStatus(http.StatusOK)
	writeJSON(w, http.StatusOK, NewStatusResponse(view))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) recordStatus(code int) {
	if s.metrics != nil {
		s.metrics.RecordStatusRequest(code)
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}
