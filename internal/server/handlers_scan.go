package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/jonathan/jobtrail/internal/server/middleware"
)

// ScanRequest is the optional POST /scan body.
type ScanRequest struct {
	// MaxResults caps this cycle's candidate list. Zero means the service
	// default.
	MaxResults int `json:"max_results" validate:"omitempty,gte=1,lte=50"`
}

// handleScan triggers a scan cycle for the authenticated owner and reports
// its counts. An empty body is a scan with defaults.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.OwnerID(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, (&ErrValidation{Field: "max_results", Message: "must be between 1 and 50"}).Error())
		return
	}

	result, err := s.scans.Scan(r.Context(), ownerID, req.MaxResults)
	if err != nil {
		log.Printf("scan request failed: owner=%s: %v", ownerID, err)
		s.errorResponse(w, HTTPStatus(err), err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, result)
}
