package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/senso-analysis/internal/models"
	"github.com/AI-Template-SDK/senso-analysis/internal/repositories"
	"github.com/AI-Template-SDK/senso-analysis/services"
)

// maxBodyBytes bounds request bodies; batches of long responses stay well under it.
const maxBodyBytes = 16 << 20

type citationsTestRequest struct {
	ResponseAnalysis json.RawMessage `json:"responseAnalysis"`
	CitationsParsed  json.RawMessage `json:"citationsParsed"`
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// POST /citations/test
func (s *Server) handleCitationsTest(w http.ResponseWriter, r *http.Request) {
	var req citationsTestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if isAbsent(req.ResponseAnalysis) || isAbsent(req.CitationsParsed) {
		respondError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	var record models.ResponseAnalysis
	if err := json.Unmarshal(req.ResponseAnalysis, &record); err != nil {
		respondError(w, http.StatusBadRequest, "responseAnalysis is malformed: "+err.Error())
		return
	}
	citations, err := s.schemas.ParseCitationsParsed(req.CitationsParsed)
	if err != nil {
		s.respondAnalysisError(w, err, true)
		return
	}

	batch, err := s.processor.ProcessCitationTransaction(r.Context(), &record, citations)
	if err != nil {
		s.respondAnalysisError(w, err, true)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Test completed successfully",
		"batch":   batch,
	})
}

// responseText extracts a non-empty string responseText from the body, or returns the
// client-facing reason it could not.
func responseText(r *http.Request, w http.ResponseWriter) (string, string) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		return "", "Invalid JSON body"
	}
	raw, ok := body["responseText"]
	if !ok || isAbsent(raw) {
		return "", "responseText is required"
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", "responseText must be a string"
	}
	if text == "" {
		return "", "responseText must not be empty"
	}
	return text, ""
}

// POST /test/analysis
func (s *Server) handleTestAnalysis(w http.ResponseWriter, r *http.Request) {
	text, problem := responseText(r, w)
	if problem != "" {
		respondError(w, http.StatusBadRequest, problem)
		return
	}

	rec, err := s.processor.AnalyzeResponse(r.Context(), text)
	if err != nil {
		if services.IsInvalidInput(err) || services.IsIncompleteRecord(err) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("test analysis failed", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "Analysis failed",
			"details": err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "result": rec})
}

// POST /test/response-analysis
func (s *Server) handleTestResponseAnalysis(w http.ResponseWriter, r *http.Request) {
	text, problem := responseText(r, w)
	if problem != "" {
		respondError(w, http.StatusBadRequest, problem)
		return
	}

	rec, err := s.processor.AnalyzeResponse(r.Context(), text)
	if err != nil {
		status := http.StatusInternalServerError
		if services.IsInvalidInput(err) || services.IsIncompleteRecord(err) {
			status = http.StatusBadRequest
		} else {
			s.logger.Error("test response analysis failed", zap.Error(err))
		}
		respondJSON(w, status, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": rec})
}

func (s *Server) decodeBatchRequest(w http.ResponseWriter, r *http.Request) (*services.BatchRequest, bool) {
	var req services.BatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return nil, false
	}
	if req.CompanyID == uuid.Nil || len(req.Responses) == 0 {
		respondError(w, http.StatusBadRequest, "company_id and responses are required")
		return nil, false
	}
	return &req, true
}

// POST /batches
func (s *Server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeBatchRequest(w, r)
	if !ok {
		return
	}
	result, err := s.processor.ProcessBatch(r.Context(), req)
	if err != nil {
		s.respondAnalysisError(w, err, false)
		return
	}
	status := http.StatusOK
	if result.Batch == nil {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, result)
}

// POST /batches/async
func (s *Server) handleProcessBatchAsync(w http.ResponseWriter, r *http.Request) {
	if s.enqueuer == nil {
		respondError(w, http.StatusServiceUnavailable, "async processing is not configured")
		return
	}
	req, ok := s.decodeBatchRequest(w, r)
	if !ok {
		return
	}
	if req.BatchID == uuid.Nil {
		req.BatchID = uuid.New()
	}
	eventID, err := s.enqueuer.EnqueueBatch(r.Context(), req)
	if err != nil {
		s.logger.Error("failed to enqueue batch", zap.String("batch_id", req.BatchID.String()), zap.Error(err))
		respondError(w, http.StatusBadGateway, "Failed to enqueue batch")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":   "queued",
		"batch_id": req.BatchID.String(),
		"event_id": eventID,
	})
}

func batchIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "batchID must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// GET /batches/{batchID}
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	details, err := s.processor.GetBatch(r.Context(), batchID)
	if err != nil {
		s.respondAnalysisError(w, err, false)
		return
	}
	respondJSON(w, http.StatusOK, details)
}

// POST /batches/{batchID}/reprocess
func (s *Server) handleReprocessBatch(w http.ResponseWriter, r *http.Request) {
	batchID, ok := batchIDParam(w, r)
	if !ok {
		return
	}
	result, err := s.processor.ReprocessBatch(r.Context(), batchID)
	if err != nil {
		s.respondAnalysisError(w, err, false)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GET /schemas/{name}
func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.schemas.Schema(chi.URLParam(r, "name"))
	if err != nil {
		if services.IsInvalidInput(err) {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		s.respondAnalysisError(w, err, false)
		return
	}
	respondJSON(w, http.StatusOK, schema)
}

// respondAnalysisError maps the pipeline error taxonomy onto status codes. Store errors are
// echoed only when echo is set.
func (s *Server) respondAnalysisError(w http.ResponseWriter, err error, echo bool) {
	var ae *services.AnalysisError
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
		return
	case errors.As(err, &ae) && ae.Kind != services.KindPersistenceFailed:
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Error("request failed", zap.Error(err))
	if echo {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	body := map[string]interface{}{"error": "internal error"}
	if ae != nil {
		body["error"] = ae.Message
		body["kind"] = ae.Kind
		body["transient"] = ae.Transient
		body["attempts"] = ae.Attempts
		if ae.BatchID != uuid.Nil {
			body["batch_id"] = ae.BatchID
		}
		if ae.RecordID != uuid.Nil {
			body["record_id"] = ae.RecordID
		}
	}
	respondJSON(w, http.StatusInternalServerError, body)
}
