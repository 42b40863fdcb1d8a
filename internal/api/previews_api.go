package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fieldbill/internal/dashboard"
	"fieldbill/internal/export"
	"fieldbill/internal/metrics"
	"fieldbill/internal/service"

	"github.com/rs/zerolog"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// PreviewBody is the request body of the preview endpoints.
type PreviewBody struct {
	CustomerID string   `json:"customer_id"`
	JobIDs     []string `json:"job_ids"`
	// Notify sends the workbook to the manager chats as well. Workbook endpoint only.
	Notify bool `json:"notify,omitempty"`
}

// handlePreview prices the jobs and returns line items and coverage gaps.
// POST /api/v1/previews
func (s *HTTPServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("previews")

	body, ok := s.decodePreviewBody(w, r)
	if !ok {
		return
	}
	preview, ok := s.runPreview(w, r, body)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// handleWorkbook returns the preview as an Excel attachment.
// POST /api/v1/previews/workbook
func (s *HTTPServer) handleWorkbook(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("previews_workbook")

	body, ok := s.decodePreviewBody(w, r)
	if !ok {
		return
	}
	preview, ok := s.runPreview(w, r, body)
	if !ok {
		return
	}

	writer := export.NewExcelizeWriter()
	defer writer.Close()

	var buf bytes.Buffer
	err := export.WriteWorkbook(writer, export.Preview{
		CustomerID: preview.CustomerID,
		RunID:      preview.RunID,
		Items:      preview.Items,
		Gaps:       preview.Gaps,
		Subtotal:   preview.Subtotal,
	}, &buf)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("run_id", preview.RunID).Msg("render workbook")
		writeError(w, http.StatusInternalServerError, "failed to render workbook")
		return
	}

	filename := export.Filename(preview.CustomerID, preview.CreatedAt)
	if body.Notify && s.docs != nil {
		caption := fmt.Sprintf("Invoice preview for customer %s, subtotal %.2f", preview.CustomerID, preview.Subtotal)
		if preview.Blocked {
			caption += fmt.Sprintf(", %d missing rate(s)", len(preview.Gaps))
		}
		if err := s.docs.SendDocument(r.Context(), filename, bytes.NewReader(buf.Bytes()), caption); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("run_id", preview.RunID).Msg("send workbook to managers")
		}
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Run-ID", preview.RunID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleListRuns returns journaled runs.
// GET /api/v1/previews/runs?customer_id=&limit=
func (s *HTTPServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("previews_runs")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.previews.ListRuns(r.Context(), r.URL.Query().Get("customer_id"), limit)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list runs")
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *HTTPServer) decodePreviewBody(w http.ResponseWriter, r *http.Request) (*PreviewBody, bool) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return nil, false
	}

	var body PreviewBody
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if s.maxJobs > 0 && len(body.JobIDs) > s.maxJobs {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("too many jobs; at most %d per preview", s.maxJobs))
		return nil, false
	}
	return &body, true
}

func (s *HTTPServer) runPreview(w http.ResponseWriter, r *http.Request, body *PreviewBody) (*service.Preview, bool) {
	started := time.Now()
	preview, err := s.previews.Preview(r.Context(), service.PreviewRequest{
		CustomerID: body.CustomerID,
		JobIDs:     body.JobIDs,
	})
	if err != nil {
		status, msg := previewErrorStatus(err)
		if status >= http.StatusInternalServerError {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("customer", body.CustomerID).Msg("preview failed")
		}
		writeError(w, status, msg)
		return nil, false
	}
	zerolog.Ctx(r.Context()).Debug().
		Str("run_id", preview.RunID).
		Dur("took", time.Since(started)).
		Msg("preview served")
	return preview, true
}

func previewErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNoJobs), errors.Is(err, service.ErrNoCustomer):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrCustomerMismatch):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, dashboard.ErrJobNotFound):
		return http.StatusNotFound, err.Error()
	}
	var se *dashboard.StatusError
	if errors.As(err, &se) {
		return http.StatusBadGateway, "dashboard unavailable"
	}
	return http.StatusInternalServerError, "failed to generate preview"
}
