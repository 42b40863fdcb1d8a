package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fieldbill/internal/dashboard"
	"fieldbill/internal/database"
	"fieldbill/internal/export"
	"fieldbill/internal/invoice"
	"fieldbill/internal/models"
	"fieldbill/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testAPIKey = "valid-key"

type mockPreviewer struct {
	mock.Mock
}

func (m *mockPreviewer) Preview(ctx context.Context, req service.PreviewRequest) (*service.Preview, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Preview), args.Error(1)
}

func (m *mockPreviewer) ListRuns(ctx context.Context, customerID string, limit int) ([]database.Run, error) {
	args := m.Called(ctx, customerID, limit)
	return args.Get(0).([]database.Run), args.Error(1)
}

type mockDocs struct {
	mock.Mock
}

func (m *mockDocs) SendDocument(ctx context.Context, filename string, data io.Reader, caption string) error {
	return m.Called(ctx, filename, data, caption).Error(0)
}

func samplePreview() *service.Preview {
	return &service.Preview{
		RunID:      "run-1",
		CustomerID: "42",
		Result: invoice.Result{
			Items: []models.LineItem{
				{JobID: "j1", JobNumber: "1001", Title: "LCT Labor-1001", Service: "LCT Labor", RateType: models.RateWeekdayRegular,
					Date: "2025-01-06", Quantity: 8, UnitPrice: 50, Total: 400, WorkerID: "w1", WorkerName: "Ana Ruiz", Position: "LCT"},
			},
			Gaps:     []models.CoverageGap{{Position: "LCT", RateType: models.RateWeekdayOvertime}},
			Subtotal: 400,
			Blocked:  true,
		},
		Digest:    "abc",
		CreatedAt: time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC),
	}
}

func newTestHTTPServer(p Previewer, docs DocumentSender, opts Options) *HTTPServer {
	if opts.APIKeys == nil {
		opts.APIKeys = []string{testAPIKey}
	}
	return NewHTTPServer(opts, p, docs, zerolog.Nop())
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any, key string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandlePreview(t *testing.T) {
	p := new(mockPreviewer)
	p.On("Preview", mock.Anything, service.PreviewRequest{CustomerID: "42", JobIDs: []string{"j1"}}).Return(samplePreview(), nil)
	srv := newTestHTTPServer(p, nil, Options{})

	w := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/previews",
		PreviewBody{CustomerID: "42", JobIDs: []string{"j1"}}, testAPIKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp struct {
		RunID    string               `json:"run_id"`
		Items    []models.LineItem    `json:"items"`
		Gaps     []models.CoverageGap `json:"gaps"`
		Blocked  bool                 `json:"blocked"`
		Subtotal float64              `json:"subtotal"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.RunID)
	assert.Len(t, resp.Items, 1)
	assert.True(t, resp.Blocked)
	assert.Equal(t, 400.0, resp.Subtotal)
	assert.Equal(t, models.RateWeekdayOvertime, resp.Gaps[0].RateType)
}

func TestHandlePreview_Validation(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       any
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "wrong method", method: http.MethodGet, wantStatus: http.StatusMethodNotAllowed, wantError: "method not allowed; use POST"},
		{name: "malformed json", method: http.MethodPost, body: "{", wantStatus: http.StatusBadRequest, wantError: "invalid JSON body"},
		{name: "unknown field", method: http.MethodPost, body: `{"customer_id":"42","jobs":["j1"]}`, wantStatus: http.StatusBadRequest, wantError: "invalid JSON body"},
		{name: "too many jobs", method: http.MethodPost, body: PreviewBody{CustomerID: "42", JobIDs: []string{"a", "b", "c"}}, wantStatus: http.StatusBadRequest, wantError: "too many jobs; at most 2 per preview"},
		{name: "no jobs", method: http.MethodPost, body: PreviewBody{CustomerID: "42"}, err: service.ErrNoJobs, wantStatus: http.StatusBadRequest, wantError: service.ErrNoJobs.Error()},
		{name: "foreign job", method: http.MethodPost, body: PreviewBody{CustomerID: "42", JobIDs: []string{"j1"}}, err: fmt.Errorf("job j1: %w", service.ErrCustomerMismatch), wantStatus: http.StatusUnprocessableEntity},
		{name: "unknown job", method: http.MethodPost, body: PreviewBody{CustomerID: "42", JobIDs: []string{"j1"}}, err: fmt.Errorf("job j1: %w", dashboard.ErrJobNotFound), wantStatus: http.StatusNotFound},
		{name: "dashboard down", method: http.MethodPost, body: PreviewBody{CustomerID: "42", JobIDs: []string{"j1"}}, err: &dashboard.StatusError{Method: "GET", Path: "/api/v1/services", Code: 503}, wantStatus: http.StatusBadGateway, wantError: "dashboard unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(mockPreviewer)
			if tt.err != nil {
				p.On("Preview", mock.Anything, mock.Anything).Return(nil, tt.err)
			}
			srv := newTestHTTPServer(p, nil, Options{MaxJobsPerPreview: 2})

			w := doRequest(t, srv.Handler(), tt.method, "/api/v1/previews", tt.body, testAPIKey)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantError != "" {
				var resp map[string]string
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantError, resp["error"])
			}
			if tt.err == nil {
				p.AssertNotCalled(t, "Preview", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestHandleWorkbook(t *testing.T) {
	p := new(mockPreviewer)
	p.On("Preview", mock.Anything, mock.Anything).Return(samplePreview(), nil)
	docs := new(mockDocs)
	docs.On("SendDocument", mock.Anything, "invoice_preview_42_20250106.xlsx", mock.Anything,
		"Invoice preview for customer 42, subtotal 400.00, 1 missing rate(s)").Return(nil)
	srv := newTestHTTPServer(p, docs, Options{})

	w := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/previews/workbook",
		PreviewBody{CustomerID: "42", JobIDs: []string{"j1"}, Notify: true}, testAPIKey)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "invoice_preview_42_20250106.xlsx")
	assert.Equal(t, "run-1", w.Header().Get("X-Run-ID"))
	docs.AssertExpectations(t)

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetLineItems)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "LCT Labor-1001", rows[1][2])
}

func TestHandleWorkbook_NoNotify(t *testing.T) {
	p := new(mockPreviewer)
	p.On("Preview", mock.Anything, mock.Anything).Return(samplePreview(), nil)
	docs := new(mockDocs)
	srv := newTestHTTPServer(p, docs, Options{})

	w := doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/previews/workbook",
		PreviewBody{CustomerID: "42", JobIDs: []string{"j1"}}, testAPIKey)
	require.Equal(t, http.StatusOK, w.Code)
	docs.AssertNotCalled(t, "SendDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleListRuns(t *testing.T) {
	runs := []database.Run{{ID: "r1", CustomerID: "42", ItemCount: 2}}

	p := new(mockPreviewer)
	p.On("ListRuns", mock.Anything, "42", 5).Return(runs, nil)
	srv := newTestHTTPServer(p, nil, Options{})

	w := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/previews/runs?customer_id=42&limit=5", nil, testAPIKey)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Runs []database.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Runs, 1)
	assert.Equal(t, "r1", resp.Runs[0].ID)

	w = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/previews/runs?limit=x", nil, testAPIKey)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, srv.Handler(), http.MethodPost, "/api/v1/previews/runs", nil, testAPIKey)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAPIAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		apiKey         string
		expectedStatus int
	}{
		{name: "valid api key", apiKey: testAPIKey, expectedStatus: http.StatusOK},
		{name: "missing api key", apiKey: "", expectedStatus: http.StatusUnauthorized},
		{name: "invalid api key", apiKey: "invalid-key", expectedStatus: http.StatusUnauthorized},
	}

	p := new(mockPreviewer)
	p.On("ListRuns", mock.Anything, "", 0).Return([]database.Run{}, nil)
	srv := newTestHTTPServer(p, nil, Options{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/previews/runs", nil, tt.apiKey)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestAPIAuthMiddleware_NoKeysConfigured(t *testing.T) {
	p := new(mockPreviewer)
	p.On("ListRuns", mock.Anything, "", 0).Return([]database.Run{}, nil)
	srv := NewHTTPServer(Options{}, p, nil, zerolog.Nop())

	w := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/previews/runs", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	p := new(mockPreviewer)
	p.On("ListRuns", mock.Anything, "", 0).Return([]database.Run{}, nil)
	srv := newTestHTTPServer(p, nil, Options{APIKeys: []string{testAPIKey, "other-key"}, RateLimitPerMinute: 1, RateLimitBurst: 2})

	for i := 0; i < 2; i++ {
		w := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/previews/runs", nil, testAPIKey)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/previews/runs", nil, testAPIKey)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	w = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/previews/runs", nil, "other-key")
	assert.Equal(t, http.StatusOK, w.Code, "buckets are per client")
}

func TestRateLimit_NoKeysUsesClientIP(t *testing.T) {
	p := new(mockPreviewer)
	p.On("ListRuns", mock.Anything, "", 0).Return([]database.Run{}, nil)
	srv := NewHTTPServer(Options{RateLimitPerMinute: 1, RateLimitBurst: 1}, p, nil, zerolog.Nop())

	w := doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/previews/runs", nil, "first")
	require.Equal(t, http.StatusOK, w.Code)

	// A fresh header value does not buy a fresh bucket.
	w = doRequest(t, srv.Handler(), http.MethodGet, "/api/v1/previews/runs", nil, "second")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Len(t, srv.limiters, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/previews/runs", http.NoBody)
	req.RemoteAddr = "203.0.113.9:4000"
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "another address has its own bucket")
}

func TestRequestIDPropagated(t *testing.T) {
	srv := newTestHTTPServer(new(mockPreviewer), nil, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}
