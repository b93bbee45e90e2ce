package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/print-estimator/internal/config"
	"github.com/jonathan/print-estimator/internal/db"
	"github.com/jonathan/print-estimator/internal/export"
	"github.com/jonathan/print-estimator/internal/notify"
	"github.com/jonathan/print-estimator/internal/parsing"
	"github.com/jonathan/print-estimator/internal/pipeline"
	"github.com/jonathan/print-estimator/internal/pricing"
	"github.com/jonathan/print-estimator/internal/reconcile"
	"github.com/jonathan/print-estimator/internal/types"
	"github.com/jonathan/print-estimator/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
)

type stubExtractor struct {
	fields map[string]any
	err    error
}

func (s *stubExtractor) Extract(ctx context.Context, raw string, inputType types.InputType) (map[string]any, error) {
	return s.fields, s.err
}

type stubTranscriber struct {
	text     string
	gotMIME  string
	gotBytes int
}

func (s *stubTranscriber) Transcribe(ctx context.Context, data []byte, mimeType string, inputType types.InputType) (string, error) {
	s.gotMIME = mimeType
	s.gotBytes = len(data)
	return s.text, nil
}

type sentEvent struct {
	event string
	data  any
	url   string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (n *captureNotifier) Dispatch(ctx context.Context, event string, data any, url string) <-chan struct{} {
	n.mu.Lock()
	n.sent = append(n.sent, sentEvent{event: event, data: data, url: url})
	n.mu.Unlock()
	done := make(chan struct{})
	close(done)
	return done
}

func (n *captureNotifier) events() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEvent(nil), n.sent...)
}

type testServer struct {
	handler     http.Handler
	store       *db.SQLite
	extractor   *stubExtractor
	transcriber *stubTranscriber
	notifier    *captureNotifier
}

func validFields() map[string]any {
	return map[string]any{
		"quantity":          500,
		"width_mm":          90.0,
		"height_mm":         55.0,
		"material_gsm":      350,
		"sides":             "double",
		"finishing":         "cut",
		"print_method":      "digital",
		"turnaround_days":   5,
		"artwork_reference": "https://example.com/cards.pdf",
	}
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()

	cfg := config.Default()
	cfg.Webhook.URL = "https://hooks.example.com/default"
	for _, m := range mutate {
		m(&cfg)
	}

	store, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)

	logger := zaptest.NewLogger(t)
	model := pricing.NewModel(cfg.Rates, logger)
	validator := validation.NewValidator(cfg.Rules, model)
	extractor := &stubExtractor{fields: validFields()}
	transcriber := &stubTranscriber{text: "500 business cards"}
	notifier := &captureNotifier{}

	estimator, err := pipeline.New(pipeline.Deps{
		Store:       store,
		Extractor:   extractor,
		Transcriber: transcriber,
		Engine:      reconcile.NewEngine(model, 0),
		Validator:   validator,
		Notifier:    notifier,
		Logger:      logger,
	}, pipeline.WithWebhookURL(cfg.Webhook.URL))
	require.NoError(t, err)

	srv, err := New(&cfg, Deps{
		Estimator: estimator,
		Store:     store,
		Model:     model,
		Validator: validator,
		Notifier:  notifier,
		Logger:    logger,
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	return &testServer{
		handler:     srv.Handler(),
		store:       store,
		extractor:   extractor,
		transcriber: transcriber,
		notifier:    notifier,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) estimate(t *testing.T) pipeline.Result {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/estimate", types.EstimateRequest{Input: "500 business cards", InputType: types.InputText})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func multipartBody(t *testing.T, filename, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		h := make(map[string][]string)
		h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)}
		if contentType != "" {
			h["Content-Type"] = []string{contentType}
		}
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestNew_RequiresDeps(t *testing.T) {
	cfg := config.Default()
	_, err := New(&cfg, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "estimator")

	_, err = New(nil, Deps{})
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodOptions, "/estimate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), WebhookHeader)
}

func TestEstimate_Success(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/estimate",
		types.EstimateRequest{Input: "500 business cards, 350gsm", InputType: types.InputText},
		WebhookHeader, "https://hooks.example.com/custom")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEqual(t, uuid.Nil, result.OrderID)
	assert.Equal(t, types.StatusEstimated, result.Status)
	assert.Equal(t, 1, result.EstimateVersion)
	assert.Equal(t, types.SourceDeterministic, result.Price.Source)
	assert.Greater(t, result.Price.TotalPrice, 0.0)
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))

	events := ts.notifier.events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventEstimateCreated, events[0].event)
	assert.Equal(t, "https://hooks.example.com/custom", events[0].url)

	order, err := ts.store.GetOrder(context.Background(), result.OrderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, types.StatusEstimated, order.Status)
}

func TestEstimate_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", "{not json"},
		{"missing input", types.EstimateRequest{InputType: types.InputText}},
		{"unknown input type", map[string]string{"input": "x", "input_type": "fax"}},
		{"upload type", types.EstimateRequest{Input: "x", InputType: types.InputPDF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/estimate", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeError(t, rec).Error)
		})
	}
	assert.Empty(t, ts.notifier.events())
}

func TestEstimate_ExtractionFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.extractor.err = &parsing.ExtractionError{Message: "model returned malformed JSON"}

	rec := ts.do(t, http.MethodPost, "/estimate", types.EstimateRequest{Input: "gibberish", InputType: types.InputEmail})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	resp := decodeError(t, rec)
	assert.Equal(t, pipeline.StageExtraction, resp.Stage)
	assert.Contains(t, resp.Error, "malformed JSON")
	assert.Empty(t, ts.notifier.events())
}

func TestUpload_Success(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, "order.pdf", "", []byte("%PDF-1.4 fake"), map[string]string{"input_type": "pdf"})
	req := httptest.NewRequest(http.MethodPost, "/estimate/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, types.ArtworkUploadedPDF, result.Specification.ArtworkReference)
	assert.Equal(t, "application/pdf", ts.transcriber.gotMIME)
	assert.Equal(t, len("%PDF-1.4 fake"), ts.transcriber.gotBytes)

	order, err := ts.store.GetOrder(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.InputPDF, order.InputType)
	assert.Equal(t, "500 business cards", order.RawInput)

	events := ts.notifier.events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.EventEstimateUploaded, events[0].event)
	assert.Equal(t, "https://hooks.example.com/default", events[0].url)
}

func TestUpload_DetectsImageFromFilename(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartBody(t, "proof.png", "", []byte{0x89, 'P', 'N', 'G'}, nil)
	req := httptest.NewRequest(http.MethodPost, "/estimate/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, types.ArtworkUploadedImage, result.Specification.ArtworkReference)
	assert.Equal(t, "image/png", ts.transcriber.gotMIME)
}

func TestUpload_BadRequests(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.Server.MaxUploadSize = 1024 })

	tests := []struct {
		name     string
		filename string
		data     []byte
		fields   map[string]string
		want     int
	}{
		{"missing file", "", nil, map[string]string{"input_type": "pdf"}, http.StatusBadRequest},
		{"text input type", "order.txt", []byte("hello"), map[string]string{"input_type": "text"}, http.StatusBadRequest},
		{"empty file", "order.pdf", []byte{}, nil, http.StatusBadRequest},
		{"too large", "order.pdf", bytes.Repeat([]byte("x"), 4096), nil, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.filename, "application/pdf", tt.data, tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/estimate/upload", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/estimate/upload", `{"input":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetOrder(t *testing.T) {
	ts := newTestServer(t)
	result := ts.estimate(t)

	rec := ts.do(t, http.MethodGet, "/orders/"+result.OrderID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp OrderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Order)
	require.NotNil(t, resp.Estimate)
	assert.Equal(t, result.OrderID, resp.Order.ID)
	assert.Equal(t, 1, resp.Estimate.Version)
	assert.InDelta(t, result.Price.TotalPrice, resp.Estimate.TotalPrice, 0.001)
	require.NotEmpty(t, resp.Audit)
	assert.Equal(t, types.AuditOrderCreated, resp.Audit[0].Action)
	assert.Equal(t, ActorAPI, resp.Audit[0].Actor)
}

func TestGetOrder_Errors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/orders/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/orders/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateStatus(t *testing.T) {
	ts := newTestServer(t)
	result := ts.estimate(t)
	path := "/orders/" + result.OrderID.String() + "/status"

	rec := ts.do(t, http.MethodPost, path, types.StatusUpdateRequest{Status: types.StatusApproved, Notes: "customer confirmed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var order types.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, types.StatusApproved, order.Status)

	audit, err := ts.store.ListAudit(context.Background(), result.OrderID)
	require.NoError(t, err)
	last := audit[len(audit)-1]
	assert.Equal(t, types.AuditStatusChanged, last.Action)
	assert.Equal(t, "customer confirmed", last.Notes)

	events := ts.notifier.events()
	require.Len(t, events, 2)
	assert.Equal(t, notify.EventOrderStatusUpdated, events[1].event)
	change, ok := events[1].data.(StatusChange)
	require.True(t, ok)
	assert.Equal(t, types.StatusEstimated, change.From)
	assert.Equal(t, types.StatusApproved, change.Status)
}

func TestUpdateStatus_Errors(t *testing.T) {
	ts := newTestServer(t)
	result := ts.estimate(t)

	rec := ts.do(t, http.MethodPost, "/orders/"+result.OrderID.String()+"/status", map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/orders/"+result.OrderID.String()+"/status", map[string]string{"status": "failed"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/orders/"+uuid.NewString()+"/status", types.StatusUpdateRequest{Status: types.StatusApproved})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReestimate(t *testing.T) {
	ts := newTestServer(t)
	result := ts.estimate(t)
	path := "/orders/" + result.OrderID.String() + "/reestimate"

	rec := ts.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, 2, again.EstimateVersion)

	rec = ts.do(t, http.MethodPost, path, ReestimateRequest{Input: strPtr("1000 business cards")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	order, err := ts.store.GetOrder(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "1000 business cards", order.RawInput)

	estimates, err := ts.store.ListEstimates(context.Background(), result.OrderID)
	require.NoError(t, err)
	assert.Len(t, estimates, 3)

	events := ts.notifier.events()
	require.Len(t, events, 3)
	assert.Equal(t, notify.EventOrderReestimated, events[2].event)
}

func TestReestimate_Errors(t *testing.T) {
	ts := newTestServer(t)
	result := ts.estimate(t)

	rec := ts.do(t, http.MethodPost, "/orders/"+uuid.NewString()+"/reestimate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, pipeline.StageLoad, decodeError(t, rec).Stage)

	rec = ts.do(t, http.MethodPost, "/orders/"+result.OrderID.String()+"/reestimate", ReestimateRequest{Input: strPtr("  ")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/orders/"+result.OrderID.String()+"/reestimate", "[")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuote(t *testing.T) {
	ts := newTestServer(t)
	result := ts.estimate(t)

	rec := ts.do(t, http.MethodGet, "/orders/"+result.OrderID.String()+"/quote.xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), result.OrderID.String())

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.Equal(t, []string{export.QuoteSheet, export.AuditSheet}, f.GetSheetList())

	rec = ts.do(t, http.MethodGet, "/orders/"+uuid.NewString()+"/quote.xlsx", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrice(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/price", validFields())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp PriceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 500, resp.Specification.Quantity)
	assert.Equal(t, types.SourceDeterministic, resp.Price.Source)
	assert.InDelta(t, resp.Price.Breakdown.Sum(), resp.Price.TotalPrice, 0.05)
	assert.True(t, resp.Validation.IsValid, resp.Validation.Summary())

	// Defaults fill missing fields
	rec = ts.do(t, http.MethodPost, "/price", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, parsing.DefaultQuantity, resp.Specification.Quantity)

	rec = ts.do(t, http.MethodPost, "/price", "nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Nothing is persisted by /price
	assert.Empty(t, ts.notifier.events())
}

func TestRateLimit_Estimate(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.RateLimit.EstimateLimit = 1 })

	ts.estimate(t)
	rec := ts.do(t, http.MethodPost, "/estimate", types.EstimateRequest{Input: "again", InputType: types.InputText})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")

	// Reads are limited separately
	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPStatus(t *testing.T) {
	orderID := uuid.New()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"extraction", &pipeline.PipelineError{Stage: pipeline.StageExtraction, OrderID: orderID, Cause: errors.New("bad")}, http.StatusUnprocessableEntity},
		{"persistence", &pipeline.PipelineError{Stage: pipeline.StagePersistence, OrderID: orderID, Cause: errors.New("disk")}, http.StatusInternalServerError},
		{"unsupported input", &pipeline.PipelineError{Stage: pipeline.StageIntake, Cause: fmt.Errorf("%w %q", pipeline.ErrUnsupportedInput, "fax")}, http.StatusBadRequest},
		{"intake storage", &pipeline.PipelineError{Stage: pipeline.StageIntake, Cause: errors.New("connection refused")}, http.StatusInternalServerError},
		{"missing order", &pipeline.PipelineError{Stage: pipeline.StageLoad, OrderID: orderID, Cause: db.ErrNotFound}, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("order: %w", db.ErrNotFound), http.StatusNotFound},
		{"request validation", &ErrValidation{Field: "status", Message: "required"}, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.err))
		})
	}
}

func TestErrorBody(t *testing.T) {
	pErr := &pipeline.PipelineError{Stage: pipeline.StageExtraction, Cause: errors.New("bad json")}
	body := errorBody(pErr)
	assert.Equal(t, pipeline.StageExtraction, body.Stage)
	assert.True(t, strings.Contains(body.Error, "bad json"))

	req := types.StatusUpdateRequest{}
	body = errorBody(req.Validate())
	assert.Equal(t, `validation error: Status failed "required"`, body.Error)
	assert.Empty(t, body.Stage)
}

func strPtr(s string) *string { return &s }
