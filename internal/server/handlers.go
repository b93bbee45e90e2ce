package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jonathan/print-estimator/internal/db"
	"github.com/jonathan/print-estimator/internal/export"
	"github.com/jonathan/print-estimator/internal/ingestion"
	"github.com/jonathan/print-estimator/internal/notify"
	"github.com/jonathan/print-estimator/internal/parsing"
	"github.com/jonathan/print-estimator/internal/pipeline"
	"github.com/jonathan/print-estimator/internal/types"
	"go.uber.org/zap"
)

// ActorAPI is recorded in the audit trail for changes made over HTTP
const ActorAPI = "api"

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// OrderResponse is the response for GET /orders/{id}
type OrderResponse struct {
	Order    *types.Order       `json:"order"`
	Estimate *types.Estimate    `json:"estimate,omitempty"`
	Audit    []types.AuditEntry `json:"audit"`
}

// ReestimateRequest is the optional body for POST /orders/{id}/reestimate
type ReestimateRequest struct {
	Input *string `json:"input,omitempty"`
}

// PriceResponse is the response for POST /price
type PriceResponse struct {
	Specification types.Specification    `json:"specification"`
	Price         types.PriceBreakdown   `json:"price"`
	Validation    types.ValidationResult `json:"validation"`
}

// StatusChange is the webhook payload for order_status_updated
type StatusChange struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    types.OrderStatus `json:"from"`
	Status  types.OrderStatus `json:"status"`
	Notes   string            `json:"notes,omitempty"`
}

// handleEstimate runs the pipeline for a text or email order
func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req types.EstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.failure(w, r, err)
		return
	}
	if req.InputType.IsUpload() {
		s.errorResponse(w, http.StatusBadRequest, "pdf and image orders must be sent to /estimate/upload")
		return
	}

	result, err := s.estimator.Estimate(r.Context(), pipeline.Request{
		RawInput:   req.Input,
		InputType:  req.InputType,
		Actor:      ActorAPI,
		WebhookURL: r.Header.Get(WebhookHeader),
	})
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleUpload runs the pipeline for an uploaded pdf or image.
// The form carries the document in "file" and optionally "input_type".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	tooLarge := fmt.Sprintf("upload exceeds %d bytes", s.maxUpload)
	if r.ContentLength > s.maxUpload {
		s.errorResponse(w, http.StatusRequestEntityTooLarge, tooLarge)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.errorResponse(w, http.StatusRequestEntityTooLarge, tooLarge)
			return
		}
		s.errorResponse(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	inputType := types.InputType(strings.ToLower(strings.TrimSpace(r.FormValue("input_type"))))
	if inputType == "" {
		inputType = ingestion.DetectInputType(header.Filename)
	}
	if !inputType.IsUpload() {
		s.errorResponse(w, http.StatusBadRequest, "input_type must be pdf or image")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "failed to read upload: "+err.Error())
		return
	}
	if len(data) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "file is empty")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = ingestion.MIMEType(header.Filename)
	}

	result, err := s.estimator.Estimate(r.Context(), pipeline.Request{
		InputType:  inputType,
		Document:   data,
		MIMEType:   mimeType,
		Actor:      ActorAPI,
		WebhookURL: r.Header.Get(WebhookHeader),
	})
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handlePrice prices a specification with the deterministic model. Nothing is stored.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	spec := parsing.Normalize(fields, types.InputText)
	price := s.model.Price(spec)
	s.jsonResponse(w, http.StatusOK, PriceResponse{
		Specification: spec,
		Price:         price,
		Validation:    s.validator.Validate(spec, price),
	})
}

// handleGetOrder returns an order with its latest estimate and audit trail
func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}

	resp, err := s.loadOrder(r, id)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleUpdateStatus moves an order to a new status and notifies the webhook
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}

	var req types.StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		s.failure(w, r, err)
		return
	}

	before, err := s.store.GetOrder(r.Context(), id)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	if before == nil {
		s.errorResponse(w, http.StatusNotFound, "order not found")
		return
	}

	order, err := s.store.UpdateStatus(r.Context(), id, req.Status, ActorAPI, req.Notes)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	s.notifyWebhook(r, notify.EventOrderStatusUpdated, StatusChange{
		OrderID: id,
		From:    before.Status,
		Status:  order.Status,
		Notes:   req.Notes,
	})
	s.jsonResponse(w, http.StatusOK, order)
}

// handleReestimate prices an order again, optionally from updated input
func (s *Server) handleReestimate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}

	var req ReestimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Input != nil && strings.TrimSpace(*req.Input) == "" {
		s.errorResponse(w, http.StatusBadRequest, "input must not be empty")
		return
	}

	result, err := s.estimator.Reestimate(r.Context(), id, req.Input)
	if err != nil {
		s.failure(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, result)
}

// handleQuote returns the order's latest estimate as an XLSX workbook
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}

	resp, err := s.loadOrder(r, id)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	data, err := export.QuoteXLSX(resp.Order, resp.Estimate, resp.Audit)
	if err != nil {
		s.failure(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="quote-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("failed to write quote", zap.String("order_id", id.String()), zap.Error(err))
	}
}

func (s *Server) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}

// loadOrder reads an order, its latest estimate and its audit trail.
// A missing order yields db.ErrNotFound.
func (s *Server) loadOrder(r *http.Request, id uuid.UUID) (*OrderResponse, error) {
	ctx := r.Context()
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", id, db.ErrNotFound)
	}

	estimate, err := s.store.LatestEstimate(ctx, id)
	if err != nil {
		return nil, err
	}
	audit, err := s.store.ListAudit(ctx, id)
	if err != nil {
		return nil, err
	}
	return &OrderResponse{Order: order, Estimate: estimate, Audit: audit}, nil
}

// notifyWebhook sends event to the request's webhook or the configured default
func (s *Server) notifyWebhook(r *http.Request, event string, data any) {
	url := r.Header.Get(WebhookHeader)
	if url == "" {
		url = s.webhookURL
	}
	if s.notifier == nil || url == "" {
		return
	}
	s.notifier.Dispatch(r.Context(), event, data, url)
}
