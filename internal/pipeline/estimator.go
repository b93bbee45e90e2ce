// Package pipeline orchestrates one estimation run: extraction, normalization,
// pricing, reconciliation, validation and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/print-estimator/internal/config"
	"github.com/jonathan/print-estimator/internal/db"
	"github.com/jonathan/print-estimator/internal/notify"
	"github.com/jonathan/print-estimator/internal/observability"
	"github.com/jonathan/print-estimator/internal/parsing"
	"github.com/jonathan/print-estimator/internal/pricing"
	"github.com/jonathan/print-estimator/internal/reconcile"
	"github.com/jonathan/print-estimator/internal/types"
	"github.com/jonathan/print-estimator/internal/validation"
	"go.uber.org/zap"
)

// cleanupTimeout bounds the failure bookkeeping written after the request context is gone
const cleanupTimeout = 5 * time.Second

// ProgressEvent represents a progress update during an estimation run
type ProgressEvent struct {
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	OrderID uuid.UUID `json:"order_id"`
	Content any       `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Deps are the collaborators of an Estimator. Candidates, Advisor, Transcriber
// and Notifier are optional.
type Deps struct {
	Store       Store
	Extractor   parsing.Extractor
	Transcriber parsing.Transcriber
	Candidates  pricing.CandidateSource
	Advisor     validation.Advisor
	Engine      *reconcile.Engine
	Validator   *validation.Validator
	Notifier    Notifier
	Logger      *zap.Logger
}

// Option configures an Estimator
type Option func(*Estimator)

// WithTimeouts sets the per-collaborator timeouts. Zero values keep the defaults.
func WithTimeouts(t config.TimeoutConfig) Option {
	return func(e *Estimator) {
		if t.Extraction > 0 {
			e.timeouts.Extraction = t.Extraction
		}
		if t.Pricing > 0 {
			e.timeouts.Pricing = t.Pricing
		}
		if t.Advisory > 0 {
			e.timeouts.Advisory = t.Advisory
		}
	}
}

// WithWebhookURL sets the webhook used when a request names none
func WithWebhookURL(url string) Option {
	return func(e *Estimator) { e.webhookURL = url }
}

// WithProgress registers a progress callback
func WithProgress(cb ProgressCallback) Option {
	return func(e *Estimator) { e.onProgress = cb }
}

// Request is one estimation request.
// Upload inputs (pdf, image) carry the file in Document and leave RawInput empty.
type Request struct {
	RawInput   string
	InputType  types.InputType
	Document   []byte
	MIMEType   string
	Actor      string
	WebhookURL string
}

// Result is the complete outcome of a successful run
type Result struct {
	OrderID         uuid.UUID              `json:"order_id"`
	Specification   types.Specification    `json:"specification"`
	Price           types.PriceBreakdown   `json:"price"`
	Validation      types.ValidationResult `json:"validation"`
	EstimateVersion int                    `json:"estimate_version"`
	Status          types.OrderStatus      `json:"status"`
}

// Estimator runs the estimation pipeline. It holds no per-request state and is
// safe for concurrent use.
type Estimator struct {
	store       Store
	extractor   parsing.Extractor
	transcriber parsing.Transcriber
	candidates  pricing.CandidateSource
	advisor     validation.Advisor
	engine      *reconcile.Engine
	validator   *validation.Validator
	notifier    Notifier
	timeouts    config.TimeoutConfig
	webhookURL  string
	onProgress  ProgressCallback
	logger      *zap.Logger
}

// New creates an Estimator from deps
func New(deps Deps, opts ...Option) (*Estimator, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Extractor == nil:
		return nil, errors.New("pipeline: extractor is required")
	case deps.Engine == nil:
		return nil, errors.New("pipeline: reconciliation engine is required")
	case deps.Validator == nil:
		return nil, errors.New("pipeline: validator is required")
	}

	e := &Estimator{
		store:       deps.Store,
		extractor:   deps.Extractor,
		transcriber: deps.Transcriber,
		candidates:  deps.Candidates,
		advisor:     deps.Advisor,
		engine:      deps.Engine,
		validator:   deps.Validator,
		notifier:    deps.Notifier,
		timeouts:    config.Default().Timeouts,
		logger:      observability.OrNop(deps.Logger),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Estimate creates an order for req and runs the full pipeline.
// It returns either a complete Result or a *PipelineError, never both.
func (e *Estimator) Estimate(ctx context.Context, req Request) (*Result, error) {
	if !req.InputType.Valid() {
		return nil, &PipelineError{Stage: StageIntake, Cause: fmt.Errorf("%w %q", ErrUnsupportedInput, req.InputType)}
	}

	order, err := e.store.CreateOrder(ctx, req.InputType, req.RawInput, req.Actor)
	if err != nil {
		return nil, &PipelineError{Stage: StageIntake, Cause: err}
	}
	e.emit(StageIntake, "order created", order.ID, nil)

	raw := req.RawInput
	var replaced *string
	if req.InputType.IsUpload() {
		text, err := e.transcribe(ctx, req)
		if err != nil {
			return nil, e.fail(ctx, order.ID, StageExtraction, false, err)
		}
		raw, replaced = text, &text
	}

	event := notify.EventEstimateCreated
	if req.InputType.IsUpload() {
		event = notify.EventEstimateUploaded
	}

	return e.run(ctx, runInput{
		orderID:    order.ID,
		raw:        raw,
		replaced:   replaced,
		inputType:  req.InputType,
		actor:      req.Actor,
		webhookURL: req.WebhookURL,
		event:      event,
	})
}

// Reestimate prices an existing order again from its stored raw input, or from
// raw when non-nil. Each call adds a new estimate version; the specification is
// overwritten in place. A failed reestimate leaves the order's status unchanged.
func (e *Estimator) Reestimate(ctx context.Context, orderID uuid.UUID, raw *string) (*Result, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, &PipelineError{Stage: StageLoad, OrderID: orderID, Cause: err}
	}
	if order == nil {
		return nil, &PipelineError{Stage: StageLoad, OrderID: orderID, Cause: db.ErrNotFound}
	}

	input := order.RawInput
	if raw != nil {
		input = *raw
	}

	return e.run(ctx, runInput{
		orderID:    orderID,
		raw:        input,
		replaced:   raw,
		inputType:  order.InputType,
		actor:      types.ActorSystem,
		event:      notify.EventOrderReestimated,
		reestimate: true,
	})
}

// runInput holds the per-call inputs shared by Estimate and Reestimate
type runInput struct {
	orderID    uuid.UUID
	raw        string
	replaced   *string
	inputType  types.InputType
	actor      string
	webhookURL string
	event      string
	reestimate bool
}

func (e *Estimator) run(ctx context.Context, r runInput) (*Result, error) {
	log := e.logger.With(zap.String("order_id", r.orderID.String()))

	fields, err := e.extract(ctx, r.raw, r.inputType)
	if err != nil {
		return nil, e.fail(ctx, r.orderID, StageExtraction, r.reestimate, err)
	}
	spec := parsing.Normalize(fields, r.inputType)
	e.emit(StageExtraction, "specification normalized", r.orderID, spec)

	decision := e.price(ctx, spec, log)
	e.emit(StagePricing, "price reconciled", r.orderID, decision.Price)

	result := e.validate(ctx, spec, decision.Price, log)
	e.emit(StageValidation, "order validated", r.orderID, result)

	status := types.StatusEstimated
	if !result.IsValid {
		status = types.StatusReview
	}

	estimate, err := e.store.Persist(ctx, db.PersistInput{
		OrderID:       r.orderID,
		Specification: spec,
		Price:         decision.Price,
		Validation:    result,
		Status:        status,
		Actor:         r.actor,
		RawInput:      r.replaced,
		Reestimate:    r.reestimate,
	})
	if err != nil {
		return nil, e.fail(ctx, r.orderID, StagePersistence, r.reestimate, err)
	}
	e.emit(StagePersistence, fmt.Sprintf("estimate v%d recorded", estimate.Version), r.orderID, nil)

	out := &Result{
		OrderID:         r.orderID,
		Specification:   spec,
		Price:           decision.Price,
		Validation:      result,
		EstimateVersion: estimate.Version,
		Status:          status,
	}

	log.Info("estimation completed",
		zap.String("op", "pipeline.run"),
		zap.Int("version", estimate.Version),
		zap.Float64("total_price", out.Price.TotalPrice),
		zap.String("price_source", string(out.Price.Source)),
		zap.Bool("accepted_candidate", decision.Accepted),
		zap.String("status", string(status)))

	e.dispatch(ctx, r.event, out, r.webhookURL)
	return out, nil
}

func (e *Estimator) transcribe(ctx context.Context, req Request) (string, error) {
	if e.transcriber == nil {
		return "", &parsing.ExtractionError{Message: "document uploads are not supported without a generative client"}
	}
	tctx, cancel := context.WithTimeout(ctx, e.timeouts.Extraction)
	defer cancel()
	return e.transcriber.Transcribe(tctx, req.Document, req.MIMEType, req.InputType)
}

func (e *Estimator) extract(ctx context.Context, raw string, inputType types.InputType) (map[string]any, error) {
	ectx, cancel := context.WithTimeout(ctx, e.timeouts.Extraction)
	defer cancel()
	return e.extractor.Extract(ectx, raw, inputType)
}

// price obtains a candidate and reconciles it. Any candidate failure,
// including a timeout, falls back to the deterministic model.
func (e *Estimator) price(ctx context.Context, spec types.Specification, log *zap.Logger) reconcile.Decision {
	if e.candidates == nil {
		return e.engine.Unavailable(spec)
	}

	pctx, cancel := context.WithTimeout(ctx, e.timeouts.Pricing)
	defer cancel()

	candidate, err := e.candidates.PriceCandidate(pctx, spec)
	if err != nil {
		log.Warn("candidate pricing unavailable, using deterministic model",
			zap.String("op", "pipeline.price"),
			zap.Error(err))
		return e.engine.Unavailable(spec)
	}

	decision := e.engine.Reconcile(candidate, spec)
	if !decision.Accepted {
		log.Info("candidate price rejected",
			zap.String("op", "pipeline.price"),
			zap.Float64("candidate", candidate.TotalPrice),
			zap.Float64("authoritative", decision.Authoritative.TotalPrice),
			zap.Float64("deviation", decision.Deviation))
	}
	return decision
}

// validate runs the rules and merges advisory flags. Advisory failures are discarded.
func (e *Estimator) validate(ctx context.Context, spec types.Specification, price types.PriceBreakdown, log *zap.Logger) types.ValidationResult {
	result := e.validator.Validate(spec, price)
	if e.advisor == nil {
		return result
	}

	actx, cancel := context.WithTimeout(ctx, e.timeouts.Advisory)
	defer cancel()

	advice, err := e.advisor.Advise(actx, spec, price)
	if err != nil {
		log.Warn("discarding advisory validation",
			zap.String("op", "pipeline.validate"),
			zap.Error(err))
		return result
	}
	return validation.Merge(result, advice.Flags)
}

// fail records why a run aborted. New orders are marked failed; a failed
// reestimate only appends an audit entry so the previous estimate stays current.
// Bookkeeping runs on a context detached from ctx so cancellation is still recorded.
func (e *Estimator) fail(ctx context.Context, orderID uuid.UUID, stage string, reestimate bool, cause error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	reason := cause.Error()
	var err error
	if reestimate {
		err = e.store.RecordAudit(cctx, orderID, types.AuditEstimationFailed, types.ActorSystem, reason)
	} else {
		err = e.store.Fail(cctx, orderID, reason)
	}
	if err != nil {
		e.logger.Error("failed to record estimation failure",
			zap.String("op", "pipeline.fail"),
			zap.String("order_id", orderID.String()),
			zap.Error(err))
	}

	e.logger.Warn("estimation aborted",
		zap.String("op", "pipeline.fail"),
		zap.String("order_id", orderID.String()),
		zap.String("stage", stage),
		zap.Error(cause))
	return &PipelineError{Stage: stage, OrderID: orderID, Cause: cause}
}

func (e *Estimator) dispatch(ctx context.Context, event string, data any, url string) {
	if url == "" {
		url = e.webhookURL
	}
	if e.notifier == nil || url == "" {
		return
	}
	e.notifier.Dispatch(ctx, event, data, url)
}

// emit calls the progress callback if configured
func (e *Estimator) emit(stage, message string, orderID uuid.UUID, content any) {
	if e.onProgress != nil {
		e.onProgress(ProgressEvent{
			Stage:   stage,
			Message: message,
			OrderID: orderID,
			Content: content,
		})
	}
}
