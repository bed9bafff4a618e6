// Package handler exposes the experiment engine over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"splitlab/internal/experiment/models"
	"splitlab/internal/experiment/ports"
	"splitlab/internal/experiment/service"
	"splitlab/internal/identity"
	"splitlab/internal/stats"
	dErrors "splitlab/pkg/domainerrors"
	"splitlab/pkg/httputil"
)

// Service defines the engine operations the handler depends on.
type Service interface {
	Evaluate(ctx context.Context, identity string, testID models.TestID, opts service.EvaluateOptions) (*models.Variant, error)
	IsActive(ctx context.Context, testID models.TestID) (bool, error)
	RecordConversion(ctx context.Context, identity string, testID models.TestID, conversionType string) error
	RecordMetric(ctx context.Context, identity string, testID models.TestID, name string, value float64) error
}

// Resolver resolves the visitor identity from the request, minting one when
// absent.
type Resolver interface {
	Resolve(w http.ResponseWriter, r *http.Request) string
}

// Handler wires experiment endpoints to the engine.
type Handler struct {
	service  Service
	resolver Resolver
	config   ports.ConfigProvider
	results  ports.ResultsStore
	logger   *slog.Logger
}

// New constructs an experiment handler with its dependencies.
func New(service Service, resolver Resolver, config ports.ConfigProvider, results ports.ResultsStore, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		resolver: resolver,
		config:   config,
		results:  results,
		logger:   logger,
	}
}

// Register mounts experiment endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/evaluate", h.HandleEvaluate)
	r.Post("/conversions", h.HandleConversion)
	r.Post("/metrics", h.HandleMetric)
	r.Route("/tests/{testID}", func(r chi.Router) {
		r.Get("/active", h.HandleActive)
		r.Get("/results", h.HandleResults)
	})
}

// HandleEvaluate handles POST /evaluate requests.
func (h *Handler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[EvaluateRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	visitorID := req.Identity
	if visitorID == "" {
		visitorID = h.resolver.Resolve(w, r)
	}

	variant, err := h.service.Evaluate(ctx, visitorID, models.TestID(req.TestID), service.EvaluateOptions{
		ForceVariant:  models.VariantID(req.Force),
		TrackExposure: req.TrackExposure,
		Visitor:       req.ToVisitor(identity.Device(r.UserAgent())),
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "evaluation failed",
			"test_id", req.TestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromVariant(req.TestID, visitorID, variant))
}

// HandleConversion handles POST /conversions requests.
func (h *Handler) HandleConversion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[ConversionRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	visitorID := req.Identity
	if visitorID == "" {
		visitorID = h.resolver.Resolve(w, r)
	}

	if err := h.service.RecordConversion(ctx, visitorID, models.TestID(req.TestID), req.ConversionType); err != nil {
		h.logger.ErrorContext(ctx, "conversion recording failed",
			"test_id", req.TestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// HandleMetric handles POST /metrics requests.
func (h *Handler) HandleMetric(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := httputil.Decode[MetricRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	visitorID := req.Identity
	if visitorID == "" {
		visitorID = h.resolver.Resolve(w, r)
	}

	if err := h.service.RecordMetric(ctx, visitorID, models.TestID(req.TestID), req.Name, req.Value); err != nil {
		h.logger.ErrorContext(ctx, "metric recording failed",
			"test_id", req.TestID,
			"metric", req.Name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

// HandleActive handles GET /tests/{testID}/active requests.
func (h *Handler) HandleActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	testID := chi.URLParam(r, "testID")

	active, err := h.service.IsActive(ctx, models.TestID(testID))
	if err != nil {
		h.logger.ErrorContext(ctx, "activity check failed",
			"test_id", testID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ActiveResponse{TestID: testID, Active: active})
}

// HandleResults handles GET /tests/{testID}/results requests.
func (h *Handler) HandleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	testID := models.TestID(chi.URLParam(r, "testID"))

	cfg, err := h.config.GetConfig(ctx)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "get config"))
		return
	}
	test, ok := cfg[testID]
	if !ok {
		httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "test %s not found", testID))
		return
	}

	counts, err := h.results.ByTest(ctx, testID)
	if err != nil {
		h.logger.ErrorContext(ctx, "results lookup failed",
			"test_id", testID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	report, err := stats.Analyze(testID, counts, test.Control().ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, report)
}
