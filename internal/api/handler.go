package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/customer"
	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/watch"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	pipeline   *pipeline.Pipeline
	classifier *decision.Classifier
	scorer     *rules.Scorer
	catalog    *rules.Catalog
	watches    *watch.Engine
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, p *pipeline.Pipeline, classifier *decision.Classifier, scorer *rules.Scorer, catalog *rules.Catalog, watches *watch.Engine, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		pipeline:   p,
		classifier: classifier,
		scorer:     scorer,
		catalog:    catalog,
		watches:    watches,
		version:    version,
	}
}

// IngestEvent handles POST /events. The event is evaluated synchronously;
// the response carries the decision and any opened case.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.pipeline.Process(ctx, tenantID, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetEvent retrieves an ingested event by ID.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	eventID := chi.URLParam(r, "id")

	ev, err := h.repo.GetEvent(ctx, tenantID, eventID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ev)
}

// ListDecisions returns recent decisions for the tenant.
func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	decisions, err := h.repo.ListDecisions(ctx, tenantID, queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// GetDecision retrieves a decision by ID.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	decisionID := chi.URLParam(r, "id")

	d, err := h.repo.GetDecision(ctx, tenantID, decisionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// OverrideDecision handles POST /decisions/{id}/override. The override is
// appended to the decision's audit trail; score history is never rewritten.
func (h *Handler) OverrideDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	decisionID := chi.URLParam(r, "id")

	var o domain.Override
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	d, err := h.classifier.Override(ctx, tenantID, decisionID, o)
	if err != nil {
		writeError(w, err)
		return
	}

	slog.Info("decision overridden",
		"tenant_id", tenantID,
		"decision_id", decisionID,
		"status", o.Status,
		"actor_id", o.ActorID,
	)
	writeJSON(w, http.StatusOK, d)
}

// ListRules returns the tenant's active rules, optionally scoped by
// business domain (?domain=PSP).
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	ruleList, err := h.repo.ListActiveRules(ctx, tenantID, r.URL.Query().Get("domain"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": ruleList,
		"count": len(ruleList),
	})
}

// GetRule retrieves a rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetRule(ctx, tenantID, ruleID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateRule creates a rule after compiling its expression. The tenant's
// cached rule snapshot is invalidated so the next event sees the change.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	h.saveRule(w, r, "")
}

// UpdateRule upserts a rule under the path ID.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	h.saveRule(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) saveRule(w http.ResponseWriter, r *http.Request, ruleID string) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var rule domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if ruleID != "" {
		rule.ID = ruleID
	}
	if rule.ID == "" || rule.Name == "" || rule.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}
	if rule.Score < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "score must not be negative",
		})
		return
	}
	if rule.Domain == "" {
		rule.Domain = domain.DomainAll
	}
	rule.TenantID = tenantID

	if err := h.scorer.Validate(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRule(ctx, tenantID, &rule); err != nil {
		writeError(w, err)
		return
	}
	h.catalog.Invalidate(ctx, tenantID)

	status := http.StatusOK
	if ruleID == "" {
		status = http.StatusCreated
	}
	slog.Info("rule saved", "tenant_id", tenantID, "rule_id", rule.ID, "name", rule.Name)
	writeJSON(w, status, &rule)
}

// SeedRules installs the built-in detection rule set for the tenant.
// Existing rules with the same IDs are overwritten.
func (h *Handler) SeedRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	seeded := rules.SeedRules(tenantID)
	for _, rule := range seeded {
		if err := h.repo.SaveRule(ctx, tenantID, rule); err != nil {
			writeError(w, err)
			return
		}
	}
	h.catalog.Invalidate(ctx, tenantID)

	slog.Info("seed rules installed", "tenant_id", tenantID, "count", len(seeded))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"count": len(seeded),
	})
}

// GetThresholds returns the tenant's score cut-offs.
func (h *Handler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	writeJSON(w, http.StatusOK, h.classifier.Thresholds(ctx, tenantID))
}

// SetThresholds replaces the tenant's score cut-offs.
func (h *Handler) SetThresholds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var t domain.Thresholds
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.classifier.SetThresholds(ctx, tenantID, t); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// RegisterCustomerRequest is the request body for POST /customers.
type RegisterCustomerRequest struct {
	ExternalID string             `json:"externalId"`
	Name       string             `json:"name"`
	Status     string             `json:"status,omitempty"`
	Directors  []string           `json:"directors,omitempty"`
	Profile    domain.RiskProfile `json:"profile"`
}

// RegisterCustomer registers a customer and seeds its onboarding risk
// baseline from the static weighted-factor assessment.
func (h *Handler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req RegisterCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ExternalID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "externalId and name are required",
		})
		return
	}

	assessment := customer.AssessOnboarding(req.Profile)

	c := &domain.Customer{
		ID:                  uuid.New().String(),
		TenantID:            tenantID,
		ExternalID:          req.ExternalID,
		Name:                req.Name,
		Status:              req.Status,
		Directors:           req.Directors,
		OnboardingRiskScore: float64(assessment.TotalScore),
		RiskLevel:           assessment.RiskLevel,
		CreatedAt:           time.Now().UTC(),
	}

	if err := h.repo.SaveCustomer(ctx, tenantID, c); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("customer registered",
		"tenant_id", tenantID,
		"external_id", c.ExternalID,
		"onboarding_score", assessment.TotalScore,
		"risk_level", assessment.RiskLevel,
	)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"customer":   c,
		"assessment": assessment,
	})
}

// GetCustomer retrieves a customer by external ID.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	externalID := chi.URLParam(r, "externalId")

	c, err := h.repo.GetCustomerByExternalID(ctx, tenantID, externalID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// CreateWatch creates an alert watch for a customer.
func (h *Handler) CreateWatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var aw domain.AlertWatch
	if err := json.NewDecoder(r.Body).Decode(&aw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if aw.CustomerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customerId is required",
		})
		return
	}
	if aw.ID == "" {
		aw.ID = uuid.New().String()
	}
	aw.TenantID = tenantID
	aw.Active = true
	aw.CreatedAt = time.Now().UTC()

	if err := h.watches.Validate(&aw); err != nil {
		writeError(w, err)
		return
	}

	if err := h.repo.SaveWatch(ctx, tenantID, &aw); err != nil {
		writeError(w, err)
		return
	}

	slog.Info("watch created",
		"tenant_id", tenantID,
		"watch_id", aw.ID,
		"customer_id", aw.CustomerID,
		"kind", aw.Kind,
	)
	writeJSON(w, http.StatusCreated, &aw)
}

// ListWatches returns a customer's active watches (?customerId=...).
func (h *Handler) ListWatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	customerID := r.URL.Query().Get("customerId")
	if customerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "customerId query parameter is required",
		})
		return
	}

	watches, err := h.repo.ListActiveWatches(ctx, tenantID, customerID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"watches": watches,
		"count":   len(watches),
	})
}

// ListCases returns recent investigation cases for the tenant.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	cases, err := h.repo.ListCases(ctx, tenantID, queryLimit(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cases": cases,
		"count": len(cases),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func queryLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps the domain error taxonomy to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
	})
}
