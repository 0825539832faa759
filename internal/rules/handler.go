package rules

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hugogu/financial-journal-maker-sub000/internal/observability"
	"github.com/hugogu/financial-journal-maker-sub000/internal/platform/httpx"
	"github.com/hugogu/financial-journal-maker-sub000/internal/rules/expression"
	"github.com/hugogu/financial-journal-maker-sub000/internal/rules/numscript"
	"github.com/hugogu/financial-journal-maker-sub000/internal/shared"
)

// Handler exposes the rule engine over JSON.
type Handler struct {
	service  *Service
	refs     *ReferenceIndex
	logger   *slog.Logger
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler wires the HTTP surface.
func NewHandler(logger *slog.Logger, service *Service, refs *ReferenceIndex, metrics *observability.Metrics) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:  service,
		refs:     refs,
		logger:   logger,
		metrics:  metrics,
		validate: validator.New(),
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var transitionErr *InvalidTransitionError
	var validationErr *ValidationError
	switch {
	case errors.Is(err, ErrRuleNotFound), errors.Is(err, ErrVersionNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrCodeExists):
		httpx.Problem(w, http.StatusConflict, "Duplicate Code", err.Error())
	case errors.Is(err, ErrVersionConflict):
		httpx.Problem(w, http.StatusConflict, "Version Conflict", err.Error())
	case errors.As(err, &transitionErr):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", err.Error())
	case errors.As(err, &validationErr):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("rule engine failure", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) ruleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Malformed Request", "invalid rule id")
		return uuid.Nil, false
	}
	return id, true
}

func actor(r *http.Request) string {
	if v := r.Header.Get("X-Actor"); v != "" {
		return v
	}
	return "system"
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule, err := h.service.CreateRule(r.Context(), CreateRuleInput{
		Code:                  req.Code,
		Name:                  req.Name,
		Description:           req.Description,
		SharedAcrossScenarios: req.SharedAcrossScenarios,
		Template:              req.Template.toDomain(),
		Conditions:            toConditions(req.Conditions),
		Actor:                 actor(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rule)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rulesList, err := h.service.ListRules(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	page := httpx.QueryInt(r, "page", 1)
	perPage := httpx.QueryInt(r, "perPage", 20)
	pagination := shared.NewPagination(page, perPage, len(rulesList))
	start := (pagination.Page - 1) * pagination.PerPage
	if start > len(rulesList) {
		start = len(rulesList)
	}
	end := start + pagination.PerPage
	if end > len(rulesList) {
		end = len(rulesList)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rules":      rulesList[start:end],
		"pagination": pagination,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.GetRule(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var req updateRuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	input := UpdateRuleInput{
		RuleID:                id,
		Name:                  req.Name,
		Description:           req.Description,
		SharedAcrossScenarios: req.SharedAcrossScenarios,
		ConcurrencyToken:      req.ConcurrencyToken,
		Actor:                 actor(r),
	}
	if req.Template != nil {
		template := req.Template.toDomain()
		input.Template = &template
	}
	if req.Conditions != nil {
		conditions := toConditions(*req.Conditions)
		input.Conditions = &conditions
	}
	rule, err := h.service.UpdateRule(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) lifecycle(op func(r *http.Request, id uuid.UUID) (AccountingRule, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.ruleID(w, r)
		if !ok {
			return
		}
		rule, err := op(r, id)
		if err != nil {
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, rule)
	}
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, id uuid.UUID) (AccountingRule, error) {
		return h.service.Activate(r.Context(), id, actor(r))
	})(w, r)
}

func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, id uuid.UUID) (AccountingRule, error) {
		return h.service.Archive(r.Context(), id, actor(r))
	})(w, r)
}

func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(func(r *http.Request, id uuid.UUID) (AccountingRule, error) {
		return h.service.Restore(r.Context(), id, actor(r))
	})(w, r)
}

func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var req rollbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule, err := h.service.RollbackToVersion(r.Context(), id, req.VersionNumber, actor(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rule)
}

func (h *Handler) Clone(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var req cloneRuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule, err := h.service.CloneRule(r.Context(), id, req.Code, req.Name, actor(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rule)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRule(r.Context(), id, actor(r)); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	versions, err := h.service.ListVersions(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var req simulateRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Simulate(r.Context(), id, req.EventData)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.ObserveSimulation(result.Fired)
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) SimulateBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var req simulateBatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	results, err := h.service.SimulateBatch(r.Context(), id, req.Events)
	if err != nil {
		h.respondError(w, err)
		return
	}
	for _, result := range results {
		h.metrics.ObserveSimulation(result.Fired)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": results})
}

func (h *Handler) GenerateScript(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	result, err := h.service.GenerateScript(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.metrics.ObserveScriptGeneration(result.OK)
	httpx.JSON(w, http.StatusOK, result)
}

// ValidateExpression checks a standalone expression against an ad-hoc
// variable schema.
func (h *Handler) ValidateExpression(w http.ResponseWriter, r *http.Request) {
	var req validateExpressionRequest
	if !h.decode(w, r, &req) {
		return
	}
	result := expression.Validate(req.Expression, toSchema(req.Variables))
	httpx.JSON(w, http.StatusOK, result)
}

// ValidateScript statically checks script text, optionally against an
// account allow-list.
func (h *Handler) ValidateScript(w http.ResponseWriter, r *http.Request) {
	var req validateScriptRequest
	if !h.decode(w, r, &req) {
		return
	}
	var result numscript.ValidationResult
	if len(req.AccountCodes) > 0 {
		result = numscript.ValidateWithAccounts(req.Script, req.AccountCodes)
	} else {
		result = numscript.Validate(req.Script)
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) AddReference(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var req referenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.refs.Register(r.Context(), id, req.ScenarioID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveReference(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	var req referenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.refs.Unregister(r.Context(), id, req.ScenarioID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListReferences(w http.ResponseWriter, r *http.Request) {
	id, ok := h.ruleID(w, r)
	if !ok {
		return
	}
	scenarios, err := h.refs.List(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scenarios": scenarios})
}
