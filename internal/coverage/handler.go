package coverage

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/httpx"
)

type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type quoteRequest struct {
	PlanID            int64           `json:"plan_id" validate:"required,gt=0"`
	ServiceCategoryID *int64          `json:"service_category_id" validate:"omitempty,gt=0"`
	ServiceItemID     *int64          `json:"service_item_id" validate:"omitempty,gt=0"`
	Amount            decimal.Decimal `json:"amount"`
}

type planRequest struct {
	ProviderID       int64           `json:"provider_id" validate:"required,gt=0"`
	Name             string          `json:"name" validate:"required,max=120"`
	DefaultCopayRate decimal.Decimal `json:"default_copay_rate"`
}

type ruleRequest struct {
	ServiceCategoryID *int64          `json:"service_category_id" validate:"omitempty,gt=0"`
	ServiceItemID     *int64          `json:"service_item_id" validate:"omitempty,gt=0"`
	RuleType          string          `json:"rule_type" validate:"required,oneof=INCLUSION EXCLUSION"`
	CopayType         string          `json:"copay_type" validate:"required,oneof=PERCENTAGE FIXED_AMOUNT"`
	CopayValue        decimal.Decimal `json:"copay_value"`
	RequiresPreAuth   bool            `json:"requires_pre_auth"`
}

// MountRoutes registers coverage routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/coverage", func(r chi.Router) {
		r.Post("/quote", h.quote)
		r.Get("/plans", h.listPlans)
		r.Post("/plans", h.createPlan)
		r.Get("/plans/{id}", h.getPlan)
		r.Post("/plans/{id}/rules", h.addRule)
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) quote(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	var req quoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	share, err := h.service.Quote(r.Context(), QuoteInput{
		HospitalID:        hospitalID,
		PlanID:            req.PlanID,
		ServiceCategoryID: req.ServiceCategoryID,
		ServiceItemID:     req.ServiceItemID,
		Amount:            req.Amount,
	})
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, share)
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	plans, err := h.service.ListPlans(r.Context(), hospitalID)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func (h *Handler) getPlan(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	plan, err := h.service.GetPlan(r.Context(), hospitalID, id)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, plan)
}

func (h *Handler) createPlan(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	var req planRequest
	if !h.decode(w, r, &req) {
		return
	}
	plan, err := h.service.CreatePlan(r.Context(), Plan{
		HospitalID:       hospitalID,
		ProviderID:       req.ProviderID,
		Name:             req.Name,
		DefaultCopayRate: req.DefaultCopayRate,
	})
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, plan)
}

func (h *Handler) addRule(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	planID, err := httpx.PathInt64(r, "id")
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	var req ruleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule, err := h.service.AddRule(r.Context(), hospitalID, Rule{
		PlanID:            planID,
		ServiceCategoryID: req.ServiceCategoryID,
		ServiceItemID:     req.ServiceItemID,
		RuleType:          RuleType(req.RuleType),
		CopayType:         CopayType(req.CopayType),
		CopayValue:        req.CopayValue,
		RequiresPreAuth:   req.RequiresPreAuth,
	})
	if err != nil {
		h.logger.Warn("add coverage rule", slog.Int64("plan_id", planID), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rule)
}
