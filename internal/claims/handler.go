package claims

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/billing"
	"github.com/saraya-erp/saraya-erp/internal/platform/httpx"
)

type Handler struct {
	service   *Service
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{service: service, logger: logger, validator: validator.New()}
}

type settleRequest struct {
	InvoiceIDs []int64 `json:"invoice_ids" validate:"required,min=1,dive,gt=0"`
	Status     string  `json:"status" validate:"required,oneof=SUBMITTED PAID REJECTED"`
	Date       string  `json:"date"`
}

// MountRoutes registers claim settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/claims/settle", h.settle)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	actorID, err := httpx.ActorID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	var req settleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := SettleInput{
		HospitalID: hospitalID,
		InvoiceIDs: req.InvoiceIDs,
		Status:     billing.ClaimStatus(req.Status),
		ActorID:    actorID,
	}
	if req.Date != "" {
		date, err := httpx.ParseDate(req.Date)
		if err != nil {
			shared.RespondError(w, err)
			return
		}
		in.Date = &date
	}
	result, err := h.service.SettleClaims(r.Context(), in)
	if err != nil {
		h.logger.Warn("settle claims", slog.Int64("hospital_id", hospitalID), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
