package cashier

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
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

type closeRequest struct {
	OperatorID int64           `json:"operator_id" validate:"required,gt=0"`
	RangeStart time.Time       `json:"range_start" validate:"required"`
	RangeEnd   time.Time       `json:"range_end" validate:"required"`
	ActualCash decimal.Decimal `json:"actual_cash"`
	Note       string          `json:"note" validate:"max=500"`
}

type paymentRequest struct {
	ID         int64           `json:"id" validate:"required,gt=0"`
	PatientID  int64           `json:"patient_id" validate:"required,gt=0"`
	InvoiceID  *int64          `json:"invoice_id" validate:"omitempty,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method" validate:"required,oneof=CASH CARD TRANSFER"`
	ReceivedAt *time.Time      `json:"received_at"`
}

// MountRoutes registers cashier routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/cashier", func(r chi.Router) {
		r.Post("/payments", h.recordPayment)
		r.Get("/shifts", h.listClosings)
		r.Get("/shifts/report", h.report)
		r.Post("/shifts/close", h.closeShift)
	})
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	operatorID, err := httpx.QueryInt64(r, "operator_id")
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	from, err := httpx.QueryTime(r, "from")
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	to, err := httpx.QueryTime(r, "to")
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	report, err := h.service.ShiftReport(r.Context(), hospitalID, operatorID, from, to)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) listClosings(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	operatorID, err := httpx.QueryInt64(r, "operator_id")
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	closings, err := h.service.ListClosings(r.Context(), hospitalID, operatorID, 50)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"closings": closings})
}

func (h *Handler) closeShift(w http.ResponseWriter, r *http.Request) {
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
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	closing, err := h.service.CloseShift(r.Context(), CloseInput{
		HospitalID: hospitalID,
		OperatorID: req.OperatorID,
		RangeStart: req.RangeStart,
		RangeEnd:   req.RangeEnd,
		ActualCash: req.ActualCash,
		Note:       req.Note,
		ActorID:    actorID,
	})
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, closing)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
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
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	p := Payment{
		ID:         req.ID,
		HospitalID: hospitalID,
		PatientID:  req.PatientID,
		InvoiceID:  req.InvoiceID,
		Amount:     req.Amount,
		Method:     Method(req.Method),
		ReceivedBy: actorID,
	}
	if req.ReceivedAt != nil {
		p.ReceivedAt = *req.ReceivedAt
	}
	result, err := h.service.RecordPayment(r.Context(), p)
	if err != nil {
		h.logger.Warn("record payment", slog.Int64("payment_id", req.ID), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, result)
}
