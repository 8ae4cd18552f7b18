package periods

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/httpx"
)

type Handler struct {
	calendar  *Calendar
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, calendar *Calendar) *Handler {
	return &Handler{logger: logger, calendar: calendar, validator: validator.New()}
}

type createYearRequest struct {
	Code      string `json:"code" validate:"required,max=20"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

// MountRoutes registers calendar routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/years", h.listYears)
	r.Post("/years", h.createYear)
	r.Get("/years/{id}/periods", h.listPeriods)
	r.Post("/years/{id}/close", h.closeYear)
	r.Get("/periods/open", h.resolve)
	r.Post("/periods/{id}/close", h.closePeriod)
}

func (h *Handler) listYears(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	years, err := h.calendar.ListYears(r.Context(), hospitalID)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"years": years})
}

func (h *Handler) createYear(w http.ResponseWriter, r *http.Request) {
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
	var req createYearRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	start, err := httpx.ParseDate(req.StartDate)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	end, err := httpx.ParseDate(req.EndDate)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	year, periods, err := h.calendar.CreateYear(r.Context(), CreateYearInput{
		HospitalID: hospitalID,
		Code:       req.Code,
		StartDate:  start,
		EndDate:    end,
		ActorID:    actorID,
	})
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"year": year, "periods": periods})
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	yearID, err := httpx.PathInt64(r, "id")
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	periods, err := h.calendar.ListPeriods(r.Context(), hospitalID, yearID)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": periods})
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	date, err := httpx.QueryDate(r, "date", time.Now().UTC())
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	open, err := h.calendar.ResolveOpenPeriod(r.Context(), hospitalID, date)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, open)
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
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
	periodID, err := httpx.PathInt64(r, "id")
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	period, err := h.calendar.ClosePeriod(r.Context(), hospitalID, periodID, actorID)
	if err != nil {
		h.logger.Warn("close period", slog.Int64("period_id", periodID), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) closeYear(w http.ResponseWriter, r *http.Request) {
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
	yearID, err := httpx.PathInt64(r, "id")
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	year, err := h.calendar.CloseYear(r.Context(), hospitalID, yearID, actorID)
	if err != nil {
		h.logger.Warn("close year", slog.Int64("year_id", yearID), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, year)
}
