package reports

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/httpx"
)

const requestTimeout = 5 * time.Second

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	now     func() time.Time
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, now: time.Now}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{id}/ledger", h.ledger)
	r.Get("/aging", h.aging)
	r.Get("/trial-balance", h.trialBalance)
}

// window reads from/to, defaulting to month-to-date.
func (h *Handler) window(r *http.Request) (time.Time, time.Time, error) {
	today := h.now().UTC()
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	from, err := httpx.QueryDate(r, "from", monthStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := httpx.QueryDate(r, "to", time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	accountID, err := httpx.PathInt64(r, "id")
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	from, to, err := h.window(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	ledger, err := h.service.GetLedger(ctx, LedgerFilter{HospitalID: hospitalID, AccountID: accountID, From: from, To: to})
	if err != nil {
		h.fail(w, "ledger", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	kind, err := ParseAgingKind(r.URL.Query().Get("kind"))
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	today := h.now().UTC()
	asOf, err := httpx.QueryDate(r, "as_of", time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC))
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	report, err := h.service.GetAging(ctx, AgingFilter{HospitalID: hospitalID, Kind: kind, AsOf: asOf})
	if err != nil {
		h.fail(w, "aging", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	from, to, err := h.window(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	tb, err := h.service.GetTrialBalance(ctx, TrialBalanceFilter{HospitalID: hospitalID, From: from, To: to})
	if err != nil {
		h.fail(w, "trial balance", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if _, known := shared.Describe(err); !known {
		h.logger.Error("report failed", slog.String("report", op), slog.Any("error", err))
	}
	shared.RespondError(w, err)
}
