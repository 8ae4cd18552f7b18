package accounting

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/saraya-erp/saraya-erp/internal/accounting/mappings"
	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/httpx"
)

// Handler wires journal endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

type postLineRequest struct {
	AccountID   int64           `json:"account_id"`
	AccountKey  string          `json:"account_key"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description" validate:"max=200"`
}

type postRequest struct {
	Date         string            `json:"date" validate:"required"`
	Description  string            `json:"description" validate:"required,max=500"`
	SourceModule string            `json:"source_module"`
	SourceID     string            `json:"source_id" validate:"omitempty,uuid"`
	Purpose      string            `json:"purpose" validate:"max=64"`
	Lines        []postLineRequest `json:"lines" validate:"required,min=2,dive"`
}

type reverseRequest struct {
	Reason string `json:"reason" validate:"max=500"`
	Date   string `json:"date"`
}

// MountRoutes registers HTTP routes for the journal module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/journals", h.list)
	r.Post("/journals", h.post)
	r.Get("/journals/{id}", h.get)
	r.Post("/journals/{id}/reverse", h.reverse)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	now := time.Now().UTC()
	from, err := httpx.QueryDate(r, "from", now.AddDate(0, 0, -30))
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	to, err := httpx.QueryDate(r, "to", now)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	filter := EntryFilter{HospitalID: hospitalID, From: from, To: to}
	if raw := r.URL.Query().Get("module"); raw != "" {
		if filter.SourceModule, err = ParseSourceModule(raw); err != nil {
			shared.RespondError(w, err)
			return
		}
	}
	entries, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
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
	entry, err := h.service.GetEntry(r.Context(), hospitalID, id)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
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
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input, err := req.toInput(hospitalID, actorID)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	result, err := h.service.PostEntry(r.Context(), input)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, result)
}

func (req postRequest) toInput(hospitalID, actorID int64) (PostingInput, error) {
	date, err := httpx.ParseDate(req.Date)
	if err != nil {
		return PostingInput{}, err
	}
	module := SourceManual
	if req.SourceModule != "" {
		if module, err = ParseSourceModule(req.SourceModule); err != nil {
			return PostingInput{}, err
		}
	}
	var sourceID uuid.UUID
	if req.SourceID != "" {
		if sourceID, err = uuid.Parse(req.SourceID); err != nil {
			return PostingInput{}, err
		}
	}
	input := PostingInput{
		HospitalID:   hospitalID,
		Date:         date,
		Description:  req.Description,
		SourceModule: module,
		SourceID:     sourceID,
		Purpose:      req.Purpose,
		ActorID:      actorID,
	}
	for _, l := range req.Lines {
		line := PostingLine{AccountID: l.AccountID, Debit: l.Debit, Credit: l.Credit, Description: l.Description}
		if l.AccountKey != "" {
			if line.AccountKey, err = mappings.ParseKey(l.AccountKey); err != nil {
				return PostingInput{}, err
			}
		}
		input.Lines = append(input.Lines, line)
	}
	return input, nil
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
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
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	var req reverseRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}
	in := ReverseInput{HospitalID: hospitalID, EntryID: id, ActorID: actorID, Reason: req.Reason}
	if req.Date != "" {
		date, err := httpx.ParseDate(req.Date)
		if err != nil {
			shared.RespondError(w, err)
			return
		}
		in.Date = &date
	}
	result, err := h.service.ReverseEntry(r.Context(), in)
	if err != nil {
		h.logger.Warn("reverse journal", slog.Int64("entry_id", id), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	httpx.JSON(w, status, result)
}
