package mappings

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/saraya-erp/saraya-erp/internal/accounting/shared"
	"github.com/saraya-erp/saraya-erp/internal/platform/httpx"
)

type Handler struct {
	registry  *Registry
	logger    *slog.Logger
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, registry *Registry) *Handler {
	return &Handler{logger: logger, registry: registry, validator: validator.New()}
}

type assignRequest struct {
	AccountID int64 `json:"account_id" validate:"required,gt=0"`
}

// MountRoutes registers system account registry routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/system-accounts", h.list)
	r.Get("/system-accounts/verify", h.verify)
	r.Put("/system-accounts/{key}", h.assign)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	items, err := h.registry.List(r.Context(), hospitalID)
	if err != nil {
		h.logger.Error("list system accounts", slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"mappings": items})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	hospitalID, err := httpx.HospitalID(r)
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	var missing []string
	for _, key := range AllKeys() {
		if _, err := h.registry.Resolve(r.Context(), hospitalID, key); err != nil {
			if !shared.IsConfigurationError(err) {
				shared.RespondError(w, err)
				return
			}
			missing = append(missing, err.Error())
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ready": len(missing) == 0, "problems": missing})
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
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
	key, err := ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		shared.RespondError(w, err)
		return
	}
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	m, err := h.registry.Assign(r.Context(), hospitalID, key, req.AccountID, actorID)
	if err != nil {
		h.logger.Warn("assign system account", slog.String("key", string(key)), slog.Any("error", err))
		shared.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}
