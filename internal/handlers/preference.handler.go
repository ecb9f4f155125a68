package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/pushmill/push-gateway/internal/model"
	xhttp "github.com/pushmill/push-gateway/pkg/http"
)

type PreferenceService interface {
	Get(ctx context.Context, subscriptionID int64) (*model.Preference, error)
	Update(ctx context.Context, subscriptionID int64, req model.PreferenceUpdateRequest) (*model.Preference, error)
}

type PreferenceHandler struct {
	svc PreferenceService
}

func RegisterPreferenceRoutes(e *router.Group, h *PreferenceHandler) {
	e.GET("/subscriptions/{id}/preferences", h.Get)
	e.PUT("/subscriptions/{id}/preferences", h.Update)
}

func NewPreferenceHandler(svc PreferenceService) *PreferenceHandler {
	return &PreferenceHandler{
		svc: svc,
	}
}

// updatePreferencesRequest is a partial update: absent fields stay untouched,
// dnd_until accepts RFC3339 and clear_dnd lifts an active do-not-disturb.
type updatePreferencesRequest struct {
	OptIn             *bool   `json:"opt_in,omitempty"`
	QuietHoursEnabled *bool   `json:"quiet_hours_enabled,omitempty"`
	QuietHoursStart   *string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd     *string `json:"quiet_hours_end,omitempty"`
	Timezone          *string `json:"timezone,omitempty"`
	MaxPerHour        *int    `json:"max_per_hour,omitempty"`
	MaxPerDay         *int    `json:"max_per_day,omitempty"`
	MaxPerWeek        *int    `json:"max_per_week,omitempty"`
	DNDUntil          *string `json:"dnd_until,omitempty"`
	ClearDND          bool    `json:"clear_dnd,omitempty"`
}

func (h *PreferenceHandler) Get(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid subscription id")
		return
	}
	pref, err := h.svc.Get(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, pref)
}

func (h *PreferenceHandler) Update(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid subscription id")
		return
	}
	var req updatePreferencesRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	p := model.PreferenceUpdateRequest{
		OptIn:             req.OptIn,
		QuietHoursEnabled: req.QuietHoursEnabled,
		QuietHoursStart:   req.QuietHoursStart,
		QuietHoursEnd:     req.QuietHoursEnd,
		Timezone:          req.Timezone,
		MaxPerHour:        req.MaxPerHour,
		MaxPerDay:         req.MaxPerDay,
		MaxPerWeek:        req.MaxPerWeek,
		ClearDND:          req.ClearDND,
	}
	if req.DNDUntil != nil {
		t, err := time.Parse(time.RFC3339, *req.DNDUntil)
		if err != nil {
			writeError(ctx, 400, "dnd_until must be RFC3339")
			return
		}
		p.DNDUntil = &t
	}

	pref, err := h.svc.Update(ctx, id, p)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, pref)
}
