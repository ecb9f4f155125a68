package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/pushmill/push-gateway/internal/model"
	xhttp "github.com/pushmill/push-gateway/pkg/http"
)

type CampaignService interface {
	Create(ctx context.Context, req model.CampaignCreateRequest) (*model.Campaign, error)
	Get(ctx context.Context, id int64) (*model.Campaign, error)
	List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, int64, error)
	Trigger(ctx context.Context, id int64, triggeredBy string) error
	Pause(ctx context.Context, id int64) error
	Resume(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
}

type CampaignHandler struct {
	svc CampaignService
}

func RegisterCampaignRoutes(e *router.Group, h *CampaignHandler) {
	e.POST("/campaigns", h.Create)
	e.GET("/campaigns", h.List)
	e.GET("/campaigns/{id}", h.Get)
	e.POST("/campaigns/{id}/trigger", h.Trigger)
	e.POST("/campaigns/{id}/pause", h.Pause)
	e.POST("/campaigns/{id}/resume", h.Resume)
	e.DELETE("/campaigns/{id}", h.Delete)
}

func NewCampaignHandler(svc CampaignService) *CampaignHandler {
	return &CampaignHandler{
		svc: svc,
	}
}

type createCampaignRequest struct {
	Name        string            `json:"name"`
	Payload     model.PushPayload `json:"payload"`
	Segments    []string          `json:"segments,omitempty"`
	ScheduledAt *string           `json:"scheduled_at,omitempty"` // RFC3339
}

type campaignListResponse struct {
	Items []*model.Campaign `json:"items"`
	Total int64             `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *CampaignHandler) Create(ctx *xhttp.RequestCtx) {
	var req createCampaignRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	p := model.CampaignCreateRequest{
		Name:     req.Name,
		Payload:  req.Payload,
		Segments: req.Segments,
	}
	if req.ScheduledAt != nil {
		t, err := time.Parse(time.RFC3339, *req.ScheduledAt)
		if err != nil {
			writeError(ctx, 400, "scheduled_at must be RFC3339")
			return
		}
		p.ScheduledAt = &t
	}

	c, err := h.svc.Create(ctx, p)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 201, c)
}

func (h *CampaignHandler) Get(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}
	c, err := h.svc.Get(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, c)
}

// Trigger enqueues the campaign for the dispatcher fleet. 202 means the job
// is queued, not that any notification has gone out yet.
func (h *CampaignHandler) Trigger(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}
	if err := h.svc.Trigger(ctx, id, model.JobTriggerAPI); err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 202, map[string]string{"status": "queued"})
}

func (h *CampaignHandler) Pause(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}
	if err := h.svc.Pause(ctx, id); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.Response.SetStatusCode(204)
}

func (h *CampaignHandler) Resume(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}
	if err := h.svc.Resume(ctx, id); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.Response.SetStatusCode(204)
}

func (h *CampaignHandler) Delete(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid campaign id")
		return
	}
	if err := h.svc.Delete(ctx, id); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.Response.SetStatusCode(204)
}

func (h *CampaignHandler) List(ctx *xhttp.RequestCtx) {
	var f model.CampaignFilter

	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, model.CampaignStatus(parts[i]))
			}
		}
	}
	if v := query(ctx, "include_deleted"); v == "1" || strings.EqualFold(v, "true") {
		f.IncludeDeleted = true
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, campaignListResponse{Items: items, Total: total})
}
