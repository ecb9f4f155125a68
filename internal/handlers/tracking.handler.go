package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/fasthttp/router"
	"github.com/pushmill/push-gateway/internal/model"
	xhttp "github.com/pushmill/push-gateway/pkg/http"
)

type TrackingService interface {
	Ingest(ctx context.Context, deliveryID int64, event string) (bool, error)
	ListDeliveries(ctx context.Context, f model.DeliveryFilter) ([]*model.Delivery, int64, error)
}

type TrackingHandler struct {
	svc TrackingService
}

func RegisterTrackingRoutes(e *router.Group, h *TrackingHandler) {
	e.POST("/events", h.IngestEvent)
	e.GET("/deliveries", h.ListDeliveries)
}

func NewTrackingHandler(svc TrackingService) *TrackingHandler {
	return &TrackingHandler{
		svc: svc,
	}
}

type ingestEventRequest struct {
	DeliveryID int64  `json:"delivery_id"`
	Event      string `json:"event"` // delivered | opened | clicked
}

type ingestEventResponse struct {
	// Recorded is false when the beacon arrived late or duplicated and the
	// delivery already sat at or past that state.
	Recorded bool `json:"recorded"`
}

type deliveryListResponse struct {
	Items []*model.Delivery `json:"items"`
	Total int64             `json:"total"`
}

func (h *TrackingHandler) IngestEvent(ctx *xhttp.RequestCtx) {
	var req ingestEventRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.DeliveryID <= 0 {
		writeError(ctx, 400, "delivery_id is required")
		return
	}

	moved, err := h.svc.Ingest(ctx, req.DeliveryID, req.Event)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, ingestEventResponse{Recorded: moved})
}

func (h *TrackingHandler) ListDeliveries(ctx *xhttp.RequestCtx) {
	var f model.DeliveryFilter

	if v := query(ctx, "campaign_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.CampaignID = &id
		}
	}
	if v := query(ctx, "subscription_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.SubscriptionID = &id
		}
	}
	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, model.DeliveryStatus(parts[i]))
			}
		}
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
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

	items, total, err := h.svc.ListDeliveries(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, deliveryListResponse{Items: items, Total: total})
}
