package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/pushmill/push-gateway/internal/model"
	xhttp "github.com/pushmill/push-gateway/pkg/http"
)

type DeadLetterStats interface {
	Stats(ctx context.Context) (*model.FailedDeliveryStats, error)
}

type DeadLetterHandler struct {
	store DeadLetterStats
}

func RegisterDeadLetterRoutes(e *router.Group, h *DeadLetterHandler) {
	e.GET("/dead-letters/stats", h.GetStats)
}

func NewDeadLetterHandler(store DeadLetterStats) *DeadLetterHandler {
	return &DeadLetterHandler{
		store: store,
	}
}

func (h *DeadLetterHandler) GetStats(ctx *xhttp.RequestCtx) {
	stats, err := h.store.Stats(ctx)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, stats)
}
