package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/pushmill/push-gateway/internal/model"
	"github.com/pushmill/push-gateway/internal/services"
	"github.com/pushmill/push-gateway/internal/transport"
	xhttp "github.com/pushmill/push-gateway/pkg/http"
)

type SubscriptionService interface {
	Register(ctx context.Context, req model.SubscriptionCreateRequest) (*model.Subscription, error)
	Unregister(ctx context.Context, id int64) error
	RotateEndpoint(ctx context.Context, id int64, endpoint, p256dh, auth string) (*model.Subscription, error)
	Get(ctx context.Context, id int64) (*model.Subscription, error)
	List(ctx context.Context, f model.SubscriptionFilter) ([]*model.Subscription, int64, error)
	AuditEndpoints(ctx context.Context, f model.SubscriptionFilter) (int, []transport.ValidationIssue, error)
}

type SubscriptionHandler struct {
	svc SubscriptionService
}

func RegisterSubscriptionRoutes(e *router.Group, h *SubscriptionHandler) {
	e.POST("/subscriptions", h.Register)
	e.GET("/subscriptions", h.List)
	e.POST("/subscriptions/audit", h.Audit)
	e.GET("/subscriptions/{id}", h.Get)
	e.DELETE("/subscriptions/{id}", h.Unregister)
	e.PUT("/subscriptions/{id}/endpoint", h.RotateEndpoint)
}

func NewSubscriptionHandler(svc SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		svc: svc,
	}
}

// subscriptionKeys mirrors the keys object of a browser PushSubscription.
type subscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

type registerSubscriptionRequest struct {
	Endpoint string            `json:"endpoint"`
	Keys     subscriptionKeys  `json:"keys"`
	Platform string            `json:"platform,omitempty"`
	Segments []string          `json:"segments,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type rotateEndpointRequest struct {
	Endpoint string           `json:"endpoint"`
	Keys     subscriptionKeys `json:"keys"`
}

type subscriptionListResponse struct {
	Items []*model.Subscription `json:"items"`
	Total int64                 `json:"total"`
}

type subscriptionAuditResponse struct {
	Checked int                         `json:"checked"`
	Issues  []transport.ValidationIssue `json:"issues"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *SubscriptionHandler) Register(ctx *xhttp.RequestCtx) {
	var req registerSubscriptionRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	p := model.SubscriptionCreateRequest{
		Endpoint:  req.Endpoint,
		P256dhKey: req.Keys.P256dh,
		AuthKey:   req.Keys.Auth,
		UserAgent: string(ctx.Request.Header.UserAgent()),
		Platform:  req.Platform,
		Segments:  req.Segments,
		Metadata:  req.Metadata,
	}
	sub, err := h.svc.Register(ctx, p)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 201, sub)
}

func (h *SubscriptionHandler) Get(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid subscription id")
		return
	}
	sub, err := h.svc.Get(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, sub)
}

func (h *SubscriptionHandler) Unregister(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid subscription id")
		return
	}
	if err := h.svc.Unregister(ctx, id); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.Response.SetStatusCode(204)
}

func (h *SubscriptionHandler) RotateEndpoint(ctx *xhttp.RequestCtx) {
	id, err := pathInt64(ctx, "id")
	if err != nil {
		writeError(ctx, 400, "invalid subscription id")
		return
	}
	var req rotateEndpointRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	sub, err := h.svc.RotateEndpoint(ctx, id, req.Endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, 200, sub)
}

func (h *SubscriptionHandler) List(ctx *xhttp.RequestCtx) {
	items, total, err := h.svc.List(ctx, subscriptionFilterFromQuery(ctx))
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, subscriptionListResponse{Items: items, Total: total})
}

// Audit structurally validates stored subscriptions, filtered like List, and
// reports the rows whose endpoint or keys could never take a push.
func (h *SubscriptionHandler) Audit(ctx *xhttp.RequestCtx) {
	checked, issues, err := h.svc.AuditEndpoints(ctx, subscriptionFilterFromQuery(ctx))
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, subscriptionAuditResponse{Checked: checked, Issues: issues})
}

func subscriptionFilterFromQuery(ctx *xhttp.RequestCtx) model.SubscriptionFilter {
	var f model.SubscriptionFilter

	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, model.SubscriptionStatus(parts[i]))
			}
		}
	}
	if v := query(ctx, "endpoint"); v != "" {
		f.Endpoint = &v
	}
	if v := query(ctx, "segment"); v != "" {
		f.Segment = &v
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

	return f
}

// writeServiceError maps the service sentinels onto HTTP statuses; anything
// unmatched is treated as a bad request.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, services.ErrSubscriptionNotFound),
		errors.Is(err, services.ErrCampaignNotFound),
		errors.Is(err, services.ErrDeliveryNotFound):
		writeError(ctx, 404, err.Error())
	case errors.Is(err, services.ErrCampaignDeleted),
		errors.Is(err, services.ErrCampaignPaused),
		errors.Is(err, services.ErrCampaignFinished),
		errors.Is(err, services.ErrCampaignInFlight):
		writeError(ctx, 409, err.Error())
	default:
		writeError(ctx, 400, err.Error())
	}
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, ok := ctx.UserValue(name).(string)
	if !ok {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(v, 10, 64)
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
