package changes

import (
	"github.com/maxidea1024/gatrix-sub004/internal/gateway"
	"github.com/maxidea1024/gatrix-sub004/internal/httpx"
	"github.com/maxidea1024/gatrix-sub004/internal/ops"

	"github.com/gin-gonic/gin"
)

// Handler exposes the unified change gateway
type Handler struct {
	gateway *gateway.Service
}

// NewHandler creates a new changes handler
func NewHandler(gw *gateway.Service) *Handler {
	return &Handler{gateway: gw}
}

// MutateRequest represents a write request against a managed table
type MutateRequest struct {
	Environment string                 `json:"environment" binding:"required"`
	Table       string                 `json:"table" binding:"required"`
	TargetID    string                 `json:"targetId"`
	Data        map[string]interface{} `json:"data"`
	ActionType  string                 `json:"actionType"`
	Title       string                 `json:"title"`
}

func (h *Handler) mutation(c *gin.Context, req *MutateRequest) gateway.Mutation {
	return gateway.Mutation{
		ActorID:     c.GetInt("uid"),
		Environment: req.Environment,
		Table:       req.Table,
		TargetID:    req.TargetID,
		Data:        ops.Record(req.Data),
		ActionType:  req.ActionType,
		ActionTitle: req.Title,
	}
}

// Create handles POST /changes/create
func (h *Handler) Create(c *gin.Context) {
	var req MutateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}

	res, err := h.gateway.Create(c.Request.Context(), h.mutation(c, &req))
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, res)
}

// Update handles POST /changes/update
func (h *Handler) Update(c *gin.Context) {
	var req MutateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}

	res, err := h.gateway.Update(c.Request.Context(), h.mutation(c, &req))
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, res)
}

// Modify handles POST /changes/modify
func (h *Handler) Modify(c *gin.Context) {
	var req MutateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}

	res, err := h.gateway.Modify(c.Request.Context(), h.mutation(c, &req))
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, res)
}

// Delete handles POST /changes/delete
func (h *Handler) Delete(c *gin.Context) {
	var req MutateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}

	res, err := h.gateway.Delete(c.Request.Context(), h.mutation(c, &req))
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, res)
}
