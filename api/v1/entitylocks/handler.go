package entitylocks

import (
	"github.com/maxidea1024/gatrix-sub004/internal/entitylock"
	"github.com/maxidea1024/gatrix-sub004/internal/httpx"

	"github.com/gin-gonic/gin"
)

// Handler exposes edit-session locks
type Handler struct {
	locks *entitylock.Service
}

// NewHandler creates a new entity locks handler
func NewHandler(locks *entitylock.Service) *Handler {
	return &Handler{locks: locks}
}

// LockRequest identifies one lockable row
type LockRequest struct {
	Environment string `json:"environment" binding:"required"`
	EntityType  string `json:"entityType" binding:"required"`
	EntityID    string `json:"entityId" binding:"required"`
	Kind        string `json:"kind"`
}

// Check handles POST /entity-locks/check
func (h *Handler) Check(c *gin.Context) {
	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}

	res, err := h.locks.Check(req.EntityType, req.EntityID, req.Environment, c.GetInt("uid"))
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, res)
}

// Acquire handles POST /entity-locks/acquire
func (h *Handler) Acquire(c *gin.Context) {
	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}

	lock, err := h.locks.Acquire(req.EntityType, req.EntityID, req.Environment, c.GetInt("uid"), req.Kind)
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, lock)
}

// Release handles POST /entity-locks/release
func (h *Handler) Release(c *gin.Context) {
	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}

	if err := h.locks.Release(req.EntityType, req.EntityID, req.Environment, c.GetInt("uid")); err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, gin.H{"released": true})
}
