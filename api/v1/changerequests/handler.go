package changerequests

import (
	"strconv"

	"github.com/maxidea1024/gatrix-sub004/internal/changereq"
	"github.com/maxidea1024/gatrix-sub004/internal/httpx"

	"github.com/gin-gonic/gin"
)

// Handler exposes the change request lifecycle
type Handler struct {
	requests *changereq.Service
	executor *changereq.Executor
}

// NewHandler creates a new change requests handler
func NewHandler(requests *changereq.Service, executor *changereq.Executor) *Handler {
	return &Handler{requests: requests, executor: executor}
}

func requestID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid change request id"))
		return 0, false
	}
	return id, true
}

func isAdmin(c *gin.Context) bool {
	return c.GetString("role") == "admin"
}

// List handles GET /change-requests
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	requesterID, _ := strconv.Atoi(c.Query("requesterId"))

	crs, total, err := h.requests.List(changereq.ListFilter{
		Environment: c.Query("environment"),
		Status:      c.Query("status"),
		RequesterID: requesterID,
		Page:        page,
		PageSize:    pageSize,
	})
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, gin.H{
		"items": crs,
		"total": total,
	})
}

// Get handles GET /change-requests/:id
func (h *Handler) Get(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	cr, err := h.requests.GetByID(id)
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	items, err := h.requests.ListItems(id)
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	groups, err := h.requests.ListActionGroups(id)
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	approvals, err := h.requests.ListApprovals(id)
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}

	httpx.OK(c, gin.H{
		"changeRequest": cr,
		"actionGroups":  groups,
		"items":         items,
		"approvals":     approvals,
	})
}

// Submit handles POST /change-requests/:id/submit
func (h *Handler) Submit(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	cr, err := h.requests.Submit(id, c.GetInt("uid"))
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, cr)
}

// ReviewRequest carries an optional reviewer comment
type ReviewRequest struct {
	Comment string `json:"comment"`
}

// Approve handles POST /change-requests/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	var req ReviewRequest
	_ = c.ShouldBindJSON(&req)

	cr, err := h.requests.Approve(id, c.GetInt("uid"), req.Comment)
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, cr)
}

// Reject handles POST /change-requests/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
		return
	}

	cr, err := h.requests.Reject(id, c.GetInt("uid"), req.Comment)
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, cr)
}

// Reopen handles POST /change-requests/:id/reopen
func (h *Handler) Reopen(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	cr, err := h.requests.Reopen(id, c.GetInt("uid"), isAdmin(c))
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, cr)
}

// Execute handles POST /change-requests/:id/execute
func (h *Handler) Execute(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	cr, err := h.executor.Execute(c.Request.Context(), id, c.GetInt("uid"))
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, cr)
}

// Revert handles POST /change-requests/:id/revert
func (h *Handler) Revert(c *gin.Context) {
	id, ok := requestID(c)
	if !ok {
		return
	}

	cr, err := h.executor.Revert(id, c.GetInt("uid"))
	if err != nil {
		httpx.FailFrom(c, err)
		return
	}
	httpx.OK(c, cr)
}
