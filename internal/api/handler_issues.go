package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"laundry-queue-backend/internal/issue"
	"laundry-queue-backend/internal/model"
)

type createIssueRequest struct {
	IssueType   string  `json:"issueType"`
	Description string  `json:"description"`
	DisplayID   *string `json:"displayId"`
}

type activeIssueResponse struct {
	Issue *model.IssueReport `json:"issue"`
}

// GetIssues handles GET /api/machines/:machine_id/issues.
func (h *Handler) GetIssues(c *gin.Context) {
	machineID, err := pathID(c, "machine_id")
	if err != nil {
		fail(h, c, err)
		return
	}
	issues, err := h.issues.List(c.Request.Context(), []int64{machineID})
	render(h, c, http.StatusOK, issues, err)
}

// GetActiveIssue handles GET /api/machines/:machine_id/issues/active.
func (h *Handler) GetActiveIssue(c *gin.Context) {
	machineID, err := pathID(c, "machine_id")
	if err != nil {
		fail(h, c, err)
		return
	}
	active, err := h.issues.ActiveIssueForResource(c.Request.Context(), machineID)
	render(h, c, http.StatusOK, activeIssueResponse{Issue: active}, err)
}

// CreateIssue handles POST /api/machines/:machine_id/issues.
func (h *Handler) CreateIssue(c *gin.Context) {
	machineID, err := pathID(c, "machine_id")
	if err != nil {
		fail(h, c, err)
		return
	}
	reporter, err := requester(c)
	if err != nil {
		fail(h, c, err)
		return
	}
	var req createIssueRequest
	if err := bind(c, &req); err != nil {
		fail(h, c, err)
		return
	}
	report, err := h.issues.Create(c.Request.Context(), issue.NewReport{
		MachineID:   machineID,
		ReporterID:  reporter,
		IssueType:   req.IssueType,
		Description: req.Description,
		DisplayID:   req.DisplayID,
	})
	render(h, c, http.StatusCreated, report, err)
}

// MarkIssueInProgress handles POST /api/issues/:issue_id/in-progress.
func (h *Handler) MarkIssueInProgress(c *gin.Context) {
	report, err := h.issues.MarkInProgress(c.Request.Context(), c.Param("issue_id"))
	render(h, c, http.StatusOK, report, err)
}

// ResolveIssue handles POST /api/issues/:issue_id/resolve.
func (h *Handler) ResolveIssue(c *gin.Context) {
	report, err := h.issues.Resolve(c.Request.Context(), c.Param("issue_id"))
	render(h, c, http.StatusOK, report, err)
}
