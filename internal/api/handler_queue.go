package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetQueue handles GET /api/machines/:machine_id/queue.
func (h *Handler) GetQueue(c *gin.Context) {
	machineID, err := pathID(c, "machine_id")
	if err != nil {
		fail(h, c, err)
		return
	}
	entries, err := h.queues.ListByResource(c.Request.Context(), machineID)
	render(h, c, http.StatusOK, entries, err)
}

// GetQueues handles GET /api/queues?machine_ids=1,2.
func (h *Handler) GetQueues(c *gin.Context) {
	ids, err := idList(c.Query("machine_ids"))
	if err != nil {
		fail(h, c, err)
		return
	}
	entries, err := h.queues.List(c.Request.Context(), ids)
	render(h, c, http.StatusOK, entries, err)
}

// JoinQueue handles POST /api/machines/:machine_id/queue.
func (h *Handler) JoinQueue(c *gin.Context) {
	machineID, err := pathID(c, "machine_id")
	if err != nil {
		fail(h, c, err)
		return
	}
	userID, err := requester(c)
	if err != nil {
		fail(h, c, err)
		return
	}
	entry, err := h.queues.Enqueue(c.Request.Context(), machineID, userID)
	render(h, c, http.StatusCreated, entry, err)
}

type leaveQueueResponse struct {
	RemovedPosition int `json:"removedPosition"`
}

// LeaveQueue handles DELETE /api/machines/:machine_id/queue.
func (h *Handler) LeaveQueue(c *gin.Context) {
	machineID, err := pathID(c, "machine_id")
	if err != nil {
		fail(h, c, err)
		return
	}
	userID, err := requester(c)
	if err != nil {
		fail(h, c, err)
		return
	}
	position, err := h.queues.Cancel(c.Request.Context(), machineID, userID)
	render(h, c, http.StatusOK, leaveQueueResponse{RemovedPosition: position}, err)
}
