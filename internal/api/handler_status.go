package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"laundry-queue-backend/internal/model"
)

type statusRequest struct {
	Status model.OperationStatus `json:"status" binding:"required"`
}

// SetMachineStatus handles PUT /api/machines/:machine_id/status.
func (h *Handler) SetMachineStatus(c *gin.Context) {
	machineID, err := pathID(c, "machine_id")
	if err != nil {
		fail(h, c, err)
		return
	}
	var req statusRequest
	if err := bind(c, &req); err != nil {
		fail(h, c, err)
		return
	}
	change, err := h.availability.SetStatus(c.Request.Context(), machineID, req.Status)
	render(h, c, http.StatusOK, change, err)
}

type deleteMachineResponse struct {
	MachineID int64 `json:"machineId"`
}

// DeleteMachine handles DELETE /api/machines/:machine_id.
func (h *Handler) DeleteMachine(c *gin.Context) {
	machineID, err := pathID(c, "machine_id")
	if err != nil {
		fail(h, c, err)
		return
	}
	err = h.availability.DeleteResource(c.Request.Context(), machineID)
	render(h, c, http.StatusOK, deleteMachineResponse{MachineID: machineID}, err)
}
