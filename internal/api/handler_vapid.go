package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"laundry-queue-backend/internal/apperr"
)

type vapidResponse struct {
	PublicKey string `json:"publicKey"`
}

// GetVAPIDPublicKey returns the VAPID public key to the client.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		fail(h, c, apperr.NotFound("vapid keys are not configured"))
		return
	}
	render(h, c, http.StatusOK, vapidResponse{PublicKey: h.webpush.VAPIDPublicKey}, nil)
}
