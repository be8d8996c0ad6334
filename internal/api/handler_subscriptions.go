package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"laundry-queue-backend/internal/apperr"
	"laundry-queue-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

type subscriptionResponse struct {
	Endpoint string `json:"endpoint"`
}

// GetSubscriptions lists the requester's push endpoints.
func (h *Handler) GetSubscriptions(c *gin.Context) {
	userID, err := requester(c)
	if err != nil {
		fail(h, c, err)
		return
	}
	subs, err := h.store.SubscriptionsForUser(c.Request.Context(), userID)
	endpoints := make([]subscriptionResponse, len(subs))
	for i, s := range subs {
		endpoints[i] = subscriptionResponse{Endpoint: s.Endpoint}
	}
	render(h, c, http.StatusOK, endpoints, err)
}

// PutSubscription creates or replaces a subscription owned by the requester.
func (h *Handler) PutSubscription(c *gin.Context) {
	userID, err := requester(c)
	if err != nil {
		fail(h, c, err)
		return
	}
	var req putSubscriptionRequest
	if err := bind(c, &req); err != nil {
		fail(h, c, err)
		return
	}

	err = h.store.UpsertSubscription(c.Request.Context(), model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
		UserID:   userID,
	})
	render(h, c, http.StatusCreated, subscriptionResponse{Endpoint: req.Endpoint}, err)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the requester's subscriptions.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	userID, err := requester(c)
	if err != nil {
		fail(h, c, err)
		return
	}
	var req deleteSubscriptionRequest
	if err := bind(c, &req); err != nil {
		fail(h, c, err)
		return
	}

	ctx := c.Request.Context()
	sub, err := h.store.GetSubscription(ctx, req.Endpoint)
	if err == nil && sub.UserID != userID {
		err = apperr.NotFound("subscription not found")
	}
	if err == nil {
		err = h.store.DeleteSubscription(ctx, req.Endpoint)
	}
	render(h, c, http.StatusOK, subscriptionResponse{Endpoint: req.Endpoint}, err)
}
