package api

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"laundry-queue-backend/config"
	"laundry-queue-backend/internal/metrics"
	"laundry-queue-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Requester(cfg.RequesterHeader), mw.AccessLog(h.logger))

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// Listings are flushed by every successful mutation, so the TTL only bounds staleness
	// from the scraper, which writes around the API.
	responses := mw.NewResponseCache(cfg.CacheTTL())
	caching := responses.Cache()

	api := r.Group("/api")
	api.Use(rateLimiter, responses.Invalidate())
	{
		api.GET("/dorms", caching, h.GetDorms)
		api.POST("/dorms", h.CreateDorm)
		api.GET("/dorms/:dorm_id/machines", caching, h.GetMachines)
		api.POST("/dorms/:dorm_id/machines", h.CreateMachine)

		api.PUT("/machines/:machine_id", h.UpdateMachine)
		api.PUT("/machines/:machine_id/status", h.SetMachineStatus)
		api.DELETE("/machines/:machine_id", h.DeleteMachine)

		api.GET("/machines/:machine_id/queue", h.GetQueue)
		api.POST("/machines/:machine_id/queue", h.JoinQueue)
		api.DELETE("/machines/:machine_id/queue", h.LeaveQueue)
		api.GET("/queues", h.GetQueues)

		api.GET("/machines/:machine_id/issues", h.GetIssues)
		api.POST("/machines/:machine_id/issues", h.CreateIssue)
		api.GET("/machines/:machine_id/issues/active", h.GetActiveIssue)
		api.POST("/issues/:issue_id/in-progress", h.MarkIssueInProgress)
		api.POST("/issues/:issue_id/resolve", h.ResolveIssue)

		api.GET("/subscriptions", h.GetSubscriptions)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
