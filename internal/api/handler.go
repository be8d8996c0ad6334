package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"laundry-queue-backend/internal/apperr"
	"laundry-queue-backend/internal/availability"
	"laundry-queue-backend/internal/issue"
	"laundry-queue-backend/internal/mw"
	"laundry-queue-backend/internal/queue"
	"laundry-queue-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	queues       *queue.Manager
	issues       *issue.Tracker
	availability *availability.Coordinator
	webpush      *webpush.Options
	logger       *logrus.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	s store.Store,
	queues *queue.Manager,
	issues *issue.Tracker,
	coordinator *availability.Coordinator,
	webpushOptions *webpush.Options,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		store:        s,
		queues:       queues,
		issues:       issues,
		availability: coordinator,
		webpush:      webpushOptions,
		logger:       logger,
	}
}

// render writes the {data, error} envelope for (v, err).
func render[T any](h *Handler, c *gin.Context, success int, v T, err error) {
	res := apperr.From(v, err)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindTransientStore, apperr.KindInternal:
			h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		}
	}
	c.JSON(res.Status(success), res)
}

// fail renders err with no data.
func fail(h *Handler, c *gin.Context, err error) {
	render[struct{}](h, c, http.StatusOK, struct{}{}, err)
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

func requester(c *gin.Context) (string, error) {
	id := mw.RequesterID(c)
	if id == "" {
		return "", apperr.Validation("requester id is required")
	}
	return id, nil
}

func bind(c *gin.Context, req any) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return apperr.Validation("invalid request: %s", err.Error())
	}
	return nil
}

// idList parses "1,2,3".
func idList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, apperr.Validation("invalid machine id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, apperr.Validation("machine_ids is required")
	}
	return ids, nil
}
