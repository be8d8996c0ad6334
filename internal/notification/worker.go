package notification

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"laundry-queue-backend/internal/metrics"
	"laundry-queue-backend/internal/model"
	"laundry-queue-backend/internal/store"
)

// ErrQueueFull is returned by Notify when every worker is busy and the buffer is full.
var ErrQueueFull = errors.New("push delivery queue is full")

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool delivers turn events to the requester's push subscriptions.
type WorkerPool struct {
	size    int
	jobs    chan model.TurnEvent
	store   store.SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
	metrics *metrics.Metrics
	logger  *logrus.Logger
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.SubscriptionStore, webpushOptions *webpush.Options, m *metrics.Metrics, logger *logrus.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.TurnEvent, size*16),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		metrics: m,
		logger:  logger,
	}
}

// Start launches the worker goroutines. They stop when ctx is cancelled.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Wait blocks until every worker has returned.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log := wp.logger.WithField("worker", id)
	log.Debug("push worker started")
	for {
		select {
		case event := <-wp.jobs:
			wp.deliver(ctx, event)
		case <-ctx.Done():
			log.Debug("push worker shutting down")
			return
		}
	}
}

// Notify hands event to the pool without blocking the caller.
func (wp *WorkerPool) Notify(ctx context.Context, event model.TurnEvent) error {
	select {
	case wp.jobs <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		wp.metrics.IncPushDelivery("dropped")
		return ErrQueueFull
	}
}

// TurnMessage is the push payload announcing that a machine is ready for the requester.
func TurnMessage(event model.TurnEvent) string {
	return fmt.Sprintf("Your turn: %s is ready for you.", event.MachineName)
}

func (wp *WorkerPool) deliver(ctx context.Context, event model.TurnEvent) {
	log := wp.logger.WithFields(logrus.Fields{
		"user_id":    event.UserID,
		"machine_id": event.MachineID,
		"entry_id":   event.EntryID,
	})

	subscriptions, err := wp.store.SubscriptionsForUser(ctx, event.UserID)
	if err != nil {
		wp.metrics.IncPushDelivery("error")
		log.WithError(err).Error("could not load push subscriptions")
		return
	}
	if len(subscriptions) == 0 {
		log.Debug("requester has no push subscriptions")
		return
	}

	payload := []byte(TurnMessage(event))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, log, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, log *logrus.Entry, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}
	log = log.WithField("endpoint", sub.Endpoint)

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.metrics.IncPushDelivery("error")
		log.WithError(err).Warn("push delivery failed")
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone:
		wp.metrics.IncPushDelivery("expired")
		log.Info("push subscription expired; deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			log.WithError(err).Error("failed to delete expired subscription")
		}
	case resp.StatusCode >= 400:
		wp.metrics.IncPushDelivery("rejected")
		log.WithField("status", resp.StatusCode).Warn("push service rejected notification")
	default:
		wp.metrics.IncPushDelivery("sent")
	}
}
