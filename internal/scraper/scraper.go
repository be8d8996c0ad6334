// Package scraper polls the vendor occupancy API and feeds machine availability.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"laundry-queue-backend/config"
	"laundry-queue-backend/internal/availability"
	"laundry-queue-backend/internal/metrics"
	"laundry-queue-backend/internal/model"
	"laundry-queue-backend/internal/parse"
	"laundry-queue-backend/internal/store"
)

// StatusSetter takes faulty machines out of service.
type StatusSetter interface {
	SetStatus(ctx context.Context, machineID int64, status model.OperationStatus) (availability.StatusChange, error)
}

// CycleResult summarises one scrape cycle.
type CycleResult struct {
	Fetched   int
	Matched   int
	Changed   int
	Escalated int
	Placed    int
}

// Service orchestrates the polling loop.
type Service struct {
	cfg     config.ScraperConfig
	store   store.MachineStore
	status  StatusSetter
	client  *http.Client
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

// NewService creates and initializes a new scraper service.
func NewService(cfg config.ScraperConfig, s store.MachineStore, status StatusSetter, m *metrics.Metrics, logger *logrus.Logger) *Service {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			logger.WithError(err).WithField("proxy", cfg.HTTPProxy).Warn("invalid proxy URL; scraper will not use a proxy")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}
	if cfg.Request.PageSize <= 0 {
		cfg.Request.PageSize = 100
	}

	return &Service{
		cfg:    cfg,
		store:  s,
		status: status,
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		metrics: m,
		logger:  logger,
	}
}

// getStateType determines the machine's state type based on the raw state code.
func (s *Service) getStateType(stateCode int) MachineStateType {
	for _, idleVal := range s.cfg.StateIdleValues {
		if stateCode == idleVal {
			return StateTypeIdle
		}
	}
	for _, occupiedVal := range s.cfg.StateOccupiedValues {
		if stateCode == occupiedVal {
			return StateTypeOccupied
		}
	}
	for _, faultyVal := range s.cfg.StateFaultyValues {
		if stateCode == faultyVal {
			return StateTypeFaulty
		}
	}
	return StateTypeUnknown
}

// Run polls until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("scraper is disabled; not starting")
		return
	}
	s.logger.WithField("interval", s.cfg.Interval).Info("starting scraper service")

	s.cycle(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scraper service shutting down")
			return
		case <-timer.C:
			s.cycle(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) cycle(ctx context.Context) {
	res, err := s.ScrapeOnce(ctx)
	s.metrics.IncFeedCycle(err)
	if err != nil {
		s.logger.WithError(err).Error("scrape cycle failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"fetched":   res.Fetched,
		"matched":   res.Matched,
		"changed":   res.Changed,
		"escalated": res.Escalated,
		"placed":    res.Placed,
	}).Info("scrape cycle finished")
}

// ScrapeOnce fetches every page and applies the occupancy it reports.
func (s *Service) ScrapeOnce(ctx context.Context) (CycleResult, error) {
	items, err := s.fetchAll(ctx)
	if err != nil {
		return CycleResult{}, err
	}
	res := CycleResult{Fetched: len(items)}
	if len(items) == 0 {
		return res, nil
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	machines, err := s.store.MachinesByExternalID(ctx, ids)
	if err != nil {
		return res, err
	}

	updates := make(map[int64]model.AvailabilityStatus)
	var faulty []model.Machine
	for _, item := range items {
		machine, ok := machines[item.ID]
		if !ok {
			continue
		}
		res.Matched++
		if s.place(ctx, machine, item) {
			res.Placed++
		}
		switch s.getStateType(item.State) {
		case StateTypeIdle:
			updates[machine.ID] = model.AvailabilityFree
		case StateTypeOccupied:
			updates[machine.ID] = model.AvailabilityOccupied
		case StateTypeFaulty:
			if machine.Operational() {
				faulty = append(faulty, machine)
			}
		default:
			s.logger.WithFields(logrus.Fields{"external_id": item.ID, "state": item.State}).Debug("unknown device state")
		}
	}

	if res.Changed, err = s.store.SetAvailability(ctx, updates); err != nil {
		return res, err
	}

	for _, machine := range faulty {
		change, err := s.status.SetStatus(ctx, machine.ID, model.OperationUnavailable)
		if err != nil {
			s.logger.WithError(err).WithField("machine_id", machine.ID).Error("could not take faulty machine out of service")
			continue
		}
		res.Escalated++
		s.logger.WithFields(logrus.Fields{
			"machine_id": machine.ID,
			"purged":     change.Purged,
		}).Warn("upstream reports machine faulty; marked unavailable")
	}
	return res, nil
}

// place fills in floor and sequence for a machine registered without a floor,
// using the upstream floor code when its own name carries none.
func (s *Service) place(ctx context.Context, machine model.Machine, item ApiItem) bool {
	if machine.Floor != 0 || item.FloorCode == "" {
		return false
	}
	log := s.logger.WithFields(logrus.Fields{"machine_id": machine.ID, "floor_code": item.FloorCode})
	parsed, err := parse.ParseName(machine.Name, item.FloorCode)
	if err != nil {
		log.WithError(err).Debug("cannot place machine from upstream floor code")
		return false
	}
	if _, err := s.store.UpdateMachineDetails(ctx, machine.ID, machine.Name, machine.Location, parsed.Floor, parsed.Seq); err != nil {
		log.WithError(err).Warn("failed to store machine placement")
		return false
	}
	log.WithField("floor", parsed.Floor).Info("machine placed from upstream floor code")
	return true
}

// fetchAll pages through the upstream API. A failure after some pages keeps what was fetched.
func (s *Service) fetchAll(ctx context.Context) ([]ApiItem, error) {
	var allItems []ApiItem
	total := 1
	pageSize := s.cfg.Request.PageSize
	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, page)
		if err != nil {
			if len(allItems) == 0 {
				return nil, err
			}
			s.logger.WithError(err).WithField("page", page).Warn("stopping pagination early")
			break
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total
		allItems = append(allItems, resp.Data.Items...)
	}
	return allItems, nil
}

// fetchPage fetches a single page of device data from the upstream API.
func (s *Service) fetchPage(ctx context.Context, page int) (*ApiResponse, error) {
	payload := make(map[string]any)
	for k, v := range s.cfg.Request.Payload {
		payload[k] = v
	}
	payload["page"] = page
	payload["pageSize"] = s.cfg.Request.PageSize

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Request.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Request.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "http request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	var apiResp ApiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal api response")
	}
	if apiResp.Code != 0 {
		return nil, errors.Errorf("API returned non-zero application code: %d", apiResp.Code)
	}
	return &apiResp, nil
}
