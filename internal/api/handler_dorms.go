package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"laundry-queue-backend/internal/apperr"
	"laundry-queue-backend/internal/model"
	"laundry-queue-backend/internal/parse"
)

type createDormRequest struct {
	Name string `json:"name"`
}

// GetDorms handles GET /api/dorms.
func (h *Handler) GetDorms(c *gin.Context) {
	dorms, err := h.store.ListDorms(c.Request.Context())
	render(h, c, http.StatusOK, dorms, err)
}

// CreateDorm handles POST /api/dorms.
func (h *Handler) CreateDorm(c *gin.Context) {
	var req createDormRequest
	if err := bind(c, &req); err != nil {
		fail(h, c, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		fail(h, c, apperr.Validation("dorm name is required"))
		return
	}
	dorm, err := h.store.CreateDorm(c.Request.Context(), req.Name)
	render(h, c, http.StatusCreated, dorm, err)
}

// machineRow is one machine in a dorm listing.
type machineRow struct {
	model.Machine
	QueueLength int                `json:"queueLength"`
	ActiveIssue *model.IssueReport `json:"activeIssue"`
}

// GetMachines handles GET /api/dorms/:dorm_id/machines.
func (h *Handler) GetMachines(c *gin.Context) {
	dormID, err := pathID(c, "dorm_id")
	if err != nil {
		fail(h, c, err)
		return
	}
	rows, err := h.machineRows(c, dormID)
	render(h, c, http.StatusOK, rows, err)
}

func (h *Handler) machineRows(c *gin.Context, dormID int64) ([]machineRow, error) {
	ctx := c.Request.Context()
	if _, err := h.store.GetDorm(ctx, dormID); err != nil {
		return nil, err
	}
	machines, err := h.store.ListMachines(ctx, dormID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(machines))
	for i, m := range machines {
		ids[i] = m.ID
	}
	entries, err := h.store.ListEntries(ctx, ids)
	if err != nil {
		return nil, err
	}
	lengths := make(map[int64]int, len(machines))
	for _, e := range entries {
		lengths[e.MachineID]++
	}
	active, err := h.issues.ActiveIssues(ctx, ids)
	if err != nil {
		return nil, err
	}

	rows := make([]machineRow, len(machines))
	for i, m := range machines {
		rows[i] = machineRow{Machine: m, QueueLength: lengths[m.ID], ActiveIssue: active[m.ID]}
	}
	return rows, nil
}

type machineRequest struct {
	Name       string `json:"name"`
	Location   string `json:"location"`
	ExternalID *int64 `json:"externalId"`
	Floor      *int   `json:"floor"`
	Seq        *int   `json:"seq"`
}

// placement returns the explicit floor and sequence, or parses them from the name.
func (r machineRequest) placement() (floor, seq int) {
	parsed, err := parse.ParseName(r.Name, "")
	if err == nil {
		floor, seq = parsed.Floor, parsed.Seq
	}
	if r.Floor != nil {
		floor = *r.Floor
	}
	if r.Seq != nil {
		seq = *r.Seq
	}
	return floor, seq
}

func (r machineRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return apperr.Validation("machine name is required")
	}
	return nil
}

// CreateMachine handles POST /api/dorms/:dorm_id/machines.
func (h *Handler) CreateMachine(c *gin.Context) {
	dormID, err := pathID(c, "dorm_id")
	if err != nil {
		fail(h, c, err)
		return
	}
	var req machineRequest
	if err := bind(c, &req); err != nil {
		fail(h, c, err)
		return
	}
	if err := req.validate(); err != nil {
		fail(h, c, err)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetDorm(ctx, dormID); err != nil {
		fail(h, c, err)
		return
	}
	floor, seq := req.placement()
	machine, err := h.store.CreateMachine(ctx, model.Machine{
		DormID:     dormID,
		Name:       strings.TrimSpace(req.Name),
		Location:   strings.TrimSpace(req.Location),
		ExternalID: req.ExternalID,
		Floor:      floor,
		Seq:        seq,
	})
	render(h, c, http.StatusCreated, machine, err)
}

// UpdateMachine handles PUT /api/machines/:machine_id.
func (h *Handler) UpdateMachine(c *gin.Context) {
	machineID, err := pathID(c, "machine_id")
	if err != nil {
		fail(h, c, err)
		return
	}
	var req machineRequest
	if err := bind(c, &req); err != nil {
		fail(h, c, err)
		return
	}
	if err := req.validate(); err != nil {
		fail(h, c, err)
		return
	}
	floor, seq := req.placement()
	machine, err := h.store.UpdateMachineDetails(c.Request.Context(), machineID,
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Location), floor, seq)
	render(h, c, http.StatusOK, machine, err)
}

