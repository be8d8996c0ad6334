package scraper

// ApiResponse models the top-level structure of the upstream API's response.
type ApiResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int       `json:"page"`
		PageSize int       `json:"pageSize"`
		Total    int       `json:"total"`
		Items    []ApiItem `json:"items"`
	} `json:"data"`
}

// ApiItem represents a single device record from the upstream API. ID is matched
// against Machine.ExternalID.
type ApiItem struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	FloorCode string `json:"floorCode"`
	State     int    `json:"state"`
}

// MachineStateType defines the recognized states of a laundry machine.
type MachineStateType string

const (
	StateTypeIdle     MachineStateType = "idle"
	StateTypeOccupied MachineStateType = "occupied"
	StateTypeFaulty   MachineStateType = "faulty"
	StateTypeUnknown  MachineStateType = "unknown"
)
