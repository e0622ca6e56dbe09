package model

import "time"

// Status is the reconciliation verdict for a PO in one cycle.
type Status string

const (
	StatusOK        Status = "OK"
	StatusOver      Status = "OVER"
	StatusCancelled Status = "CANCELLED"
)

// ScanResult is the per-PO row of the latest cycle snapshot.
type ScanResult struct {
	SubDept          int      `json:"subDept"`
	PONumber         string   `json:"poNumber"`
	TruckID          string   `json:"truckId"`
	Carrier          string   `json:"carrier"`
	PalletsIn        int64    `json:"palletsIn"`
	RestacksUpstacks Quantity `json:"restacksUpstacks"`
	Status           Status   `json:"status"`
}

// ActionType identifies a newly detected event.
type ActionType string

const (
	ActionCancelled    ActionType = "cancelled"
	ActionOverNoWallet ActionType = "over-no-wallet"
)

// Action is emitted once per newly detected event and handed to the notifier.
type Action struct {
	ID                     string     `json:"id"`
	Type                   ActionType `json:"type"`
	SubDept                int        `json:"subDept"`
	PONumber               string     `json:"poNumber"`
	TruckID                string     `json:"truckId"`
	Carrier                string     `json:"carrier"`
	PalletsIn              int64      `json:"palletsIn"`
	RestacksUpstacks       Quantity   `json:"restacksUpstacks"`
	DriverWalletCheckoutID string     `json:"driverWalletCheckoutID,omitempty"`
	Timestamp              time.Time  `json:"timestamp"`
}

// SubDeptFailure records a non-auth upstream failure that made the cycle skip
// all or part of a sub-department.
type SubDeptFailure struct {
	SubDept int    `json:"subDept"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}

// CycleResult aggregates one polling cycle across sub-departments.
type CycleResult struct {
	ID              string           `json:"id"`
	OperationalDate string           `json:"operationalDate"`
	StartedAt       time.Time        `json:"startedAt"`
	FinishedAt      time.Time        `json:"finishedAt"`
	POData          []ScanResult     `json:"poData"`
	Actions         []Action         `json:"actions"`
	Failures        []SubDeptFailure `json:"failures,omitempty"`
}

// Merge appends another partial result.
func (c *CycleResult) Merge(poData []ScanResult, actions []Action) {
	c.POData = append(c.POData, poData...)
	c.Actions = append(c.Actions, actions...)
}

// Failed reports whether any sub-department failed during the cycle.
func (c *CycleResult) Failed() bool {
	return len(c.Failures) > 0
}
