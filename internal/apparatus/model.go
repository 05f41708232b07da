package apparatus

import "time"

type Status string

const (
	StatusInService    Status = "in_service"
	StatusOutOfService Status = "out_of_service"
	StatusMaintenance  Status = "maintenance"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInService, StatusOutOfService, StatusMaintenance:
		return true
	}
	return false
}

type Apparatus struct {
	ID              string     `json:"id" db:"id"`
	UnitNumber      string     `json:"unit_number" db:"unit_number"`
	Kind            string     `json:"kind" db:"kind"`
	Status          Status     `json:"status" db:"status"`
	LastInspectedOn *time.Time `json:"last_inspected_on" db:"last_inspected_on"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

type CreateInput struct {
	UnitNumber string `json:"unit_number"`
	Kind       string `json:"kind"`
	Status     Status `json:"status"`
}

type StatusInput struct {
	Status Status `json:"status"`

	// LastInspectedOn is a calendar date, YYYY-MM-DD.
	LastInspectedOn *string `json:"last_inspected_on"`
}
