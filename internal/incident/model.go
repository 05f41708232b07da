package incident

import "time"

type Incident struct {
	ID             string    `json:"id" db:"id"`
	IncidentNumber string    `json:"incident_number" db:"incident_number"`
	IncidentType   string    `json:"incident_type" db:"incident_type"`
	Address        string    `json:"address" db:"address"`
	OccurredAt     time.Time `json:"occurred_at" db:"occurred_at"`
	Narrative      string    `json:"narrative" db:"narrative"`
	ReportedBy     string    `json:"reported_by" db:"reported_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

type Input struct {
	IncidentNumber string    `json:"incident_number"`
	IncidentType   string    `json:"incident_type"`
	Address        string    `json:"address"`
	OccurredAt     time.Time `json:"occurred_at"`
	Narrative      string    `json:"narrative"`
}

// Range bounds List by occurred_at; nil means open.
type Range struct {
	From *time.Time
	To   *time.Time
}
