package attendance

import "time"

type EventKind string

const (
	KindIncident EventKind = "incident"
	KindTraining EventKind = "training"
)

// eventTables maps each kind to the table holding its events.
var eventTables = map[EventKind]string{
	KindIncident: "incidents",
	KindTraining: "training_events",
}

func (k EventKind) Valid() bool {
	_, ok := eventTables[k]
	return ok
}

type Record struct {
	ID          string    `json:"id" db:"id"`
	PersonnelID string    `json:"personnel_id" db:"personnel_id"`
	EventKind   EventKind `json:"event_kind" db:"event_kind"`
	EventID     string    `json:"event_id" db:"event_id"`
	Role        string    `json:"role" db:"role"`
	RecordedAt  time.Time `json:"recorded_at" db:"recorded_at"`
}

type Input struct {
	PersonnelID string    `json:"personnel_id"`
	EventKind   EventKind `json:"event_kind"`
	EventID     string    `json:"event_id"`
	Role        string    `json:"role"`
}

// Filter selects attendance either for one member or for one event.
type Filter struct {
	PersonnelID string
	EventKind   EventKind
	EventID     string
}
