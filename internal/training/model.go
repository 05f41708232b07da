package training

import "time"

type Event struct {
	ID              string    `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	Topic           string    `json:"topic" db:"topic"`
	Instructor      string    `json:"instructor" db:"instructor"`
	StartsAt        time.Time `json:"starts_at" db:"starts_at"`
	DurationMinutes int       `json:"duration_minutes" db:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

type Input struct {
	Title           string    `json:"title"`
	Topic           string    `json:"topic"`
	Instructor      string    `json:"instructor"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
}
