package personnel

import "time"

type Department struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type CreateInput struct {
	Badge      string  `json:"badge"`
	Name       string  `json:"name"`
	Department *string `json:"department"`
	Rank       string  `json:"rank"`
	Admin      bool    `json:"admin"`
	PIN        string  `json:"pin"`
}

type UpdateInput struct {
	Name       string  `json:"name"`
	Department *string `json:"department"`
	Rank       string  `json:"rank"`

	// Admin and Active are left unchanged when omitted.
	Admin  *bool `json:"admin"`
	Active *bool `json:"active"`
}
