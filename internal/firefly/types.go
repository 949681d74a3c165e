// Package firefly talks to a Firefly III instance: a thin bearer-token JSON
// client plus the sync engine that idempotently replays ImportData into it.
package firefly

import (
	"encoding/json"
	"time"
)

// Object is one remote entity: the remote id plus its attribute map. The
// attribute map is kept raw since the sync engine only diffs a handful of
// fields per class.
type Object struct {
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
}

type listResponse struct {
	Data []Object `json:"data"`
	Meta struct {
		Pagination struct {
			CurrentPage int `json:"current_page"`
			TotalPages  int `json:"total_pages"`
		} `json:"pagination"`
	} `json:"meta"`
}

type objectResponse struct {
	Data Object `json:"data"`
}

// Date is a calendar date in API payloads. The API accepts and returns plain
// YYYY-MM-DD for date fields even though it echoes full timestamps elsewhere.
type Date time.Time

// NewDate truncates a time to its calendar date.
func NewDate(t time.Time) Date { return Date(t) }

// MarshalJSON renders the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(d).Format("2006-01-02"))
}

// String returns the date in API form.
func (d Date) String() string { return time.Time(d).Format("2006-01-02") }
