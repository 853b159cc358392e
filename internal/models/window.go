package models

import "time"

type Window struct {
	ID        int64     `json:"id"`
	ServiceID *int64    `json:"service_id,omitempty"`
	DeviceID  *string   `json:"device_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
