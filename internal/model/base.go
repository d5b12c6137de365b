package model

import "time"

// Timestamps contains the bookkeeping columns shared by mutable rows.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
