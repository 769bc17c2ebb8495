package models

import "time"

// Curriculum is an origin study plan whose subjects are mapped onto the catalog.
type Curriculum struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Institution string    `db:"institution" json:"institution"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
