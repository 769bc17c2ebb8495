package models

import "time"

// CatalogSubject is a subject of the institution's current curriculum.
type CatalogSubject struct {
	ID            string    `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	Name          string    `db:"name" json:"name"`
	Credits       float64   `db:"credits" json:"credits"`
	ComponentType string    `db:"component_type" json:"component_type"`
	IsRequired    bool      `db:"is_required" json:"is_required"`
	IsLeveling    bool      `db:"is_leveling" json:"is_leveling"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// ExternalSubject is a subject of an origin curriculum students are transferring from.
type ExternalSubject struct {
	ID            string    `db:"id" json:"id"`
	CurriculumID  string    `db:"curriculum_id" json:"curriculum_id"`
	Code          string    `db:"code" json:"code"`
	Name          string    `db:"name" json:"name"`
	Credits       float64   `db:"credits" json:"credits"`
	ComponentType string    `db:"component_type" json:"component_type"`
	IsRequired    bool      `db:"is_required" json:"is_required"`
	IsLeveling    bool      `db:"is_leveling" json:"is_leveling"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
