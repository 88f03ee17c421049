// Package models contains the database model definitions.
// These models map directly to the SQLite database tables.
package models

import (
	"time"
)

// FixtureProfile is an imported fixture description.
// Table: fixture_profiles
type FixtureProfile struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name;index"`
	Manufacturer string    `gorm:"column:manufacturer"`
	ModeCount    int       `gorm:"column:mode_count"`
	SourcePath   *string   `gorm:"column:source_path"`
	SourceHash   string    `gorm:"column:source_hash;uniqueIndex"` // SHA256 of the source document
	Document     string    `gorm:"column:document"`                // YAML fixture description
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`

	// Relations
	Patches []FixturePatch `gorm:"foreignKey:ProfileID"`
}

func (FixtureProfile) TableName() string { return "fixture_profiles" }

// FixturePatch places a profile mode at a DMX address.
// Table: fixture_patches
type FixturePatch struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Name          string    `gorm:"column:name"`
	ProfileID     string    `gorm:"column:profile_id;index"`
	Mode          string    `gorm:"column:mode"` // empty selects the first mode
	Universe      int       `gorm:"column:universe;index"`
	StartChannel  int       `gorm:"column:start_channel"`
	InvertPan     bool      `gorm:"column:invert_pan;default:false"`
	InvertTilt    bool      `gorm:"column:invert_tilt;default:false"`
	Interpolation bool      `gorm:"column:interpolation"`
	SkipThreshold *float64  `gorm:"column:skip_threshold"` // nil uses the server default
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`

	// Relations
	Profile *FixtureProfile `gorm:"foreignKey:ProfileID"`
}

func (FixturePatch) TableName() string { return "fixture_patches" }

// Setting represents a system setting.
// Table: settings
type Setting struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Key       string    `gorm:"column:key;uniqueIndex"`
	Value     string    `gorm:"column:value"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string { return "settings" }

// All returns every model, in migration order.
func All() []interface{} {
	return []interface{}{
		&FixtureProfile{},
		&FixturePatch{},
		&Setting{},
	}
}
