// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents the recorded outcome of a previously processed issue
// submission, keyed by (user_id, key). It lets clients retry a submission
// without filing a second report or a second confirmation.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID      int64     `gorm:"not null;uniqueIndex:ux_user_key,priority:1"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_key,priority:2"`
	IssueID     int64     `gorm:"not null"`
	IsDuplicate bool      `gorm:"not null"`
	Message     string    `gorm:"type:TEXT NOT NULL"`
	Status      int       `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
