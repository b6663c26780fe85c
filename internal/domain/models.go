// Package domain defines the persistence models for civic issues, their
// comments, and community confirmations. These types are mapped with GORM and
// form the core data layer of the report management service.
package domain

import "time"

// Enrichment defaults applied when the AI collaborator is unavailable.
const (
	DefaultCategory = "Uncategorized"
	DefaultPriority = PriorityMedium
)

// Issue represents a problem reported by a citizen at a geographic point.
//
// Fields:
//   - IssueID: auto-increment primary key, assigned by the store.
//   - ReporterID: id of the user who filed the report; immutable.
//   - Title / Description: free text. Title is required, Description optional.
//   - Latitude / Longitude: report coordinates; immutable.
//   - ImageURL: public URL of the uploaded photo (or the upload placeholder).
//   - Category / Priority: enrichment labels, set once at creation.
//   - Status: lifecycle state; mutated only through a status transition.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - Comments: owned comments, ordered by comment id when preloaded.
//
// The composite index idx_issue_dup_scan serves the duplicate bounding-box
// scan (status, category, latitude, longitude).
type Issue struct {
	IssueID     int64       `json:"issue_id"              gorm:"column:issue_id;primaryKey;autoIncrement"`
	ReporterID  int64       `json:"reporter_id"           gorm:"not null;index"`
	Title       string      `json:"title"                 gorm:"type:varchar(255);not null"`
	Description string      `json:"description"           gorm:"type:text"`
	Latitude    float64     `json:"latitude"              gorm:"not null;index:idx_issue_dup_scan,priority:3"`
	Longitude   float64     `json:"longitude"             gorm:"not null;index:idx_issue_dup_scan,priority:4"`
	ImageURL    *string     `json:"image_url"             gorm:"type:varchar(1024)"`
	Category    string      `json:"category"              gorm:"type:varchar(100);not null;default:'Uncategorized';index:idx_issue_dup_scan,priority:2"`
	Priority    Priority    `json:"priority"              gorm:"type:varchar(50);not null;default:'medium'"`
	Status      IssueStatus `json:"status"                gorm:"type:varchar(50);not null;default:'open';index:idx_issue_dup_scan,priority:1"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	Comments []Comment `json:"comments" gorm:"foreignKey:IssueID;references:IssueID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	// ConfirmationCount is filled by list and detail reads; it is not a column.
	ConfirmationCount int64 `json:"confirmation_count" gorm:"-"`
}

// TableName returns the database table name for Issue.
func (Issue) TableName() string { return "issues" }

// Comment is a free-text remark left by a user on an issue. Comments are
// immutable once created.
type Comment struct {
	CommentID int64     `json:"comment_id" gorm:"column:comment_id;primaryKey;autoIncrement"`
	IssueID   int64     `json:"issue_id"   gorm:"not null;index"`
	UserID    int64     `json:"user_id"    gorm:"not null"`
	Text      string    `json:"text"       gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for Comment.
func (Comment) TableName() string { return "comments" }

// Confirmation records that a user corroborates an existing issue. A user can
// confirm a given issue at most once (enforced by ux_confirmation_issue_user).
type Confirmation struct {
	ConfirmationID int64     `json:"confirmation_id" gorm:"column:confirmation_id;primaryKey;autoIncrement"`
	IssueID        int64     `json:"issue_id"        gorm:"not null;uniqueIndex:ux_confirmation_issue_user,priority:1"`
	UserID         int64     `json:"user_id"         gorm:"not null;uniqueIndex:ux_confirmation_issue_user,priority:2"`
	CreatedAt      time.Time `json:"created_at"`

	Issue Issue `json:"-" gorm:"foreignKey:IssueID;references:IssueID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Confirmation.
func (Confirmation) TableName() string { return "confirmations" }

// IssueFilter narrows an issue listing. Empty fields are not applied; set
// fields are combined with AND.
type IssueFilter struct {
	Status   IssueStatus
	Category string
}
