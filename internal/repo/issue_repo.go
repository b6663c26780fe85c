// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Issue model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an issue is not found, functions return ErrNotFound
//     (gorm.ErrRecordNotFound).
//   - FindDuplicate reports "no match" as (nil, nil), not as an error.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/civic-report-service/internal/domain"
)

// boxEpsilon widens the duplicate bounding box by a hair so that points
// exactly on the edge are not lost to float rounding of lat±tol.
const boxEpsilon = 1e-9

// CreateIssue inserts a new issue row. Status is forced to open; the store
// assigns IssueID and the timestamps.
func CreateIssue(ctx context.Context, db *gorm.DB, is *domain.Issue) error {
	is.IssueID = 0
	is.Status = domain.StatusOpen
	now := time.Now().UTC()
	is.CreatedAt = now
	is.UpdatedAt = now
	return db.WithContext(ctx).Create(is).Error
}

// GetIssue fetches a single issue by id without its comments.
func GetIssue(ctx context.Context, db *gorm.DB, id int64) (*domain.Issue, error) {
	var is domain.Issue
	if err := db.WithContext(ctx).Where("issue_id = ?", id).First(&is).Error; err != nil {
		return nil, err
	}
	return &is, nil
}

// GetIssueWithComments fetches an issue and preloads its comments ordered by
// comment id.
func GetIssueWithComments(ctx context.Context, db *gorm.DB, id int64) (*domain.Issue, error) {
	var is domain.Issue
	err := db.WithContext(ctx).
		Preload("Comments", orderComments).
		Where("issue_id = ?", id).
		First(&is).Error
	if err != nil {
		return nil, err
	}
	return &is, nil
}

// ListIssues returns issues matching f, ordered by issue id ascending, with
// comments preloaded. An empty filter returns every issue.
func ListIssues(ctx context.Context, db *gorm.DB, f domain.IssueFilter) ([]domain.Issue, error) {
	out := []domain.Issue{}
	err := filtered(db.WithContext(ctx), f).
		Preload("Comments", orderComments).
		Order("issue_id ASC").
		Find(&out).Error
	return out, err
}

// FindDuplicate returns the open issue with the given category whose
// coordinates fall inside the box [lat±tol] x [lon±tol]. When several match,
// the one with the smallest issue id wins. It returns (nil, nil) when nothing
// matches.
func FindDuplicate(ctx context.Context, db *gorm.DB, category string, lat, lon, tol float64) (*domain.Issue, error) {
	w := tol + boxEpsilon
	var rows []domain.Issue
	err := db.WithContext(ctx).
		Where("status = ? AND category = ?", domain.StatusOpen, category).
		Where("latitude BETWEEN ? AND ?", lat-w, lat+w).
		Where("longitude BETWEEN ? AND ?", lon-w, lon+w).
		Order("issue_id ASC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpdateIssueStatus sets the status of an issue and refreshes updated_at.
// If no rows are affected it returns ErrNotFound.
func UpdateIssueStatus(ctx context.Context, db *gorm.DB, id int64, status domain.IssueStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.Issue{}).
		Where("issue_id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// filtered applies the optional equality predicates of f.
func filtered(db *gorm.DB, f domain.IssueFilter) *gorm.DB {
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.Category != "" {
		db = db.Where("category = ?", f.Category)
	}
	return db
}

func orderComments(db *gorm.DB) *gorm.DB {
	return db.Order("comment_id ASC")
}
