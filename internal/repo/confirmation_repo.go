// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Confirmation model.
//
// Error semantics:
//   - A second confirmation for the same (issue_id, user_id) trips the
//     ux_confirmation_issue_user unique index and is returned as ErrDuplicate,
//     which the service layer treats as "already confirmed".
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/civic-report-service/internal/domain"
)

// HasConfirmation reports whether userID has already confirmed issueID.
func HasConfirmation(ctx context.Context, db *gorm.DB, issueID, userID int64) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Confirmation{}).
		Where("issue_id = ? AND user_id = ?", issueID, userID).
		Count(&n).Error
	return n > 0, err
}

// CreateConfirmation inserts a confirmation and returns ErrDuplicate on
// unique violation.
func CreateConfirmation(ctx context.Context, db *gorm.DB, issueID, userID int64) (*domain.Confirmation, error) {
	c := &domain.Confirmation{
		IssueID:   issueID,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Issue").Create(c).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// CountConfirmations returns how many users have confirmed issueID.
func CountConfirmations(ctx context.Context, db *gorm.DB, issueID int64) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Confirmation{}).
		Where("issue_id = ?", issueID).
		Count(&n).Error
	return n, err
}

// ConfirmationCounts returns the confirmation count of each of issueIDs in one
// grouped query. Issues without confirmations are absent from the map.
func ConfirmationCounts(ctx context.Context, db *gorm.DB, issueIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(issueIDs))
	if len(issueIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		IssueID int64
		N       int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Confirmation{}).
		Select("issue_id, COUNT(*) AS n").
		Where("issue_id IN ?", issueIDs).
		Group("issue_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.IssueID] = r.N
	}
	return out, nil
}
