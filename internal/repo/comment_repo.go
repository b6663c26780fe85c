// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Comment model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/civic-report-service/internal/domain"
)

// CreateComment inserts a comment on issueID authored by userID.
func CreateComment(ctx context.Context, db *gorm.DB, issueID, userID int64, text string) (*domain.Comment, error) {
	c := &domain.Comment{
		IssueID:   issueID,
		UserID:    userID,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}
