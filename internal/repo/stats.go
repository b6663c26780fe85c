// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) on the issue listing.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/civic-report-service/internal/domain"
)

// ListStats summarizes everything an issue listing renders: the issues, the
// comments preloaded onto them and their confirmation counts. Any write that
// changes the listing changes at least one field.
type ListStats struct {
	Issues        int64
	Comments      int64
	Confirmations int64
	LastModified  *time.Time // newest issue update, comment or confirmation
}

// IssuesStats returns the ListStats of the issues matching f. When nothing
// matches, the zero value is returned.
func IssuesStats(ctx context.Context, db *gorm.DB, f domain.IssueFilter) (ListStats, error) {
	var st ListStats
	db = db.WithContext(ctx)

	if err := filtered(db.Model(&domain.Issue{}), f).Count(&st.Issues).Error; err != nil {
		return ListStats{}, err
	}
	if st.Issues == 0 {
		return st, nil
	}

	last, err := latest(filtered(db.Model(&domain.Issue{}), f), "updated_at")
	if err != nil {
		return ListStats{}, err
	}
	st.LastModified = last

	ids := func() *gorm.DB { return filtered(db.Model(&domain.Issue{}), f).Select("issue_id") }
	for _, child := range []struct {
		model any
		count *int64
	}{
		{&domain.Comment{}, &st.Comments},
		{&domain.Confirmation{}, &st.Confirmations},
	} {
		q := func() *gorm.DB { return db.Model(child.model).Where("issue_id IN (?)", ids()) }
		if err := q().Count(child.count).Error; err != nil {
			return ListStats{}, err
		}
		if *child.count == 0 {
			continue
		}
		ts, err := latest(q(), "created_at")
		if err != nil {
			return ListStats{}, err
		}
		if ts != nil && (st.LastModified == nil || ts.After(*st.LastModified)) {
			st.LastModified = ts
		}
	}
	return st, nil
}

// latest returns the greatest value of the timestamp column col in q, or nil
// for an empty result. It orders instead of using MAX(), which SQLite returns
// as TEXT.
func latest(q *gorm.DB, col string) (*time.Time, error) {
	var row struct{ T time.Time }
	res := q.Select(col + " AS t").Order(col + " DESC").Limit(1).Scan(&row)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &row.T, nil
}
