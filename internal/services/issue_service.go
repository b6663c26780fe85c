// Package services – IssueService
//
// IssueService owns the issue lifecycle: submission with duplicate
// detection, community confirmations, status transitions by city staff,
// comments, and read access. It persists through the repo package and
// reaches the upload, AI and notification collaborators through the small
// interfaces below.
//
// Collaborator failures never fail a request. Each failing call is logged at
// warn level on the request logger and replaced by a fixed default. Only
// store errors propagate.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/civic-report-service/internal/auth"
	"github.com/tbourn/civic-report-service/internal/domain"
	"github.com/tbourn/civic-report-service/internal/repo"
)

// Uploader stores a photo and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, img domain.Image) (string, error)
}

// Classifier labels reports. Both methods return the collaborator's raw
// label; normalization happens here.
type Classifier interface {
	Categorize(ctx context.Context, img domain.Image) (string, error)
	AssessPriority(ctx context.Context, description string) (string, error)
}

// Notifier delivers gamification events to the user service.
type Notifier interface {
	Notify(ctx context.Context, ev domain.Event) error
}

// Messages returned to the caller. They are part of the public contract.
const (
	MsgProcessing         = "Your report is being processed."
	MsgDuplicateAlready   = "You have already reported/confirmed this issue."
	MsgDuplicateConfirmed = "A similar issue was found nearby. We confirmed the existing report for you."
	MsgAlreadyConfirmed   = "You have already confirmed this issue."
	MsgConfirmed          = "Issue confirmed."
)

// Defaults used when the corresponding setting is zero.
const (
	DefaultTolerance      = 0.0003
	DefaultPlaceholderURL = "https://placehold.co/600x400?text=Upload+Failed"
	DefaultNotifyTimeout  = 5 * time.Second
	defaultTitleMaxLen    = 255
)

// IssueService coordinates persistence and collaborator calls for issues.
type IssueService struct {
	DB *gorm.DB

	Uploader   Uploader
	Classifier Classifier
	Notifier   Notifier

	// Tolerance is the half-width, in degrees, of the duplicate bounding box.
	Tolerance float64
	// PlaceholderURL is stored as image_url when the upload fails.
	PlaceholderURL string
	// NotifyTimeout bounds a notification sent after commit. It applies even
	// when the client has gone away.
	NotifyTimeout time.Duration
	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
}

// NewIssueService constructs an IssueService with default tuning.
func NewIssueService(db *gorm.DB, up Uploader, cl Classifier, n Notifier) *IssueService {
	return &IssueService{
		DB:             db,
		Uploader:       up,
		Classifier:     cl,
		Notifier:       n,
		Tolerance:      DefaultTolerance,
		PlaceholderURL: DefaultPlaceholderURL,
		NotifyTimeout:  DefaultNotifyTimeout,
		TitleMaxLen:    defaultTitleMaxLen,
	}
}

func tracer() trace.Tracer { return otel.Tracer("services/IssueService") }

// Confirm records that userID corroborates issueID. A second confirmation by
// the same user is reported, not stored.
func (s *IssueService) Confirm(ctx context.Context, issueID, userID int64) (string, error) {
	ctx, span := tracer().Start(ctx, "Confirm", trace.WithAttributes(
		attribute.Int64("issue.id", issueID),
		attribute.Int64("user.id", userID),
	))
	defer span.End()

	if _, err := repo.GetIssue(ctx, s.DB, issueID); err != nil {
		return "", mapNotFound(err)
	}

	created, err := s.confirmOnce(ctx, issueID, userID)
	if err != nil {
		return "", err
	}
	if !created {
		return MsgAlreadyConfirmed, nil
	}
	s.notify(ctx, domain.Event{UserID: userID, Type: domain.EventConfirmIssue})
	return MsgConfirmed, nil
}

// confirmOnce inserts a confirmation unless one exists. It reports whether a
// new row was written. A unique violation from a concurrent insert counts as
// "already exists".
func (s *IssueService) confirmOnce(ctx context.Context, issueID, userID int64) (bool, error) {
	has, err := repo.HasConfirmation(ctx, s.DB, issueID, userID)
	if err != nil {
		return false, err
	}
	if has {
		return false, nil
	}
	if _, err := repo.CreateConfirmation(ctx, s.DB, issueID, userID); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpdateStatus moves an issue to status on behalf of actor. Only elevated
// roles may do so. Moving to resolved notifies the original reporter.
func (s *IssueService) UpdateStatus(ctx context.Context, issueID int64, status string, actor auth.Identity) (*domain.Issue, error) {
	ctx, span := tracer().Start(ctx, "UpdateStatus", trace.WithAttributes(
		attribute.Int64("issue.id", issueID),
		attribute.String("issue.status", status),
		attribute.Int64("user.id", actor.UserID),
	))
	defer span.End()

	if !actor.HasEmployeeRole() {
		return nil, ErrForbidden
	}
	st, err := domain.ParseIssueStatus(status)
	if err != nil {
		return nil, ErrInvalidStatus
	}

	is, err := repo.GetIssue(ctx, s.DB, issueID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if err := repo.UpdateIssueStatus(ctx, s.DB, issueID, st); err != nil {
		return nil, mapNotFound(err)
	}
	is.Status = st
	is.UpdatedAt = time.Now().UTC()

	if st == domain.StatusResolved {
		s.notify(ctx, domain.Event{UserID: is.ReporterID, Type: domain.EventReportResolved})
	}
	return is, nil
}

// AddComment attaches text to an issue. Text is trimmed and NFC-normalized.
func (s *IssueService) AddComment(ctx context.Context, issueID, userID int64, text string) (*domain.Comment, error) {
	ctx, span := tracer().Start(ctx, "AddComment", trace.WithAttributes(
		attribute.Int64("issue.id", issueID),
		attribute.Int64("user.id", userID),
	))
	defer span.End()

	text = normalizeText(text)
	if text == "" {
		return nil, ErrEmptyComment
	}
	if _, err := repo.GetIssue(ctx, s.DB, issueID); err != nil {
		return nil, mapNotFound(err)
	}
	return repo.CreateComment(ctx, s.DB, issueID, userID, text)
}

// ParseFilter validates list query parameters. An empty status means "any".
func ParseFilter(status, category string) (domain.IssueFilter, error) {
	f := domain.IssueFilter{Category: strings.TrimSpace(category)}
	if strings.TrimSpace(status) != "" {
		st, err := domain.ParseIssueStatus(status)
		if err != nil {
			return domain.IssueFilter{}, ErrInvalidStatus
		}
		f.Status = st
	}
	return f, nil
}

// List returns issues matching f with their comments, ordered by id.
func (s *IssueService) List(ctx context.Context, f domain.IssueFilter) ([]domain.Issue, error) {
	ctx, span := tracer().Start(ctx, "List", trace.WithAttributes(
		attribute.String("filter.status", string(f.Status)),
		attribute.String("filter.category", f.Category),
	))
	defer span.End()

	issues, err := repo.ListIssues(ctx, s.DB, f)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(issues))
	for i := range issues {
		ids[i] = issues[i].IssueID
	}
	counts, err := repo.ConfirmationCounts(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	for i := range issues {
		issues[i].ConfirmationCount = counts[issues[i].IssueID]
	}
	return issues, nil
}

// ListVersion summarizes the result set described by f, comments and
// confirmations included. It backs the list ETag.
func (s *IssueService) ListVersion(ctx context.Context, f domain.IssueFilter) (repo.ListStats, error) {
	return repo.IssuesStats(ctx, s.DB, f)
}

// Detail returns one issue with its comments and confirmation count.
func (s *IssueService) Detail(ctx context.Context, issueID int64) (*domain.Issue, error) {
	ctx, span := tracer().Start(ctx, "Detail", trace.WithAttributes(
		attribute.Int64("issue.id", issueID),
	))
	defer span.End()

	is, err := repo.GetIssueWithComments(ctx, s.DB, issueID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	n, err := repo.CountConfirmations(ctx, s.DB, issueID)
	if err != nil {
		return nil, err
	}
	is.ConfirmationCount = n
	return is, nil
}

// notify sends ev after the triggering write has committed. The call is
// detached from client cancellation and bounded by NotifyTimeout; failures
// are logged and dropped.
func (s *IssueService) notify(ctx context.Context, ev domain.Event) {
	lg := zerolog.Ctx(ctx)
	if s.Notifier == nil {
		notificationsTotal.WithLabelValues(string(ev.Type), "skipped").Inc()
		return
	}
	timeout := s.NotifyTimeout
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.Notifier.Notify(nctx, ev); err != nil {
		notificationsTotal.WithLabelValues(string(ev.Type), "failed").Inc()
		lg.Warn().Err(err).
			Str("collaborator", "notifier").
			Str("event_type", string(ev.Type)).
			Msg("notification failed")
		return
	}
	notificationsTotal.WithLabelValues(string(ev.Type), "sent").Inc()
}

// mapNotFound converts the store's not-found error into ErrIssueNotFound.
func mapNotFound(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrIssueNotFound
	}
	return err
}

// normalizeText trims surrounding whitespace and applies Unicode NFC.
func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
