package services

import (
	"context"
	"math"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/civic-report-service/internal/domain"
	"github.com/tbourn/civic-report-service/internal/repo"
)

// SubmitInput is a citizen report as received from the transport layer.
type SubmitInput struct {
	UserID      int64
	Title       string
	Description string
	Latitude    float64
	Longitude   float64
	// Image is optional.
	Image *domain.Image
}

// SubmitResult tells the reporter which issue their report ended up on.
type SubmitResult struct {
	IssueID     int64  `json:"issue_id"`
	Message     string `json:"message"`
	IsDuplicate bool   `json:"is_duplicate"`
}

// Submit files a report. The steps run strictly in order:
//
//  1. upload the photo (placeholder URL on failure);
//  2. categorize the photo (Uncategorized on failure or without a photo);
//  3. look for an open issue of the same category inside the tolerance box;
//     on a hit, confirm it for the user and discard the new report;
//  4. otherwise assess priority (medium on failure), insert the issue and
//     notify new_report.
func (s *IssueService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	ctx, span := tracer().Start(ctx, "Submit", trace.WithAttributes(
		attribute.Int64("user.id", in.UserID),
		attribute.Float64("issue.latitude", in.Latitude),
		attribute.Float64("issue.longitude", in.Longitude),
		attribute.Bool("issue.has_image", !in.Image.Empty()),
	))
	defer span.End()

	title := normalizeText(in.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	if !validCoordinates(in.Latitude, in.Longitude) {
		return nil, ErrInvalidCoordinates
	}
	title = s.clip(title)
	description := normalizeText(in.Description)

	// The request logger already carries user_id.
	lg := zerolog.Ctx(ctx)

	var imageURL *string
	category := domain.DefaultCategory
	if !in.Image.Empty() {
		u := s.upload(ctx, lg, *in.Image)
		imageURL = &u
		category = s.categorize(ctx, lg, *in.Image)
	}
	span.SetAttributes(attribute.String("issue.category", category))

	dup, err := repo.FindDuplicate(ctx, s.DB, category, in.Latitude, in.Longitude, s.tolerance())
	if err != nil {
		return nil, err
	}
	if dup != nil {
		span.SetAttributes(attribute.Int64("issue.duplicate_of", dup.IssueID))
		created, err := s.confirmOnce(ctx, dup.IssueID, in.UserID)
		if err != nil {
			return nil, err
		}
		if !created {
			submissionsTotal.WithLabelValues(outcomeAlreadyConfirmed).Inc()
			return &SubmitResult{IssueID: dup.IssueID, Message: MsgDuplicateAlready, IsDuplicate: true}, nil
		}
		s.notify(ctx, domain.Event{UserID: in.UserID, Type: domain.EventConfirmIssue})
		submissionsTotal.WithLabelValues(outcomeConfirmed).Inc()
		lg.Info().Int64("issue_id", dup.IssueID).Str("category", category).Msg("report merged into existing issue")
		return &SubmitResult{IssueID: dup.IssueID, Message: MsgDuplicateConfirmed, IsDuplicate: true}, nil
	}

	is := &domain.Issue{
		ReporterID:  in.UserID,
		Title:       title,
		Description: description,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		ImageURL:    imageURL,
		Category:    category,
		Priority:    s.assessPriority(ctx, lg, description),
	}
	if err := repo.CreateIssue(ctx, s.DB, is); err != nil {
		return nil, err
	}

	s.notify(ctx, domain.Event{UserID: in.UserID, Type: domain.EventNewReport})
	submissionsTotal.WithLabelValues(outcomeNew).Inc()
	lg.Info().Int64("issue_id", is.IssueID).Str("category", category).Str("priority", string(is.Priority)).Msg("issue created")
	return &SubmitResult{IssueID: is.IssueID, Message: MsgProcessing, IsDuplicate: false}, nil
}

func (s *IssueService) upload(ctx context.Context, lg *zerolog.Logger, img domain.Image) string {
	placeholder := s.PlaceholderURL
	if placeholder == "" {
		placeholder = DefaultPlaceholderURL
	}
	if s.Uploader == nil {
		return placeholder
	}
	u, err := s.Uploader.Upload(ctx, img)
	if err != nil || u == "" {
		lg.Warn().Err(err).Str("collaborator", "upload").Msg("image upload failed; using placeholder")
		return placeholder
	}
	return u
}

func (s *IssueService) categorize(ctx context.Context, lg *zerolog.Logger, img domain.Image) string {
	if s.Classifier == nil {
		return domain.DefaultCategory
	}
	label, err := s.Classifier.Categorize(ctx, img)
	if err != nil {
		lg.Warn().Err(err).Str("collaborator", "ai").Msg("categorization failed; using default")
		return domain.DefaultCategory
	}
	return domain.NormalizeCategory(label)
}

func (s *IssueService) assessPriority(ctx context.Context, lg *zerolog.Logger, description string) domain.Priority {
	if s.Classifier == nil {
		return domain.DefaultPriority
	}
	label, err := s.Classifier.AssessPriority(ctx, description)
	if err != nil {
		lg.Warn().Err(err).Str("collaborator", "ai").Msg("priority assessment failed; using default")
		return domain.DefaultPriority
	}
	p, ok := domain.ParsePriority(label)
	if !ok {
		lg.Warn().Str("collaborator", "ai").Str("label", label).Msg("unknown priority label; using default")
		return domain.DefaultPriority
	}
	return p
}

func (s *IssueService) tolerance() float64 {
	if s.Tolerance > 0 {
		return s.Tolerance
	}
	return DefaultTolerance
}

// clip truncates a title to the configured maximum rune length.
func (s *IssueService) clip(title string) string {
	max := s.TitleMaxLen
	if max <= 0 {
		max = defaultTitleMaxLen
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

func validCoordinates(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
