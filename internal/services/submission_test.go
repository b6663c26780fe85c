package services

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tbourn/civic-report-service/internal/domain"
)

var jpeg = &domain.Image{Filename: "hole.jpg", ContentType: "image/jpeg", Data: []byte("img")}

func TestSubmit_NewIssue(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.svc.Submit(context.Background(), SubmitInput{
		UserID: 1, Title: "Big pothole", Description: "Deep hole on Main St",
		Latitude: 40.7128, Longitude: -74.0060, Image: jpeg,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.IsDuplicate || res.Message != MsgProcessing || res.IssueID == 0 {
		t.Fatalf("unexpected result: %+v", res)
	}

	is, err := fx.svc.Detail(context.Background(), res.IssueID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if is.Category != "Pothole" || is.Priority != domain.PriorityHigh || is.Status != domain.StatusOpen || is.ReporterID != 1 {
		t.Fatalf("unexpected issue: %+v", is)
	}
	if is.ImageURL == nil || *is.ImageURL != fx.up.url {
		t.Fatalf("image url = %v", is.ImageURL)
	}
	evs := fx.nt.got()
	if len(evs) != 1 || evs[0] != (domain.Event{UserID: 1, Type: domain.EventNewReport}) {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestSubmit_DuplicateConfirmsExisting(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, domain.Issue{IssueID: 100, Category: "Pothole", Latitude: 40.7130, Longitude: -74.0058, ReporterID: 50})

	res, err := fx.svc.Submit(context.Background(), SubmitInput{
		UserID: 1, Title: "Same hole", Latitude: 40.7129, Longitude: -74.0059, Image: jpeg,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.IsDuplicate || res.IssueID != 100 || res.Message != MsgDuplicateConfirmed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if n := fx.count(t, &domain.Issue{}); n != 1 {
		t.Fatalf("no new issue expected, got %d issues", n)
	}
	if n := fx.count(t, &domain.Confirmation{}); n != 1 {
		t.Fatalf("expected one confirmation, got %d", n)
	}
	if fx.ai.priorityCalls != 0 {
		t.Fatalf("priority must not be assessed for duplicates")
	}
	evs := fx.nt.got()
	if len(evs) != 1 || evs[0] != (domain.Event{UserID: 1, Type: domain.EventConfirmIssue}) {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestSubmit_DuplicateTwiceKeepsOneConfirmation(t *testing.T) {
	fx := newFixture(t)
	fx.seed(t, domain.Issue{IssueID: 100, Category: "Pothole", Latitude: 40.7130, Longitude: -74.0058})

	in := SubmitInput{UserID: 1, Title: "Same hole", Latitude: 40.7129, Longitude: -74.0059, Image: jpeg}
	if _, err := fx.svc.Submit(context.Background(), in); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	res, err := fx.svc.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if !res.IsDuplicate || res.IssueID != 100 || res.Message != MsgDuplicateAlready {
		t.Fatalf("unexpected result: %+v", res)
	}
	if n := fx.count(t, &domain.Confirmation{}); n != 1 {
		t.Fatalf("expected one confirmation, got %d", n)
	}
	if evs := fx.nt.got(); len(evs) != 1 {
		t.Fatalf("expected a single notification, got %+v", evs)
	}
}

func TestSubmit_DuplicateBox(t *testing.T) {
	cases := []struct {
		name     string
		seed     domain.Issue
		wantDup  bool
		category string
	}{
		{"inside box", domain.Issue{Category: "Pothole", Latitude: 10.0002, Longitude: 20.0002}, true, "Pothole"},
		{"on edge", domain.Issue{Category: "Pothole", Latitude: 10.0003, Longitude: 19.9997}, true, "Pothole"},
		{"outside latitude", domain.Issue{Category: "Pothole", Latitude: 10.0004, Longitude: 20.0}, false, "Pothole"},
		{"outside longitude", domain.Issue{Category: "Pothole", Latitude: 10.0, Longitude: 19.9996}, false, "Pothole"},
		{"other category", domain.Issue{Category: "Graffiti", Latitude: 10.0, Longitude: 20.0}, false, "Pothole"},
		{"not open", domain.Issue{Category: "Pothole", Status: domain.StatusInProgress, Latitude: 10.0, Longitude: 20.0}, false, "Pothole"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.ai.category = tc.category
			seeded := fx.seed(t, tc.seed)

			res, err := fx.svc.Submit(context.Background(), SubmitInput{
				UserID: 2, Title: "report", Latitude: 10.0, Longitude: 20.0, Image: jpeg,
			})
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if res.IsDuplicate != tc.wantDup {
				t.Fatalf("IsDuplicate = %v; want %v", res.IsDuplicate, tc.wantDup)
			}
			if tc.wantDup && res.IssueID != seeded.IssueID {
				t.Fatalf("matched %d; want %d", res.IssueID, seeded.IssueID)
			}
			if !tc.wantDup && res.IssueID == seeded.IssueID {
				t.Fatalf("expected a new issue")
			}
		})
	}
}

func TestSubmit_DuplicateTieBreakLowestID(t *testing.T) {
	fx := newFixture(t)
	first := fx.seed(t, domain.Issue{Category: "Pothole", Latitude: 1.0001, Longitude: 1.0})
	fx.seed(t, domain.Issue{Category: "Pothole", Latitude: 1.0, Longitude: 1.0})

	res, err := fx.svc.Submit(context.Background(), SubmitInput{UserID: 3, Title: "r", Latitude: 1.0, Longitude: 1.0, Image: jpeg})
	if err != nil || res.IssueID != first.IssueID {
		t.Fatalf("expected lowest id %d, got (%+v, %v)", first.IssueID, res, err)
	}
}

func TestSubmit_CollaboratorFailuresUseDefaults(t *testing.T) {
	fx := newFixture(t)
	fx.up.err = errors.New("bucket unreachable")
	fx.ai.categoryErr = errors.New("ai down")
	fx.ai.priorityErr = errors.New("ai down")
	fx.nt.err = errors.New("users down")

	res, err := fx.svc.Submit(context.Background(), SubmitInput{
		UserID: 1, Title: "x", Description: "y", Latitude: 1, Longitude: 1, Image: jpeg,
	})
	if err != nil {
		t.Fatalf("Submit must succeed when collaborators fail: %v", err)
	}
	if res.IsDuplicate || res.Message != MsgProcessing {
		t.Fatalf("unexpected result: %+v", res)
	}
	is, _ := fx.svc.Detail(context.Background(), res.IssueID)
	if is.ImageURL == nil || *is.ImageURL != DefaultPlaceholderURL {
		t.Fatalf("expected placeholder url, got %v", is.ImageURL)
	}
	if is.Category != domain.DefaultCategory || is.Priority != domain.PriorityMedium {
		t.Fatalf("expected defaults, got %s/%s", is.Category, is.Priority)
	}
}

func TestSubmit_LogLinesCarryUserIDOnce(t *testing.T) {
	fx := newFixture(t)
	fx.up.err = errors.New("bucket unreachable")
	fx.ai.categoryErr = errors.New("ai down")
	fx.nt.err = errors.New("users down")

	var buf bytes.Buffer
	lg := zerolog.New(&buf).With().Int64("user_id", 7).Logger()
	ctx := lg.WithContext(context.Background())

	if _, err := fx.svc.Submit(ctx, SubmitInput{UserID: 7, Title: "x", Latitude: 1, Longitude: 1, Image: jpeg}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) < 3 {
		t.Fatalf("expected warnings and the created line, got %q", buf.String())
	}
	for _, l := range lines {
		if n := strings.Count(l, `"user_id"`); n != 1 {
			t.Fatalf("user_id appears %d times in %s", n, l)
		}
	}
}

func TestSubmit_LabelNormalization(t *testing.T) {
	fx := newFixture(t)
	fx.ai.category = "   "
	fx.ai.priority = "URGENT-ish"

	res, err := fx.svc.Submit(context.Background(), SubmitInput{UserID: 1, Title: "x", Latitude: 1, Longitude: 1, Image: jpeg})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	is, _ := fx.svc.Detail(context.Background(), res.IssueID)
	if is.Category != domain.DefaultCategory || is.Priority != domain.PriorityMedium {
		t.Fatalf("expected defaults, got %s/%s", is.Category, is.Priority)
	}
}

func TestSubmit_WithoutImage(t *testing.T) {
	fx := newFixture(t)

	res, err := fx.svc.Submit(context.Background(), SubmitInput{UserID: 1, Title: "No photo", Latitude: 1, Longitude: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if fx.up.calls != 0 || fx.ai.categorizeCalls != 0 {
		t.Fatalf("upload/categorize must be skipped without an image")
	}
	is, _ := fx.svc.Detail(context.Background(), res.IssueID)
	if is.ImageURL != nil || is.Category != domain.DefaultCategory {
		t.Fatalf("unexpected issue: %+v", is)
	}
}

func TestSubmit_Validation(t *testing.T) {
	fx := newFixture(t)
	cases := []struct {
		name string
		in   SubmitInput
		want error
	}{
		{"blank title", SubmitInput{Title: "  ", Latitude: 1, Longitude: 1}, ErrEmptyTitle},
		{"latitude range", SubmitInput{Title: "t", Latitude: 91, Longitude: 1}, ErrInvalidCoordinates},
		{"longitude range", SubmitInput{Title: "t", Latitude: 1, Longitude: -181}, ErrInvalidCoordinates},
		{"nan", SubmitInput{Title: "t", Latitude: math.NaN(), Longitude: 1}, ErrInvalidCoordinates},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.svc.Submit(context.Background(), tc.in)
			if !errors.Is(err, tc.want) || !errors.Is(err, ErrValidation) {
				t.Fatalf("got %v; want %v", err, tc.want)
			}
		})
	}
	if n := fx.count(t, &domain.Issue{}); n != 0 {
		t.Fatalf("nothing should be stored, got %d", n)
	}
}

func TestSubmit_ClipsTitle(t *testing.T) {
	fx := newFixture(t)
	fx.svc.TitleMaxLen = 5

	res, err := fx.svc.Submit(context.Background(), SubmitInput{UserID: 1, Title: "abcdefgh", Latitude: 1, Longitude: 1})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	is, _ := fx.svc.Detail(context.Background(), res.IssueID)
	if is.Title != "abcde" {
		t.Fatalf("title = %q", is.Title)
	}
}

func TestSubmit_StoreErrorPropagates(t *testing.T) {
	fx := newFixture(t)
	_ = fx.db.Migrator().DropTable(&domain.Issue{})

	if _, err := fx.svc.Submit(context.Background(), SubmitInput{UserID: 1, Title: "x", Latitude: 1, Longitude: 1}); err == nil {
		t.Fatalf("expected store error")
	}
	if len(fx.nt.got()) != 0 {
		t.Fatalf("no notification on store failure")
	}
}

func TestSubmit_NilCollaborators(t *testing.T) {
	db := newSvcDB(t)
	svc := NewIssueService(db, nil, nil, nil)

	res, err := svc.Submit(context.Background(), SubmitInput{UserID: 1, Title: "x", Latitude: 1, Longitude: 1, Image: jpeg})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	is, _ := svc.Detail(context.Background(), res.IssueID)
	if is.ImageURL == nil || *is.ImageURL != DefaultPlaceholderURL || is.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected issue: %+v", is)
	}
}
