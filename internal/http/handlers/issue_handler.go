// Issue HTTP handlers.
//
// This file exposes the REST endpoints for civic issue reports:
//   - POST /issues                  (submit a report; multipart, 202)
//   - GET  /issues                  (list, optional status/category, ETag support)
//   - GET  /issues/{id}             (detail with comments)
//   - POST /issues/{id}/confirm     (confirm an existing report)
//   - PUT  /issues/{id}/status      (status transition, employees only)
//   - POST /issues/{id}/comments    (add a comment)
//
// Handlers are transport-thin: they parse and validate input, call the
// IssueService, and translate results into HTTP responses. Authentication and
// role gates run upstream in middleware.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/civic-report-service/internal/auth"
	"github.com/tbourn/civic-report-service/internal/domain"
	"github.com/tbourn/civic-report-service/internal/http/middleware"
	"github.com/tbourn/civic-report-service/internal/repo"
	"github.com/tbourn/civic-report-service/internal/services"
	"github.com/tbourn/civic-report-service/internal/utils"
)

//
// Service contracts (context-aware)
//

// IssueService defines the issue lifecycle operations consumed by the
// handlers. Implementations must be safe for concurrent use and honor ctx.
type IssueService interface {
	// Submit files a report or confirms a nearby duplicate.
	Submit(ctx context.Context, in services.SubmitInput) (*services.SubmitResult, error)
	// Confirm records that userID corroborates issueID.
	Confirm(ctx context.Context, issueID, userID int64) (string, error)
	// UpdateStatus transitions an issue on behalf of actor.
	UpdateStatus(ctx context.Context, issueID int64, status string, actor auth.Identity) (*domain.Issue, error)
	// AddComment appends a comment to an issue.
	AddComment(ctx context.Context, issueID, userID int64, text string) (*domain.Comment, error)
	// List returns issues matching f with their comments.
	List(ctx context.Context, f domain.IssueFilter) ([]domain.Issue, error)
	// ListVersion summarizes what List would return, for the ETag.
	ListVersion(ctx context.Context, f domain.IssueFilter) (repo.ListStats, error)
	// Detail returns one issue with comments and its confirmation count.
	Detail(ctx context.Context, issueID int64) (*domain.Issue, error)
}

// IdempotencyStore persists submission outcomes keyed by (user, key) so a
// retried POST /issues replays instead of filing again.
type IdempotencyStore interface {
	Get(ctx context.Context, userID int64, key string, now time.Time) (*domain.Idempotency, error)
	Put(ctx context.Context, userID int64, key string, res repo.IdempotentResult, ttl time.Duration) error
}

//
// Handler wiring
//

// Options carries transport limits for the issue endpoints.
type Options struct {
	// MaxImageBytes caps the size of the optional report photo.
	MaxImageBytes int64
	// IdempotencyTTL is how long a submission outcome stays replayable.
	IdempotencyTTL time.Duration
}

// Handlers groups the HTTP endpoints for issues. idem may be nil, which
// disables replay.
type Handlers struct {
	issues IssueService
	idem   IdempotencyStore
	opts   Options
}

// New constructs Handlers bound to the given service and idempotency store.
func New(issues IssueService, idem IdempotencyStore, opts Options) *Handlers {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = 10 << 20
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{issues: issues, idem: idem, opts: opts}
}

//
// DTOs
//

// SubmitIssueResponse is the 202 body of POST /issues.
type SubmitIssueResponse struct {
	IssueID     int64  `json:"issue_id" example:"100"`
	Message     string `json:"message" example:"Your report is being processed."`
	IsDuplicate bool   `json:"is_duplicate" example:"false"`
}

// ListIssuesResponse wraps the issues matching a list query.
type ListIssuesResponse struct {
	Issues []domain.Issue `json:"issues"`
}

// MessageResponse carries a human-readable outcome.
type MessageResponse struct {
	Message string `json:"message" example:"Issue confirmed."`
}

// UpdateStatusRequest is the JSON payload of PUT /issues/{id}/status.
type UpdateStatusRequest struct {
	// Status is one of open, in_progress, resolved, rejected.
	Status string `json:"status" binding:"required" example:"in_progress"`
}

// UpdateStatusResponse echoes the new status of an issue.
type UpdateStatusResponse struct {
	ID     int64              `json:"id" example:"100"`
	Status domain.IssueStatus `json:"status" example:"in_progress"`
}

// AddCommentRequest is the JSON payload of POST /issues/{id}/comments.
type AddCommentRequest struct {
	Text string `json:"text" binding:"required" example:"Still there this morning."`
}

//
// Helpers
//

// issueID parses the :id path parameter, writing a 400 when it is not a
// positive integer.
func issueID(c *gin.Context) (int64, bool) {
	id, okID := utils.ParseID(c.Param("id"))
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "issue id must be a positive integer")
	}
	return id, okID
}

// currentUser returns the authenticated user id, writing a 401 when the route
// was mounted without an auth gate.
func currentUser(c *gin.Context) (int64, bool) {
	uid, okUID := middleware.UserIDFrom(c)
	if !okUID {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
	}
	return uid, okUID
}

// readImage loads the optional "image" part. A request without it (or a
// non-multipart body) yields nil.
func readImage(c *gin.Context, maxBytes int64) (*domain.Image, int, string) {
	fh, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return nil, 0, ""
	case err != nil:
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, http.StatusRequestEntityTooLarge, "request body too large"
		}
		return nil, http.StatusBadRequest, "invalid multipart body"
	}
	if fh.Size > maxBytes {
		return nil, http.StatusRequestEntityTooLarge, fmt.Sprintf("image exceeds %d bytes", maxBytes)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, http.StatusBadRequest, "unreadable image"
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, http.StatusBadRequest, "unreadable image"
	}
	if int64(len(data)) > maxBytes {
		return nil, http.StatusRequestEntityTooLarge, fmt.Sprintf("image exceeds %d bytes", maxBytes)
	}
	if len(data) == 0 {
		return nil, 0, ""
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return &domain.Image{Filename: fh.Filename, ContentType: ct, Data: data}, 0, ""
}

// listETag derives a weak validator from the filter and the stats of the
// matching rows, their comments and confirmations.
func listETag(f domain.IssueFilter, st repo.ListStats) string {
	var ts int64
	if st.LastModified != nil {
		ts = st.LastModified.UnixNano()
	}
	return fmt.Sprintf(`W/"issues:%s:%s:%d.%d.%d:%d"`,
		f.Status, url.QueryEscape(f.Category), st.Issues, st.Comments, st.Confirmations, ts)
}

//
// Handlers
//

// SubmitIssue godoc
// @ID          submitIssue
// @Summary     Submit an issue report
// @Description Files a geolocated report with an optional photo. The photo is uploaded and
// @Description categorized; if an open issue of the same category lies within the duplicate
// @Description box, the existing issue is confirmed for the caller instead of filing a new one.
// @Description Supports safe retries via the Idempotency-Key header.
// @Tags        Issues
// @Accept      mpfd
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header    string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       title            formData  string  true  "Short title"                        example(Pothole on Main St)
// @Param       description      formData  string  false "Free-text description"
// @Param       latitude         formData  number  true  "Latitude in degrees"                example(40.7128)
// @Param       longitude        formData  number  true  "Longitude in degrees"               example(-74.0060)
// @Param       image            formData  file    false "Optional photo"
//
// @Success     202  {object}  handlers.SubmitIssueResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     413  {object}  handlers.ErrorResponse  "Image too large"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /issues [post]
func (h *Handlers) SubmitIssue(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okUID := currentUser(c)
	if !okUID {
		return
	}

	// Idempotency (replay path). The validator already saw a live record.
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.idem != nil && middleware.IsReplay(c) {
		if rec, err := h.idem.Get(ctx, uid, idemKey, time.Now().UTC()); err == nil && rec != nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, rec.Status, SubmitIssueResponse{IssueID: rec.IssueID, Message: rec.Message, IsDuplicate: rec.IsDuplicate})
			return
		}
	}

	// The image goes first so an oversized body reports 413 rather than
	// missing form fields.
	img, status, msg := readImage(c, h.opts.MaxImageBytes)
	if status != 0 {
		fail(c, status, ErrCodeBadRequest, msg)
		return
	}
	lat, okLat := utils.ParseFloat(c.PostForm("latitude"))
	lon, okLon := utils.ParseFloat(c.PostForm("longitude"))
	if !okLat || !okLon {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "latitude and longitude must be numbers")
		return
	}

	res, err := h.issues.Submit(ctx, services.SubmitInput{
		UserID:      uid,
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Latitude:    lat,
		Longitude:   lon,
		Image:       img,
	})
	if err != nil {
		fromServiceError(c, err)
		return
	}

	// Idempotency (store path), best effort.
	if idemKey != "" && h.idem != nil {
		err := h.idem.Put(ctx, uid, idemKey, repo.IdempotentResult{
			IssueID:     res.IssueID,
			IsDuplicate: res.IsDuplicate,
			Message:     res.Message,
			Status:      http.StatusAccepted,
		}, h.opts.IdempotencyTTL)
		if err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusAccepted, SubmitIssueResponse{IssueID: res.IssueID, Message: res.Message, IsDuplicate: res.IsDuplicate})
}

// ListIssues godoc
// @ID          listIssues
// @Summary     List issues
// @Description Returns issues ordered by id, optionally filtered by status and category.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Issues
// @Produce     json
//
// @Param       status         query   string  false "Filter by status"  Enums(open, in_progress, resolved, rejected)
// @Param       category       query   string  false "Filter by category"  example(Pothole)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
//
// @Success     200  {object} handlers.ListIssuesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /issues [get]
func (h *Handlers) ListIssues(c *gin.Context) {
	ctx := c.Request.Context()
	f, err := services.ParseFilter(c.Query("status"), c.Query("category"))
	if err != nil {
		fromServiceError(c, err)
		return
	}

	// ETag pre-check (best effort).
	if st, err := h.issues.ListVersion(ctx, f); err == nil {
		etag := listETag(f, st)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.issues.List(ctx, f)
	if err != nil {
		fromServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, ListIssuesResponse{Issues: items})
}

// GetIssue godoc
// @ID          getIssue
// @Summary     Get issue detail
// @Description Returns one issue with its comments and confirmation count.
// @Tags        Issues
// @Produce     json
//
// @Param       id  path  int  true  "Issue ID"  minimum(1)
//
// @Success     200  {object} domain.Issue
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /issues/{id} [get]
func (h *Handlers) GetIssue(c *gin.Context) {
	id, okID := issueID(c)
	if !okID {
		return
	}
	is, err := h.issues.Detail(c.Request.Context(), id)
	if err != nil {
		fromServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, is)
}

// ConfirmIssue godoc
// @ID          confirmIssue
// @Summary     Confirm an issue
// @Description Records that the caller has also seen this issue. Confirming twice is harmless.
// @Tags        Issues
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  int  true  "Issue ID"  minimum(1)
//
// @Success     200  {object} handlers.MessageResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /issues/{id}/confirm [post]
func (h *Handlers) ConfirmIssue(c *gin.Context) {
	id, okID := issueID(c)
	if !okID {
		return
	}
	uid, okUID := currentUser(c)
	if !okUID {
		return
	}
	msg, err := h.issues.Confirm(c.Request.Context(), id, uid)
	if err != nil {
		fromServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: msg})
}

// UpdateIssueStatus godoc
// @ID          updateIssueStatus
// @Summary     Change issue status
// @Description Transitions an issue to open, in_progress, resolved or rejected. Resolving
// @Description notifies the original reporter. Requires an employee or admin role.
// @Tags        Issues
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  int                              true  "Issue ID"  minimum(1)
// @Param       body  body  handlers.UpdateStatusRequest     true  "New status"
//
// @Success     200  {object} handlers.UpdateStatusResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     403  {object} handlers.ErrorResponse "Insufficient role"
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /issues/{id}/status [put]
func (h *Handlers) UpdateIssueStatus(c *gin.Context) {
	id, okID := issueID(c)
	if !okID {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Status) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "status required")
		return
	}
	actor, _ := middleware.IdentityFrom(c)

	is, err := h.issues.UpdateStatus(c.Request.Context(), id, req.Status, actor)
	if err != nil {
		fromServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, UpdateStatusResponse{ID: is.IssueID, Status: is.Status})
}

// AddComment godoc
// @ID          addComment
// @Summary     Comment on an issue
// @Description Appends a comment by the caller. Text is trimmed and must not be empty.
// @Tags        Comments
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  int                          true  "Issue ID"  minimum(1)
// @Param       body  body  handlers.AddCommentRequest   true  "Comment payload"
//
// @Success     201  {object} domain.Comment
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Missing or invalid token"
// @Failure     404  {object} handlers.ErrorResponse "Issue not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /issues/{id}/comments [post]
func (h *Handlers) AddComment(c *gin.Context) {
	id, okID := issueID(c)
	if !okID {
		return
	}
	uid, okUID := currentUser(c)
	if !okUID {
		return
	}
	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}

	cm, err := h.issues.AddComment(c.Request.Context(), id, uid, req.Text)
	if err != nil {
		fromServiceError(c, err)
		return
	}
	ok(c, http.StatusCreated, cm)
}
