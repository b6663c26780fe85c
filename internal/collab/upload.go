package collab

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/civic-report-service/internal/domain"
)

// Uploader stores report photos in an object bucket reachable over plain
// HTTP PUT (GCS XML API, S3 or MinIO with a pre-authorised endpoint).
type Uploader struct {
	c caller

	// BaseURL is the write endpoint; objects go to <BaseURL>/<Bucket>/<name>.
	BaseURL string
	// PublicBaseURL prefixes the returned read URL.
	PublicBaseURL string
	Bucket        string

	newName func() string
}

// NewUploader builds an Uploader sharing hc.
func NewUploader(hc *http.Client, timeout time.Duration, baseURL, publicBaseURL, bucket string) *Uploader {
	if publicBaseURL == "" {
		publicBaseURL = baseURL
	}
	return &Uploader{
		c:             newCaller(NameUpload, hc, timeout),
		BaseURL:       strings.TrimRight(baseURL, "/"),
		PublicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		Bucket:        bucket,
		newName:       uuid.NewString,
	}
}

// Upload writes img under a fresh random object name and returns its public
// URL.
func (u *Uploader) Upload(ctx context.Context, img domain.Image) (string, error) {
	object := u.newName() + "." + img.Ext()
	target := u.BaseURL + "/" + u.Bucket + "/" + object

	err := u.c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(img.Data))
		if err != nil {
			return nil, err
		}
		ct := img.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		req.Header.Set("Content-Type", ct)
		return req, nil
	}, nil)
	if err != nil {
		return "", err
	}
	return u.PublicBaseURL + "/" + u.Bucket + "/" + object, nil
}
