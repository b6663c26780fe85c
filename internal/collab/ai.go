package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/tbourn/civic-report-service/internal/domain"
)

// AIClient talks to the AI service's internal classification endpoints.
type AIClient struct {
	c       caller
	BaseURL string
}

// NewAIClient builds an AIClient sharing hc.
func NewAIClient(hc *http.Client, timeout time.Duration, baseURL string) *AIClient {
	return &AIClient{c: newCaller(NameAI, hc, timeout), BaseURL: strings.TrimRight(baseURL, "/")}
}

type categorizeResponse struct {
	Category string `json:"category"`
}

type priorityRequest struct {
	Description string `json:"description"`
}

type priorityResponse struct {
	Priority string `json:"priority"`
}

// Categorize uploads the photo as multipart field "file" and returns the
// raw category label.
func (a *AIClient) Categorize(ctx context.Context, img domain.Image) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	name := img.Filename
	if name == "" {
		name = "upload." + img.Ext()
	}
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+escapeQuotes(name)+`"`)
	ct := img.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(img.Data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var out categorizeResponse
	err = a.c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/internal/ai/categorize", bytes.NewReader(body.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Category, nil
}

// AssessPriority sends the description as JSON and returns the raw priority
// label.
func (a *AIClient) AssessPriority(ctx context.Context, description string) (string, error) {
	payload, err := json.Marshal(priorityRequest{Description: description})
	if err != nil {
		return "", err
	}

	var out priorityResponse
	err = a.c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/internal/ai/assess-priority", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Priority, nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
