package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/tbourn/civic-report-service/internal/domain"
)

// Notifier posts gamification events to the user service. The response body
// is ignored; only the status is checked.
type Notifier struct {
	c       caller
	BaseURL string
}

// NewNotifier builds a Notifier sharing hc.
func NewNotifier(hc *http.Client, timeout time.Duration, baseURL string) *Notifier {
	return &Notifier{c: newCaller(NameNotifier, hc, timeout), BaseURL: strings.TrimRight(baseURL, "/")}
}

// Notify sends ev to POST <base>/internal/events.
func (n *Notifier) Notify(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.BaseURL+"/internal/events", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, nil)
}
