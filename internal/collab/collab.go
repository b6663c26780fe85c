// Package collab holds the HTTP clients for the service's external
// collaborators: object storage, the AI classifier and the user/gamification
// event service.
//
// Every call runs under its own deadline and is counted in
// collaborator_calls_total{collaborator,outcome}. Callers treat any returned
// error as "collaborator unavailable" and substitute a documented default.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrUnavailable wraps every collaborator failure: transport errors,
// timeouts, non-2xx responses and undecodable bodies.
var ErrUnavailable = errors.New("collaborator unavailable")

// maxResponseBytes caps how much of a collaborator response is read.
const maxResponseBytes = 1 << 20

// Collaborator names used as metric labels and log fields.
const (
	NameUpload   = "upload"
	NameAI       = "ai"
	NameNotifier = "notifier"
)

var callsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "collaborator_calls_total",
		Help: "Outbound collaborator calls by outcome (ok, error, timeout).",
	},
	[]string{"collaborator", "outcome"},
)

func init() {
	prometheus.MustRegister(callsTotal)
}

// NewHTTPClient returns the shared outbound client. The client timeout
// matches the per-call deadline so a stuck connection cannot outlive it.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// caller carries what every collaborator client needs to issue a call.
type caller struct {
	name    string
	http    *http.Client
	timeout time.Duration
}

func newCaller(name string, hc *http.Client, timeout time.Duration) caller {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if hc == nil {
		hc = NewHTTPClient(timeout)
	}
	return caller{name: name, http: hc, timeout: timeout}
}

// do executes build's request under the per-call deadline, requires a 2xx
// status and decodes a JSON body into out when out is non-nil.
func (c caller) do(ctx context.Context, build func(context.Context) (*http.Request, error), out any) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer func() { observe(ctx, c.name, err) }()

	req, err := build(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: build request: %v", ErrUnavailable, c.name, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, c.name, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, body)
		return fmt.Errorf("%w: %s: status %d", ErrUnavailable, c.name, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, body)
		return nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrUnavailable, c.name, err)
	}
	return nil
}

func observe(ctx context.Context, name string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	callsTotal.WithLabelValues(name, outcome).Inc()
}
