package services

import "github.com/prometheus/client_golang/prometheus"

// Submission outcomes.
const (
	outcomeNew              = "new"
	outcomeConfirmed        = "confirmed_existing"
	outcomeAlreadyConfirmed = "already_confirmed"
)

var submissionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "issue_submissions_total",
		Help: "Issue submissions by outcome (new, confirmed_existing, already_confirmed).",
	},
	[]string{"outcome"},
)

var notificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "issue_notifications_total",
		Help: "Gamification notifications attempted by event type and result.",
	},
	[]string{"event_type", "result"},
)

func init() {
	prometheus.MustRegister(submissionsTotal, notificationsTotal)
}
