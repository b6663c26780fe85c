// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// IdempotencyValidator lets a citizen retry POST /issues safely: the client
// sends an Idempotency-Key, and a key already seen for that user turns the
// request into a replay of the stored outcome. Keys are scoped per user, so
// install it after RequireUser.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HeaderIdempotencyKey carries the client's retry key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

var idemReplays = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "idempotency_replays_total",
	Help: "Submissions answered from a stored idempotent result.",
})

func init() {
	prometheus.MustRegister(idemReplays)
}

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a stored outcome exists for this user and key.
func IsReplay(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyIdemReplay)
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions tunes key validation. Expiry belongs to the lookup.
type IdempotencyOptions struct {
	MaxLen  int            // <= 0 means 200
	Pattern *regexp.Regexp // nil means ^[A-Za-z0-9._~\-:]+$
}

// IdempotencyLookup reports whether an unexpired outcome is stored for
// (userID, key) at now. Errors are logged and the request proceeds as new.
type IdempotencyLookup func(ctx context.Context, userID int64, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator rejects malformed keys with 400, stashes a valid key
// for the handler, and flags replays so the submission limiter lets them
// through. Requests without the header pass untouched. Serving the stored
// outcome is the handler's job.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_request", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		uid, ok := UserIDFrom(c)
		if !ok || lookup == nil {
			c.Next()
			return
		}
		exists, err := lookup(c.Request.Context(), uid, key, time.Now().UTC())
		switch {
		case err != nil:
			LoggerFrom(c).Warn().Err(err).Int64("user_id", uid).Msg("idempotency lookup failed")
		case exists:
			idemReplays.Inc()
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}
