package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestHelpers_GetIdempotencyKey_IsReplay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if k, ok := GetIdempotencyKey(c); k != "" || ok {
		t.Fatalf("expected empty key when not set")
	}
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false by default")
	}

	c.Set(ctxKeyIdemKey, 123)
	if _, ok := GetIdempotencyKey(c); ok {
		t.Fatalf("expected GetIdempotencyKey to be absent for non-string value")
	}
	c.Set(ctxKeyIdemReplay, true)
	if !IsReplay(c) {
		t.Fatalf("expected IsReplay=true")
	}
	c.Set(ctxKeyIdemReplay, "yes")
	if IsReplay(c) {
		t.Fatalf("expected IsReplay=false for non-bool")
	}
}

func TestIdempotencyValidator_NoHeader_NoLookupCalled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	lookupCalled := false
	lookup := func(context.Context, int64, string, time.Time) (bool, error) {
		lookupCalled = true
		return false, nil
	}
	r.Use(withUser(7), IdempotencyValidator(IdempotencyOptions{}, lookup))
	r.POST("/issues", func(c *gin.Context) {
		if _, ok := GetIdempotencyKey(c); ok {
			t.Fatalf("key should not be present when header missing")
		}
		c.Status(http.StatusAccepted)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/issues", nil))

	if w.Code != http.StatusAccepted || lookupCalled {
		t.Fatalf("expected 202 without lookup, got %d (lookup=%v)", w.Code, lookupCalled)
	}
}

func TestIdempotencyValidator_InvalidKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{"too long", IdempotencyOptions{MaxLen: 5}, "abcdef"},
		{"pattern", IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, "abc123"},
		{"default pattern rejects spaces", IdempotencyOptions{}, "a b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestID(), IdempotencyValidator(tc.opts, nil))
			r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/x", nil)
			req.Header.Set(HeaderIdempotencyKey, tc.key)
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body["code"] != "bad_request" || body["request_id"] == "" {
				t.Fatalf("unexpected body: %v", body)
			}
		})
	}
}

func TestIdempotencyValidator_Valid_NoLookup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(IdempotencyValidator(IdempotencyOptions{}, nil))
	r.POST("/z", func(c *gin.Context) {
		key, ok := GetIdempotencyKey(c)
		if !ok || key != "abc-123" {
			t.Fatalf("expected stashed key abc-123, got %q ok=%v", key, ok)
		}
		if IsReplay(c) || IsRateBypass(c) {
			t.Fatalf("expected no replay/bypass when lookup=nil")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/z", nil)
	req.Header.Set(HeaderIdempotencyKey, "abc-123")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestIdempotencyValidator_Lookup(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(t *testing.T, mw []gin.HandlerFunc, lookup IdempotencyLookup, wantReplay bool) {
		t.Helper()
		r := gin.New()
		r.Use(mw...)
		r.Use(IdempotencyValidator(IdempotencyOptions{}, lookup))
		r.POST("/issues", func(c *gin.Context) {
			if IsReplay(c) != wantReplay || IsRateBypass(c) != wantReplay {
				t.Errorf("replay=%v bypass=%v; want %v", IsReplay(c), IsRateBypass(c), wantReplay)
			}
			c.Status(http.StatusAccepted)
		})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/issues", nil)
		req.Header.Set(HeaderIdempotencyKey, "k-9")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", w.Code)
		}
	}

	t.Run("hit passes user id and key", func(t *testing.T) {
		run(t, []gin.HandlerFunc{withUser(9)}, func(_ context.Context, uid int64, key string, now time.Time) (bool, error) {
			if uid != 9 || key != "k-9" || now.IsZero() {
				t.Errorf("unexpected args %d %q %v", uid, key, now)
			}
			return true, nil
		}, true)
	})

	t.Run("miss", func(t *testing.T) {
		run(t, []gin.HandlerFunc{withUser(9)}, func(context.Context, int64, string, time.Time) (bool, error) {
			return false, nil
		}, false)
	})

	t.Run("lookup error is not a replay", func(t *testing.T) {
		run(t, []gin.HandlerFunc{withUser(9)}, func(context.Context, int64, string, time.Time) (bool, error) {
			return true, errors.New("db down")
		}, false)
	})

	t.Run("anonymous request skips lookup", func(t *testing.T) {
		run(t, nil, func(context.Context, int64, string, time.Time) (bool, error) {
			t.Errorf("lookup must not run without a user")
			return true, nil
		}, false)
	})
}

// withUser simulates RequireUser for tests that do not need a token.
func withUser(id int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(userIDKey, id)
		c.Next()
	}
}
