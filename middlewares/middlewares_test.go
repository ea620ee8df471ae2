package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sprayline/fieldsuite_backend/appctx"
	"github.com/sprayline/fieldsuite_backend/config"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	config.SetRedis(client)
	t.Cleanup(func() {
		config.SetRedis(nil)
		_ = client.Close()
	})
	return mr, client
}

func whoAmI(c *gin.Context) {
	p, ok := appctx.PrincipalFrom(c.Request.Context())
	if !ok {
		c.String(http.StatusOK, "anonymous")
		return
	}
	c.String(http.StatusOK, p.OrganizationId+"/"+p.Role+"/"+p.Username)
}

func serve(r http.Handler, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSessionMiddleware(t *testing.T) {
	mr, _ := newRedis(t)
	if err := mr.Set(SessionPrefix+"tok-1", `{"organization_id":"org-1","role":"crew","username":"crew1"}`); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if err := mr.Set(SessionPrefix+"tok-orgless", `{"role":"admin"}`); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware())
	r.GET("/me", whoAmI)

	cases := []struct {
		name, header, value string
		status              int
		body                string
	}{
		{"token header", "token", "tok-1", http.StatusOK, "org-1/crew/crew1"},
		{"bearer", "Authorization", "Bearer tok-1", http.StatusOK, "org-1/crew/crew1"},
		{"no token", "", "", http.StatusOK, "anonymous"},
		{"unknown token", "token", "nope", http.StatusUnauthorized, ""},
		{"session without organization", "token", "tok-orgless", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(r, tc.header, tc.value)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.status, w.Body.String())
			}
			if tc.body != "" && w.Body.String() != tc.body {
				t.Fatalf("body = %q, want %q", w.Body.String(), tc.body)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	mr, client := newRedis(t)
	mr.Set(SessionPrefix+"tok-1", `{"organization_id":"org-1","role":"crew","username":"crew1"}`)
	mr.Set(SessionPrefix+"tok-2", `{"organization_id":"org-2","role":"crew","username":"crew2"}`)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware())
	r.Use(NewRateLimiter(client, 2, time.Minute).RateLimitMiddleware)
	r.GET("/me", whoAmI)

	for i := 0; i < 2; i++ {
		if w := serve(r, "token", "tok-1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}
	if w := serve(r, "token", "tok-1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status %d, want 429", w.Code)
	}
	if w := serve(r, "token", "tok-2"); w.Code != http.StatusOK {
		t.Fatalf("other organization limited: status %d", w.Code)
	}

	mr.FastForward(time.Minute + time.Second)
	if w := serve(r, "token", "tok-1"); w.Code != http.StatusOK {
		t.Fatalf("new window: status %d", w.Code)
	}
}
