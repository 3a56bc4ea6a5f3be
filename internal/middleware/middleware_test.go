package middleware

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/icd11-rag-ollama/internal/port"
)

type auditRecord struct {
	action, resource, resourceID, details, ip, userAgent string
}

type chanWriter struct {
	records chan auditRecord
}

func (w *chanWriter) WriteAudit(action, resource, resourceID, details, ip, userAgent string) error {
	w.records <- auditRecord{action, resource, resourceID, details, ip, userAgent}
	return nil
}

func TestAuditMiddleware(t *testing.T) {
	w := &chanWriter{records: make(chan auditRecord, 1)}
	app := fiber.New()
	app.Use(AuditMiddleware(w))
	app.Get("/api/v1/missing", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "nope"})
	})

	req := httptest.NewRequest("GET", "/api/v1/missing", nil)
	req.Header.Set("User-Agent", "audit-test")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	select {
	case rec := <-w.records:
		assert.Equal(t, "http_request", rec.action)
		assert.Equal(t, "/api/v1/missing", rec.resourceID)
		assert.Equal(t, "audit-test", rec.userAgent)
		var details map[string]any
		require.NoError(t, json.Unmarshal([]byte(rec.details), &details))
		assert.Equal(t, "GET", details["method"])
		assert.EqualValues(t, 404, details["status"])
	case <-time.After(time.Second):
		t.Fatal("audit record not written")
	}
}

type gatedWriter struct {
	gate    chan struct{}
	records chan auditRecord
}

func (w *gatedWriter) WriteAudit(action, resource, resourceID, details, ip, userAgent string) error {
	<-w.gate
	w.records <- auditRecord{action, resource, resourceID, details, ip, userAgent}
	return nil
}

func TestAuditMiddleware_ValuesSurviveLaterRequests(t *testing.T) {
	const n = 26
	w := &gatedWriter{gate: make(chan struct{}), records: make(chan auditRecord, n)}
	app := fiber.New()
	app.Use(AuditMiddleware(w))
	app.Get("/codes/:code", func(c fiber.Ctx) error {
		return c.SendString("ok")
	})

	for i := 0; i < n; i++ {
		code := strings.Repeat(string(rune('a'+i)), 12)
		req := httptest.NewRequest("GET", "/codes/"+code, nil)
		req.Header.Set("User-Agent", "ua-"+code)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
	close(w.gate)

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		select {
		case rec := <-w.records:
			var details map[string]any
			require.NoError(t, json.Unmarshal([]byte(rec.details), &details))
			code := strings.TrimPrefix(rec.resourceID, "/codes/")
			require.Len(t, code, 12)
			assert.Equal(t, rec.resourceID, details["path"])
			assert.Equal(t, "ua-"+code, rec.userAgent)
			assert.Equal(t, strings.Repeat(code[:1], 12), code)
			seen[code] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d audit records written", i)
		}
	}
	assert.Len(t, seen, n)
}

func newAdminApp(token string) *fiber.App {
	app := fiber.New()
	app.Get("/admin", AdminAuth(token), func(c fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAdminAuth(t *testing.T) {
	app := newAdminApp("s3cret")

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", fiber.StatusUnauthorized},
		{"wrong", "Bearer nope", "", fiber.StatusUnauthorized},
		{"bearer", "Bearer s3cret", "", fiber.StatusOK},
		{"lowercase scheme", "bearer s3cret", "", fiber.StatusOK},
		{"query fallback", "", "?token=s3cret", fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestAdminAuth_ErrorBodyNamesReason(t *testing.T) {
	app := newAdminApp("s3cret")

	resp, err := app.Test(httptest.NewRequest("GET", "/admin", nil))
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unauthorized: missing authorization", body["error"])

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer nope")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, strings.HasPrefix(body["error"], port.ErrUnauthorized.Error()))
	assert.Contains(t, body["error"], "invalid token")
}

func TestAdminAuth_EmptyConfiguredTokenRejectsAll(t *testing.T) {
	req := httptest.NewRequest("GET", "/admin?token=", nil)
	req.Header.Set("Authorization", "Bearer anything")
	resp, err := newAdminApp("").Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
