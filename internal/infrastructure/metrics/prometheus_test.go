package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, m *Manager, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestObserveTransition(t *testing.T) {
	m := NewManager("")
	m.ObserveTransition("finalizeSale", "ok", 10*time.Millisecond)
	m.ObserveTransition("finalizeSale", "precondition", time.Millisecond)
	m.ObserveTransition("finalizeSale", "ok", time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, m, "title_escrow_transitions_total", map[string]string{"op": "finalizeSale", "outcome": "ok"}))
	assert.Equal(t, 1.0, counterValue(t, m, "title_escrow_transitions_total", map[string]string{"op": "finalizeSale", "outcome": "precondition"}))
}

func TestHandlerAndMiddleware(t *testing.T) {
	m := NewManager("escrow_test")
	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	app.Get("/metrics", m.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	m.ObserveTransition("list", "authorization", time.Millisecond)

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `escrow_test_transitions_total{op="list",outcome="authorization"} 1`)
	assert.Contains(t, string(body), `escrow_test_http_requests_total{method="GET",route="/ping",status="200"} 1`)
	assert.Contains(t, string(body), "escrow_test_transition_duration_seconds_bucket")
}
