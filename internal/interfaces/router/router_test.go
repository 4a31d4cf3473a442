package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"title-escrow/internal/config"
	"title-escrow/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:              "test",
		DatabaseURL:      "sqlite::memory:",
		Seller:           "seller",
		Inspector:        "inspector",
		Lender:           "lender",
		Custodian:        "escrow",
		MetricsNamespace: "router_test",
		HealthAdminKey:   "k",
	}
}

func TestCreateApp_RequiresRolesAndDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.DatabaseURL = ""
	_, _, _, err := CreateApp(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Lender = ""
	_, _, _, err = CreateApp(cfg)
	assert.Error(t, err)
}

func TestCreateApp_ServesHealthMetricsAndEscrow(t *testing.T) {
	app, db, rdb, err := CreateApp(testConfig())
	require.NoError(t, err)
	assert.Nil(t, rdb)
	require.NoError(t, db.Create(&domain.Asset{AssetID: 1, Owner: "seller", Approved: "escrow"}).Error)

	resp, err := app.Test(httptest.NewRequest("GET", "/health/json", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := json.Marshal(map[string]interface{}{"asset_id": 1, "buyer": "buyer", "purchase_price": "10", "escrow_amount": "5"})
	req := httptest.NewRequest("POST", "/api/v1/escrow/listings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "seller")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	out, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(out), `router_test_transitions_total{op="list",outcome="ok"} 1`)

	resp, err = app.Test(httptest.NewRequest("GET", "/nope", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestCreateApp_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	cfg.MetricsNamespace = "router_redis_test"

	app, _, rdb, err := CreateApp(cfg)
	require.NoError(t, err)
	require.NotNil(t, rdb)
	t.Cleanup(func() { _ = rdb.Close() })

	_, err = app.Test(httptest.NewRequest("GET", "/api/v1/escrow/roles", nil))
	require.NoError(t, err)
	assert.True(t, mr.Exists("escrow:health:req_total"))

	resp, err := app.Test(httptest.NewRequest("GET", "/reset?key=k", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}
