package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
)

type fixedStats datasource.ConnectionStats

func (f fixedStats) GetStats() datasource.ConnectionStats { return datasource.ConnectionStats(f) }

func TestHealthHandler_Health_WithoutConnManager(t *testing.T) {
	handler := NewHealthHandler(&config.Config{Version: "test-version"}, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var response HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "ok", response.Status)
	assert.Nil(t, response.Connections)
}

func TestHealthHandler_Health_WithConnManager(t *testing.T) {
	stats := fixedStats{
		TotalConnections:  2,
		IdleTTLSeconds:    300,
		ConnectionsByType: map[string]int{"mongodb": 1, "postgres": 1},
	}
	handler := NewHealthHandler(&config.Config{}, stats, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var response HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	require.NotNil(t, response.Connections)
	assert.Equal(t, 2, response.Connections.TotalConnections)
	assert.Equal(t, 300, response.Connections.IdleTTLSeconds)
	assert.Equal(t, 1, response.Connections.ConnectionsByType["mongodb"])
}

func TestHealthHandler_Ping(t *testing.T) {
	cfg := &config.Config{
		Version: "1.2.3",
		Datasources: []config.DatasourceConfig{
			{Name: "shop", Type: "mongodb"},
			{Name: "exports", Type: "jsonfile"},
		},
	}
	handler := NewHealthHandler(cfg, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Ping(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var response PingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "1.2.3", response.Version)
	assert.Equal(t, "ekaya-catalog", response.Service)
	assert.Equal(t, []string{"shop", "exports"}, response.Datasources)
	assert.NotEmpty(t, response.GoVersion)
	assert.NotEmpty(t, response.Hostname)
}

func TestHealthHandler_Routes(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthHandler(&config.Config{}, nil, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
