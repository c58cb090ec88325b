package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-catalog/pkg/config"
)

// ConnectionStatsProvider reports open datasource connections.
// Implemented by datasource.ConnectionManager.
type ConnectionStatsProvider interface {
	GetStats() datasource.ConnectionStats
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string                      `json:"status"`
	Connections *datasource.ConnectionStats `json:"connections,omitempty"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string   `json:"status"`
	Version     string   `json:"version"`
	Service     string   `json:"service"`
	GoVersion   string   `json:"go_version"`
	Hostname    string   `json:"hostname"`
	Datasources []string `json:"datasources"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg         *config.Config
	connections ConnectionStatsProvider
	logger      *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. connections may be nil.
func NewHealthHandler(cfg *config.Config, connections ConnectionStatsProvider, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, connections: connections, logger: logger.Named("health")}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok"}
	if h.connections != nil {
		stats := h.connections.GetStats()
		response.Connections = &stats
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and configured datasources.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	names := make([]string, 0, len(h.cfg.Datasources))
	for _, ds := range h.cfg.Datasources {
		names = append(names, ds.Name)
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-catalog",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Datasources: names,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
