package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-catalog/pkg/logging"
	"github.com/ekaya-inc/ekaya-catalog/pkg/retry"
)

const (
	DefaultIdleTTL         = 5 * time.Minute
	DefaultCleanupInterval = 1 * time.Minute
	DefaultHealthTimeout   = 5 * time.Second
)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	HealthTimeout   time.Duration

	// Retry controls connection attempts. Nil uses retry.DefaultConfig().
	Retry *retry.Config
}

// ConnectionManager keeps one open sampler per datasource name so repeated and
// scheduled extractions reuse connections. Samplers idle for longer than the TTL are
// closed by a background goroutine.
type ConnectionManager struct {
	mu              sync.RWMutex
	samplers        map[string]*managedSampler // key: datasource name
	factory         DatasourceAdapterFactory
	ttl             time.Duration
	healthTimeout   time.Duration
	retryCfg        *retry.Config
	stopped         bool
	stopChan        chan struct{}
	cleanupInterval time.Duration
	logger          *zap.Logger
}

type managedSampler struct {
	sampler  DocumentSampler
	dsType   string
	lastUsed time.Time
	mu       sync.Mutex // Serializes health checks of one sampler
}

// NewConnectionManager creates a connection manager that builds samplers through
// factory. Starts a background cleanup goroutine that runs until Close() is called.
func NewConnectionManager(cfg ConnectionManagerConfig, factory DatasourceAdapterFactory, logger *zap.Logger) *ConnectionManager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}

	manager := &ConnectionManager{
		samplers:        make(map[string]*managedSampler),
		factory:         factory,
		ttl:             cfg.IdleTTL,
		healthTimeout:   cfg.HealthTimeout,
		retryCfg:        cfg.Retry,
		stopChan:        make(chan struct{}),
		cleanupInterval: cfg.CleanupInterval,
		logger:          logger.Named("connection-manager"),
	}

	go manager.cleanupIdleSamplers()
	return manager
}

// GetOrCreate returns the sampler of datasource name, creating it on first use. A
// cached sampler that fails its health check is closed and replaced.
func (m *ConnectionManager) GetOrCreate(ctx context.Context, name, dsType string, config map[string]any) (DocumentSampler, error) {
	// Try existing sampler with read lock (fast path)
	m.mu.RLock()
	managed, exists := m.samplers[name]
	m.mu.RUnlock()

	if exists && managed.dsType == dsType {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, m.healthTimeout)
		defer cancel()

		err := retry.Do(healthCtx, m.retryCfg, func() error {
			return managed.sampler.TestConnection(healthCtx)
		})
		if err == nil {
			managed.lastUsed = time.Now()
			managed.mu.Unlock()
			return managed.sampler, nil
		}

		m.logger.Warn("Datasource connection unhealthy, recreating",
			zap.String("datasource", name),
			logging.SafeError(err))
		managed.mu.Unlock()
		m.remove(name, managed)
	} else if exists {
		m.remove(name, managed)
	}

	return m.create(ctx, name, dsType, config)
}

// create opens a new sampler with retry logic.
// Caller must NOT hold any locks (this method acquires write lock).
func (m *ConnectionManager) create(ctx context.Context, name, dsType string, config map[string]any) (DocumentSampler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("connection manager is closed")
	}

	// Double-check after acquiring write lock (another goroutine may have created it)
	if managed, exists := m.samplers[name]; exists && managed.dsType == dsType {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.sampler, nil
	}

	sampler, err := retry.DoWithResult(ctx, m.retryCfg, func() (DocumentSampler, error) {
		s, err := m.factory.NewDocumentSampler(ctx, dsType, config)
		if err != nil {
			return nil, err
		}
		if err := s.TestConnection(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		m.logger.Error("Failed to connect to datasource after retries",
			zap.String("datasource", name),
			zap.String("type", dsType),
			logging.SafeError(err))
		return nil, fmt.Errorf("failed to connect to datasource %s: %w", name, err)
	}

	m.samplers[name] = &managedSampler{
		sampler:  sampler,
		dsType:   dsType,
		lastUsed: time.Now(),
	}

	m.logger.Info("Connected to datasource",
		zap.String("datasource", name),
		zap.String("type", dsType),
		zap.Int("open", len(m.samplers)))

	return sampler, nil
}

// remove closes and forgets the sampler of name if it is still managed.
// Caller must NOT hold m.mu lock (this method acquires write lock).
func (m *ConnectionManager) remove(name string, managed *managedSampler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.samplers[name]; exists && current == managed {
		if err := current.sampler.Close(); err != nil {
			m.logger.Debug("Error closing sampler", zap.String("datasource", name), zap.Error(err))
		}
		delete(m.samplers, name)
	}
}

func (m *ConnectionManager) cleanupIdleSamplers() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(time.Now())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup closes samplers that haven't been used within the TTL.
// Lock ordering: manager lock, then sampler lock.
func (m *ConnectionManager) performCleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return 0
	}

	var expired []string
	for name, managed := range m.samplers {
		managed.mu.Lock()
		idle := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idle > m.ttl {
			expired = append(expired, name)
			m.logger.Debug("Closing idle datasource connection",
				zap.String("datasource", name),
				zap.Duration("idle", idle))
		}
	}

	for _, name := range expired {
		_ = m.samplers[name].sampler.Close()
		delete(m.samplers, name)
	}

	if len(expired) > 0 {
		m.logger.Info("Cleaned up idle datasource connections",
			zap.Int("count", len(expired)),
			zap.Int("remaining", len(m.samplers)))
	}
	return len(expired)
}

// Close closes all samplers and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for name, managed := range m.samplers {
		if err := managed.sampler.Close(); err != nil {
			m.logger.Debug("Error closing sampler", zap.String("datasource", name), zap.Error(err))
		}
	}

	m.samplers = make(map[string]*managedSampler)
	m.logger.Info("Connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		TotalConnections:  len(m.samplers),
		IdleTTLSeconds:    int(m.ttl.Seconds()),
		ConnectionsByType: make(map[string]int),
	}

	for _, managed := range m.samplers {
		stats.ConnectionsByType[managed.dsType]++

		managed.mu.Lock()
		idleSeconds := int(now.Sub(managed.lastUsed).Seconds())
		managed.mu.Unlock()
		if idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	TotalConnections  int            `json:"total_connections"`
	IdleTTLSeconds    int            `json:"idle_ttl_seconds"`
	ConnectionsByType map[string]int `json:"connections_by_type"`
	OldestIdleSeconds int            `json:"oldest_idle_seconds"`
}
