package session

import (
	"sync"

	"github.com/Veraticus/onion-topology/internal/classification"
	"github.com/Veraticus/onion-topology/internal/common"
	"github.com/Veraticus/onion-topology/internal/config"
)

// Manager owns the single current Session Context and the classification cache.
// Only one generate action may run at a time.
type Manager struct {
	obs     Observer
	current *Context
	cache   classification.Cache
	cfg     config.Processing
	runMu   sync.Mutex
	stateMu sync.RWMutex
}

// NewManager creates a manager seeded with previously persisted classifications.
// The observers are resolved once here and used for every run.
func NewManager(cfg config.Processing, cache classification.Cache, observers ...Observer) *Manager {
	return &Manager{
		cfg:   cfg,
		cache: cache,
		obs:   Combine(observers...),
	}
}

// Generate discards the current session and runs the pipeline for req. A run that
// fails leaves no session behind. ErrSessionBusy is returned while another run is
// in progress.
func (m *Manager) Generate(req Request) (*Context, error) {
	if !m.runMu.TryLock() {
		return nil, common.ErrSessionBusy
	}
	defer m.runMu.Unlock()

	m.Invalidate()

	m.stateMu.RLock()
	cache := m.cache
	m.stateMu.RUnlock()

	ctx, updated, err := Run(req, cache, m.cfg, m.obs)

	m.stateMu.Lock()
	m.current = ctx
	m.cache = updated
	m.stateMu.Unlock()

	if err != nil {
		if common.IsFatal(err) {
			common.LogError(err, "Session failed", common.Fields{"session_id": ID(req)})
		}
		return ctx, err
	}
	return ctx, nil
}

// Current returns the current session, or nil when there is none.
func (m *Manager) Current() *Context {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.current
}

// Cache returns the classification cache as of the last run.
func (m *Manager) Cache() classification.Cache {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.cache
}

// Invalidate discards the current session.
func (m *Manager) Invalidate() {
	m.stateMu.Lock()
	m.current = nil
	m.stateMu.Unlock()
}
