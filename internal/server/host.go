package server

import (
	"errors"
	"sync"

	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/datastore"
	"go.uber.org/zap"
)

const defaultMaxDrainCycles = 8

var (
	errMissingStore   = errors.New("store dependency required")
	errMissingDrainer = errors.New("scheduler dependency required")
)

// Drainer runs scheduler cycles until its queue is empty or the cycle limit is reached.
type Drainer interface {
	Drain(maxCycles int) int
}

// HostConfig configures a Host.
type HostConfig struct {
	Store          datastore.Datastore
	Scheduler      Drainer
	MaxDrainCycles int
	Logger         *zap.Logger
}

// Host serializes access to a single-writer store. Every call runs under one
// lock and ends at a scheduling boundary, so a transaction left open by a
// call is closed before the next call starts.
type Host struct {
	mu             sync.Mutex
	store          datastore.Datastore
	scheduler      Drainer
	maxDrainCycles int
	logger         *zap.Logger
}

// NewHost validates the configuration and constructs a Host.
func NewHost(cfg HostConfig) (*Host, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Scheduler == nil {
		return nil, errMissingDrainer
	}
	maxCycles := cfg.MaxDrainCycles
	if maxCycles <= 0 {
		maxCycles = defaultMaxDrainCycles
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Host{
		store:          cfg.Store,
		scheduler:      cfg.Scheduler,
		maxDrainCycles: maxCycles,
		logger:         logger,
	}, nil
}

// Do runs fn with exclusive access to the store, then drains the scheduler.
func (h *Host) Do(fn func(store datastore.Datastore) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := fn(h.store)
	if ran := h.scheduler.Drain(h.maxDrainCycles); ran > 0 {
		h.logger.Debug("scheduler drained", zap.Int("tasks", ran))
	}
	return err
}

// Changed exposes the change signal of the hosted store.
func (h *Host) Changed() *datastore.ChangeSignal {
	return h.store.Changed()
}
