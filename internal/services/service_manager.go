package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/classforge/assessment-engine/internal/clock"
	"github.com/classforge/assessment-engine/internal/events"
	"github.com/classforge/assessment-engine/internal/repositories"
	"github.com/classforge/assessment-engine/internal/validator"
)

// ServiceManager bundles the engine's services behind one lifecycle.
type ServiceManager interface {
	Initialize(ctx context.Context) error
	Sessions() SessionManager
	Ranking() RankingService
	Browser() BrowserService
	Answers() AnswerStore
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ServiceManagerConfig holds configuration for the service manager.
type ServiceManagerConfig struct {
	Session SessionConfig
}

type serviceManager struct {
	gw        repositories.Gateway
	clk       clock.Clock
	newTicker clock.TickerFactory
	publisher events.Publisher
	validator *validator.Validator
	logger    *slog.Logger
	config    ServiceManagerConfig

	sessionManager SessionManager
	rankingService RankingService
	browserService BrowserService
	answerStore    AnswerStore

	initialized bool
	shutdown    bool
	mu          sync.RWMutex
}

// NewServiceManager creates a service manager with all dependencies.
func NewServiceManager(
	gw repositories.Gateway,
	clk clock.Clock,
	newTicker clock.TickerFactory,
	publisher events.Publisher,
	v *validator.Validator,
	logger *slog.Logger,
	config ServiceManagerConfig,
) ServiceManager {
	return &serviceManager{
		gw:        gw,
		clk:       clk,
		newTicker: newTicker,
		publisher: publisher,
		validator: v,
		logger:    logger,
		config:    config,
	}
}

// Initialize sets up all services and their dependencies.
func (sm *serviceManager) Initialize(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.initialized {
		return nil
	}

	sm.logger.Info("Initializing service manager")

	sm.answerStore = NewAnswerStore(sm.gw, sm.logger)
	sm.sessionManager = NewSessionManager(sm.gw, sm.answerStore, sm.clk, sm.newTicker, sm.publisher, sm.validator, sm.logger, sm.config.Session)
	sm.rankingService = NewRankingService(sm.gw, sm.logger)
	sm.browserService = NewBrowserService(sm.gw, sm.logger)

	if err := sm.gw.Ping(ctx); err != nil {
		return fmt.Errorf("gateway health check failed: %w", err)
	}

	sm.initialized = true
	sm.logger.Info("Service manager initialized successfully")

	return nil
}

func (sm *serviceManager) Sessions() SessionManager {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.sessionManager
}

func (sm *serviceManager) Ranking() RankingService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.rankingService
}

func (sm *serviceManager) Browser() BrowserService {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.browserService
}

func (sm *serviceManager) Answers() AnswerStore {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		panic("service manager not initialized")
	}
	return sm.answerStore
}

// HealthCheck verifies the storage gateway is reachable.
func (sm *serviceManager) HealthCheck(ctx context.Context) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if !sm.initialized {
		return fmt.Errorf("service manager not initialized")
	}
	if sm.shutdown {
		return fmt.Errorf("service manager is shut down")
	}
	return sm.gw.Ping(ctx)
}

// Shutdown releases the gateway connection. Active sessions are owned by
// their callers and must be submitted or aborted before shutdown.
func (sm *serviceManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.shutdown {
		return nil
	}

	sm.logger.Info("Shutting down service manager")

	if err := sm.gw.Close(); err != nil {
		return fmt.Errorf("failed to close gateway: %w", err)
	}

	sm.shutdown = true
	sm.logger.Info("Service manager shut down")
	return nil
}
