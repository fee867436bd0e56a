package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/model/lock"
	"github.com/foolishimp/c4h-intent-system-sub000/internal/domain/repository"
)

// LockService manages the project run lock lifecycle and its heartbeat
type LockService interface {
	AcquireRunLock(ctx context.Context, lockID lock.LockID, runID string) (*lock.RunLock, error)
	ReleaseRunLock(ctx context.Context, lockID lock.LockID, runID string) error
	FindRunLock(ctx context.Context, lockID lock.LockID) (*lock.RunLock, error)
	ListRunLocks(ctx context.Context) ([]*lock.RunLock, error)
	CleanupExpired(ctx context.Context) (int, error)

	// Stop ends every heartbeat without releasing the locks
	Stop()
}

// LockServiceConfig holds configuration for lock service
type LockServiceConfig struct {
	TTL               time.Duration // Lifetime of a lock without heartbeat
	HeartbeatInterval time.Duration // How often a held lock is refreshed
}

// DefaultLockServiceConfig returns default configuration
func DefaultLockServiceConfig() LockServiceConfig {
	return LockServiceConfig{
		TTL:               2 * time.Hour,
		HeartbeatInterval: 30 * time.Second,
	}
}

// LockServiceImpl implements LockService
type LockServiceImpl struct {
	repo   repository.RunLockRepository
	config LockServiceConfig
	logger app.Logger

	mu         sync.Mutex
	heartbeats map[string]*heartbeat
}

type heartbeat struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLockService creates a new lock service. A zero interval falls back to a
// third of the TTL.
func NewLockService(repo repository.RunLockRepository, config LockServiceConfig, logger app.Logger) *LockServiceImpl {
	if config.TTL <= 0 {
		config.TTL = DefaultLockServiceConfig().TTL
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = config.TTL / 3
	}
	if logger == nil {
		logger = app.NopLogger()
	}
	return &LockServiceImpl{
		repo:       repo,
		config:     config,
		logger:     logger,
		heartbeats: make(map[string]*heartbeat),
	}
}

// AcquireRunLock acquires a run lock and starts its heartbeat.
// Returns an error wrapping lock.ErrLockHeld when another live run owns it.
func (s *LockServiceImpl) AcquireRunLock(ctx context.Context, lockID lock.LockID, runID string) (*lock.RunLock, error) {
	runLock, err := s.repo.Acquire(ctx, lockID, runID, s.config.TTL)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}

	s.startHeartbeat(lockID, runID)
	s.logger.Debug("acquired run lock %s for run %s until %s", lockID, runID, runLock.ExpiresAt().Format(time.RFC3339))
	return runLock, nil
}

// ReleaseRunLock stops the heartbeat and releases the lock if runID still owns it
func (s *LockServiceImpl) ReleaseRunLock(ctx context.Context, lockID lock.LockID, runID string) error {
	s.stopHeartbeat(lockID.String())

	if err := s.repo.Release(ctx, lockID, runID); err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	s.logger.Debug("released run lock %s", lockID)
	return nil
}

// FindRunLock finds a run lock by ID
func (s *LockServiceImpl) FindRunLock(ctx context.Context, lockID lock.LockID) (*lock.RunLock, error) {
	return s.repo.Find(ctx, lockID)
}

// ListRunLocks lists all run locks, expired ones included
func (s *LockServiceImpl) ListRunLocks(ctx context.Context) ([]*lock.RunLock, error) {
	return s.repo.List(ctx)
}

// CleanupExpired removes expired locks
func (s *LockServiceImpl) CleanupExpired(ctx context.Context) (int, error) {
	n, err := s.repo.CleanupExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired run locks: %w", err)
	}
	if n > 0 {
		s.logger.Info("removed %d expired run lock(s)", n)
	}
	return n, nil
}

// Stop stops all heartbeats and waits for them to exit
func (s *LockServiceImpl) Stop() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.heartbeats))
	for id := range s.heartbeats {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.stopHeartbeat(id)
	}
}

func (s *LockServiceImpl) startHeartbeat(lockID lock.LockID, runID string) {
	key := lockID.String()
	s.stopHeartbeat(key)

	ctx, cancel := context.WithCancel(context.Background())
	hb := &heartbeat{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	s.heartbeats[key] = hb
	s.mu.Unlock()

	go func() {
		defer close(hb.done)
		ticker := time.NewTicker(s.config.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := s.repo.Refresh(ctx, lockID, runID, s.config.TTL)
				if err == nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, lock.ErrLockNotFound) {
					// Released or taken over by another run
					s.logger.Warn("run lock %s lost by run %s, stopping heartbeat", lockID, runID)
					s.forget(key, hb)
					return
				}
				s.logger.Warn("heartbeat for run lock %s failed: %v", lockID, err)
			}
		}
	}()
}

func (s *LockServiceImpl) stopHeartbeat(key string) {
	s.mu.Lock()
	hb, ok := s.heartbeats[key]
	delete(s.heartbeats, key)
	s.mu.Unlock()

	if ok {
		hb.cancel()
		<-hb.done
	}
}

func (s *LockServiceImpl) forget(key string, hb *heartbeat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heartbeats[key] == hb {
		delete(s.heartbeats, key)
	}
}
