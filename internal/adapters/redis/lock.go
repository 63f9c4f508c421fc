package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/pkg/logger"
)

// lockName is the key every engine instance competes for
const lockName = "goldpilot:engine"

// EngineLock holds the single-instance guard. While held, a background
// goroutine renews it at 2/3 of the TTL.
type EngineLock struct {
	lockManager *redlock.RedLock
	ttl         time.Duration

	mu     sync.Mutex
	locked bool
}

func newEngineLock(lockManager *redlock.RedLock, ttl time.Duration) *EngineLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &EngineLock{
		lockManager: lockManager,
		ttl:         ttl,
	}
}

// TryAcquire attempts to take the engine lock. Returns false when another
// instance already holds it.
func (l *EngineLock) TryAcquire(ctx context.Context) (bool, error) {
	expiry, err := l.lockManager.Lock(ctx, lockName, l.ttl)
	if err != nil {
		// Lock not acquired - another instance has it
		logger.Debug("engine lock already held", zap.Error(err))
		return false, nil
	}

	if expiry <= 0 {
		return false, fmt.Errorf("failed to acquire engine lock: invalid expiry %v", expiry)
	}

	l.mu.Lock()
	l.locked = true
	l.mu.Unlock()

	logger.Info("engine lock acquired",
		zap.String("lock", lockName),
		zap.Duration("ttl", l.ttl),
	)

	go l.renew(ctx)

	return true, nil
}

// Release gives the lock up. Safe to call when not held.
func (l *EngineLock) Release(ctx context.Context) error {
	l.mu.Lock()
	if !l.locked {
		l.mu.Unlock()
		return nil
	}
	l.locked = false
	l.mu.Unlock()

	if err := l.lockManager.UnLock(ctx, lockName); err != nil {
		// Lock may have already expired naturally
		logger.Warn("failed to release engine lock",
			zap.String("lock", lockName),
			zap.Error(err),
		)
		return nil
	}

	logger.Info("engine lock released", zap.String("lock", lockName))
	return nil
}

// Held reports whether this instance currently believes it owns the lock
func (l *EngineLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// renew extends the lock before it expires. Redlock has no extend
// operation, so renewal releases and immediately re-acquires.
func (l *EngineLock) renew(ctx context.Context) {
	renewInterval := (l.ttl * 2) / 3
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("engine lock renewal stopped")
			return

		case <-ticker.C:
			if !l.Held() {
				return
			}

			if err := l.lockManager.UnLock(ctx, lockName); err != nil {
				logger.Error("engine lock renewal failed on unlock", zap.Error(err))
				l.setLost()
				return
			}

			expiry, err := l.lockManager.Lock(ctx, lockName, l.ttl)
			if err != nil || expiry <= 0 {
				logger.Error("engine lock lost, another instance may have taken over",
					zap.String("lock", lockName),
					zap.Error(err),
				)
				l.setLost()
				return
			}

			logger.Debug("engine lock renewed", zap.Duration("expiry", expiry))
		}
	}
}

func (l *EngineLock) setLost() {
	l.mu.Lock()
	l.locked = false
	l.mu.Unlock()
}
