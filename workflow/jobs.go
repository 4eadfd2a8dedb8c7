package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"

	"github.com/civintel/cityledger_backend/config"
	"github.com/civintel/cityledger_backend/utils"
)

// scopeLockTTL bounds how long a crashed instance can hold a scope's job slot.
const scopeLockTTL = 5 * time.Minute

// WithScopeLock serializes batch jobs of one kind per scope across instances.
// A second caller for the same (kind, scope) gets ErrorScopeBusy instead of
// queueing. When the lock client isn't initialized the job runs unlocked;
// batch passes are transactional, so overlap degrades to wasted work rather
// than corruption.
func WithScopeLock(ctx context.Context, kind string, scopeKey string, fn func(ctx context.Context) error) error {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		return fn(ctx)
	}

	lockKey := fmt.Sprintf("jobs:%s:%s", kind, scopeKey)
	lock, err := locker.Obtain(ctx, lockKey, scopeLockTTL, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, "workflow", "WithScopeLock", "Could not obtain job lock", lockKey, err)
		return fmt.Errorf("%s job for scope %s: %w", kind, scopeKey, utils.ErrorScopeBusy)
	} else if err != nil {
		config.LogError(logger, "workflow", "WithScopeLock", "Error obtaining job lock", lockKey, err)
		return err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	return fn(ctx)
}
