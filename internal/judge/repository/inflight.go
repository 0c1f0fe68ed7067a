package repository

import (
	"context"
	"strconv"
	"time"

	appErr "judgebox/pkg/errors"
	"judgebox/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	inflightKeyPrefix  = "judge:inflight:"
	defaultInflightTTL = 10 * time.Minute
	releaseTimeout     = 3 * time.Second
)

// Locker is the part of the cache the guard needs.
type Locker interface {
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) (bool, error)
}

// InflightGuard keeps two judge runs of one submission from overlapping.
type InflightGuard struct {
	locker Locker
	ttl    time.Duration
}

// NewInflightGuard creates a guard. The TTL bounds how long a crashed run
// keeps the submission locked.
func NewInflightGuard(locker Locker, ttl time.Duration) *InflightGuard {
	if ttl <= 0 {
		ttl = defaultInflightTTL
	}
	return &InflightGuard{locker: locker, ttl: ttl}
}

// Acquire marks submissionID as being judged. The returned func releases it.
func (g *InflightGuard) Acquire(ctx context.Context, submissionID int64) (func(), error) {
	key := inflightKey(submissionID)
	token := uuid.NewString()
	ok, err := g.locker.TryLock(ctx, key, token, g.ttl)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CacheError, "acquire judge guard failed")
	}
	if !ok {
		return nil, appErr.New(appErr.JudgeQueueFull).
			WithMessage("submission is already being judged").
			WithDetail("submission_id", submissionID)
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		released, err := g.locker.Unlock(releaseCtx, key, token)
		if err != nil {
			logger.Warn(releaseCtx, "release judge guard failed", zap.String("key", key), zap.Error(err))
			return
		}
		if !released {
			logger.Warn(releaseCtx, "judge guard expired before release", zap.String("key", key))
		}
	}, nil
}

func inflightKey(submissionID int64) string {
	return inflightKeyPrefix + strconv.FormatInt(submissionID, 10)
}
