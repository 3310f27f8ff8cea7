package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dtroode/vault-protector/internal/model"
)

const (
	activityPrefix = "session:activity:"
	activityTTL    = 24 * time.Hour
)

// Activity stamps the last request time of each session.
type Activity struct {
	base
}

var _ model.ActivityTracker = (*Activity)(nil)

// NewActivity creates the activity tracker.
func NewActivity(rdb redis.UniversalClient, timeout time.Duration) *Activity {
	return &Activity{base: newBase(rdb, timeout)}
}

// Touch records at as the last activity of sessionID.
func (a *Activity) Touch(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	if err := a.rdb.Set(ctx, activityPrefix+sessionID.String(), strconv.FormatInt(at.Unix(), 10), activityTTL).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// LastSeen returns the last recorded activity of sessionID, if any.
func (a *Activity) LastSeen(ctx context.Context, sessionID uuid.UUID) (time.Time, bool, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	unix, err := a.rdb.Get(ctx, activityPrefix+sessionID.String()).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, unavailable(err)
	}
	return time.Unix(unix, 0).UTC(), true, nil
}
