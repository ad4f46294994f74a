package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/stocklink_backend/config"
	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// StoreLock obtains a short-lived exclusive lock for one store's sync run so
// two schedulers cannot run the same store concurrently. The returned release
// func is nil-safe. When no redis lock client is configured (one-off CLI use)
// the lock degrades to a no-op with a warning.
func StoreLock(ctx context.Context, store string, lockType string, ttl time.Duration) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		logger.WithField("store", store).Warn("redis lock not configured; proceeding without store lock")
		return func() {}, nil
	}

	lockKey := fmt.Sprintf("%s:%s", lockType, store)
	lock, err := locker.Obtain(ctx, lockKey, ttl, nil)
	if err == redislock.ErrNotObtained {
		config.LogError(logger, "utils", "StoreLock", "Could not obtain lock for store", store, err)
		return nil, errors.New("another sync run holds the lock for this store")
	} else if err != nil {
		config.LogError(logger, "utils", "StoreLock", "Error obtaining lock for store", store, err)
		return nil, err
	}

	release := func() {
		_ = lock.Release(context.Background())
	}
	return release, nil
}

// ProcessValidationErrors flattens binding validation failures into a
// field -> failed-rule map for API error responses.
func ProcessValidationErrors(err error) map[string]string {
	validationErrors := err.(validator.ValidationErrors)

	errorResponse := make(map[string]string)
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}
	return errorResponse
}

// ToDecimal parses a string amount, treating blanks and malformed values as
// zero rather than letting them propagate into comparisons.
func ToDecimal(value string) decimal.Decimal {
	if value == "" {
		return decimal.Zero
	}
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return dec
}
