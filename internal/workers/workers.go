package workers

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type ScanPruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

type QRCodeExpirer interface {
	ExpireDue(ctx context.Context, now time.Time) ([]string, error)
}

// CacheInvalidator drops stale entries from the redirect cache. May be nil.
type CacheInvalidator interface {
	Delete(shortCode string)
}

// PruneScans deletes scans older than the retention window. A non-positive
// retention keeps everything.
func PruneScans(ctx context.Context, pruner ScanPruner, retentionDays int, now time.Time) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.AddDate(0, 0, -retentionDays)
	n, err := pruner.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	log.Info().Int64("deleted", n).Time("before", cutoff).Msg("Worker: pruned scan log")
	return n, nil
}

// ExpireQRCodes marks codes past their expiry and evicts them from the cache.
func ExpireQRCodes(ctx context.Context, expirer QRCodeExpirer, cache CacheInvalidator, now time.Time) (int, error) {
	codes, err := expirer.ExpireDue(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, code := range codes {
		if cache != nil {
			cache.Delete(code)
		}
	}
	if len(codes) > 0 {
		log.Info().Int("expired", len(codes)).Msg("Worker: expired QR codes")
	}
	return len(codes), nil
}

// UntilDaily returns the wait until the next hour:00 UTC after now.
func UntilDaily(now time.Time, hour int) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// Every runs fn on each tick until ctx is done. Errors are logged, not fatal.
func Every(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.Error().Err(err).Str("worker", name).Msg("Worker run failed")
			}
		}
	}
}

// Daily runs fn every day at hour:00 UTC until ctx is done.
func Daily(ctx context.Context, name string, hour int, fn func(ctx context.Context) error) {
	for {
		wait := UntilDaily(time.Now(), hour)
		log.Debug().Str("worker", name).Dur("sleep", wait).Msg("Worker sleeping")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := fn(ctx); err != nil {
				log.Error().Err(err).Str("worker", name).Msg("Worker run failed")
			}
		}
	}
}
